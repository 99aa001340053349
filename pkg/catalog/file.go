package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk form of catalog overrides:
//
//	required: [first_name, last_name]
//	aliases:
//	  last_name: [Apelyido, Family Name]
//	  barangay: [Brgy]
type File struct {
	Required []string            `yaml:"required"`
	Aliases  map[string][]string `yaml:"aliases"`
}

// Load extends the default catalog with the aliases in path. Aliases from the
// file take precedence over built-in variants that fold to the same key. An
// empty path returns the default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}
	return file.Apply(Default())
}

// Apply returns base extended with the file's aliases and required fields
func (f File) Apply(base *Catalog) (*Catalog, error) {
	for field := range f.Aliases {
		if !base.IsField(field) {
			return nil, fmt.Errorf("catalog alias target %q is not a canonical field", field)
		}
	}

	// walk fields in catalog order so Fields stays stable
	var mappings []Mapping
	for _, field := range base.Fields() {
		for _, v := range f.Aliases[field] {
			mappings = append(mappings, Mapping{Variant: v, Field: field})
		}
	}

	required := base.RequiredFields()
	if len(f.Required) > 0 {
		for _, field := range f.Required {
			if !base.IsField(field) {
				return nil, fmt.Errorf("required field %q is not a canonical field", field)
			}
		}
		required = f.Required
	}

	return New(append(mappings, base.mappings...), required), nil
}
