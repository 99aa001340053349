// Package catalog defines the canonical identity fields and the column-name
// variants recognized for each of them.
package catalog

import (
	"regexp"
	"strings"
)

// Canonical identity fields
const (
	FieldUID         = "uid"
	FieldLastName    = "last_name"
	FieldFirstName   = "first_name"
	FieldSecondName  = "second_name"
	FieldMiddleName  = "middle_name"
	FieldSuffix      = "suffix"
	FieldBirthday    = "birthday"
	FieldGender      = "gender"
	FieldCivilStatus = "civil_status"
	FieldAddress     = "address"
	FieldBarangay    = "barangay"
)

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Mapping is a single variant -> canonical field entry.
type Mapping struct {
	Variant string
	Field   string
}

// defaultMappings is ordered so that Variations reports variants the way
// users are told about them.
var defaultMappings = []Mapping{
	{"regsno", FieldUID},
	{"RegsNo", FieldUID},
	{"regsnumber", FieldUID},
	{"registration_no", FieldUID},

	{"surname", FieldLastName},
	{"Surname", FieldLastName},
	{"lastname", FieldLastName},
	{"LastName", FieldLastName},
	{"last_name", FieldLastName},

	{"firstname", FieldFirstName},
	{"FirstName", FieldFirstName},
	{"first_name", FieldFirstName},
	{"fname", FieldFirstName},

	{"secondname", FieldSecondName},
	{"SecondName", FieldSecondName},
	{"second_name", FieldSecondName},

	{"middlename", FieldMiddleName},
	{"MiddleName", FieldMiddleName},
	{"middle_name", FieldMiddleName},
	{"mname", FieldMiddleName},

	{"extension", FieldSuffix},
	{"Extension", FieldSuffix},
	{"suffix", FieldSuffix},
	{"Suffix", FieldSuffix},
	{"ext", FieldSuffix},

	{"dob", FieldBirthday},
	{"DOB", FieldBirthday},
	{"birthday", FieldBirthday},
	{"Birthday", FieldBirthday},
	{"birthdate", FieldBirthday},
	{"BirthDate", FieldBirthday},
	{"birth_date", FieldBirthday},
	{"date_of_birth", FieldBirthday},
	{"DateOfBirth", FieldBirthday},
	{"dateofbirth", FieldBirthday},

	{"sex", FieldGender},
	{"Sex", FieldGender},
	{"gender", FieldGender},
	{"Gender", FieldGender},

	{"status", FieldCivilStatus},
	{"Status", FieldCivilStatus},
	{"civilstatus", FieldCivilStatus},
	{"CivilStatus", FieldCivilStatus},
	{"civil_status", FieldCivilStatus},

	// street, city and province are folded into a single address
	{"address", FieldAddress},
	{"Address", FieldAddress},
	{"street", FieldAddress},
	{"Street", FieldAddress},
	{"street_no", FieldAddress},
	{"city", FieldAddress},
	{"City", FieldAddress},
	{"province", FieldAddress},
	{"Province", FieldAddress},

	{"brgydescription", FieldBarangay},
	{"BrgyDescription", FieldBarangay},
	{"barangay", FieldBarangay},
	{"Barangay", FieldBarangay},
}

// Catalog is an immutable lookup of column variants. Build it once and pass
// it to whatever needs it.
type Catalog struct {
	mappings []Mapping
	byLower  map[string]string
	fields   []string
	required []string
}

// New builds a catalog from the given mappings. Lookups are case-insensitive;
// when two variants fold to the same key the first one wins.
func New(mappings []Mapping, required []string) *Catalog {
	c := &Catalog{
		mappings: append([]Mapping(nil), mappings...),
		byLower:  make(map[string]string, len(mappings)),
		required: append([]string(nil), required...),
	}

	seen := make(map[string]bool)
	for _, m := range c.mappings {
		key := strings.ToLower(m.Variant)
		if _, ok := c.byLower[key]; !ok {
			c.byLower[key] = m.Field
		}
		if !seen[m.Field] {
			seen[m.Field] = true
			c.fields = append(c.fields, m.Field)
		}
	}

	return c
}

// Default returns the catalog of person identity fields.
func Default() *Catalog {
	return New(defaultMappings, []string{FieldFirstName, FieldLastName})
}

// Lookup resolves a column name to its canonical field.
func (c *Catalog) Lookup(column string) (string, bool) {
	field, ok := c.byLower[strings.ToLower(strings.TrimSpace(column))]
	return field, ok
}

// IsCoreField reports whether the column is a known variant.
func (c *Catalog) IsCoreField(column string) bool {
	_, ok := c.Lookup(column)
	return ok
}

// Variations lists every variant of a canonical field in declaration order.
func (c *Catalog) Variations(field string) []string {
	var out []string
	for _, m := range c.mappings {
		if m.Field == field {
			out = append(out, m.Variant)
		}
	}
	return out
}

// AllVariations lists every known variant in declaration order.
func (c *Catalog) AllVariations() []string {
	out := make([]string, len(c.mappings))
	for i, m := range c.mappings {
		out[i] = m.Variant
	}
	return out
}

// RequiredFields returns the canonical fields every row must carry.
func (c *Catalog) RequiredFields() []string {
	return append([]string(nil), c.required...)
}

// Fields returns the canonical fields in first-seen order.
func (c *Catalog) Fields() []string {
	return append([]string(nil), c.fields...)
}

// IsField reports whether name is one of the canonical fields.
func (c *Catalog) IsField(name string) bool {
	for _, f := range c.fields {
		if f == name {
			return true
		}
	}
	return false
}

// IsValidFieldName checks custom field names (letters, digits, underscores).
func IsValidFieldName(name string) bool {
	return fieldNamePattern.MatchString(name)
}
