package record

// Canonical is the normalized shape of one uploaded row. Core holds catalog
// fields (nil means absent), Dynamic holds every other column under its
// normalized key.
type Canonical struct {
	Core    map[string]*string `json:"core_fields"`
	Dynamic map[string]Value   `json:"dynamic_fields"`
}

func NewCanonical() Canonical {
	return Canonical{
		Core:    make(map[string]*string),
		Dynamic: make(map[string]Value),
	}
}

// Field returns the core value or "" when absent.
func (c Canonical) Field(name string) string {
	if v := c.Core[name]; v != nil {
		return *v
	}
	return ""
}

// Has reports whether a core field carries a non-empty value.
func (c Canonical) Has(name string) bool {
	v := c.Core[name]
	return v != nil && *v != ""
}

// Set stores a core value; empty strings clear the field.
func (c Canonical) Set(name, value string) {
	if value == "" {
		delete(c.Core, name)
		return
	}
	c.Core[name] = &value
}
