package normalizer

import (
	"encoding/json"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/dates"
	"github.com/Ramsey-B/fern/pkg/record"
)

// MaxDynamicBytes bounds the JSON encoding of a record's dynamic fields
const MaxDynamicBytes = 65535

var properCaseFields = []string{
	catalog.FieldLastName,
	catalog.FieldFirstName,
	catalog.FieldMiddleName,
	catalog.FieldSuffix,
	catalog.FieldCivilStatus,
	catalog.FieldAddress,
	catalog.FieldBarangay,
}

// Standardize returns a copy of rec with display formatting applied: names
// and places proper-cased, birthday as YYYY-MM-DD (dropped when it cannot be
// read), gender folded to Male / Female. The uid is left as uploaded.
func Standardize(rec record.Canonical) record.Canonical {
	out := record.NewCanonical()
	for k, v := range rec.Core {
		if v != nil {
			out.Set(k, *v)
		}
	}
	for k, v := range rec.Dynamic {
		out.Dynamic[k] = v
	}

	caser := cases.Title(language.Und)
	for _, field := range properCaseFields {
		if out.Has(field) {
			out.Set(field, caser.String(out.Field(field)))
		}
	}

	if out.Has(catalog.FieldBirthday) {
		out.Set(catalog.FieldBirthday, dates.Format(out.Field(catalog.FieldBirthday)))
	}
	if out.Has(catalog.FieldGender) {
		out.Set(catalog.FieldGender, StandardizeGender(out.Field(catalog.FieldGender)))
	}

	return out
}

func StandardizeGender(s string) string {
	g := strings.ToUpper(strings.TrimSpace(s))
	switch g {
	case "M", "MALE":
		return "Male"
	case "F", "FEMALE":
		return "Female"
	}
	return g
}

// FitDynamic returns dynamic unchanged when its JSON encoding fits within
// limit bytes, otherwise nil and false.
func FitDynamic(dynamic map[string]record.Value, limit int) (map[string]record.Value, bool) {
	if len(dynamic) == 0 {
		return dynamic, true
	}
	b, err := json.Marshal(dynamic)
	if err != nil || len(b) > limit {
		return nil, false
	}
	return dynamic, true
}
