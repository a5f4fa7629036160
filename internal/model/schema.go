package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Schema selects the column layout shared by run outputs and duplicate ledgers.
type Schema string

const (
	// SchemaExtended is [date, shop_name, phone_number, location_text, area_location].
	SchemaExtended Schema = "extended"
	// SchemaLegacy is [date, shop_name, phone_number, area_location].
	SchemaLegacy Schema = "legacy"
)

// ParseSchema converts a config string into a Schema.
func ParseSchema(s string) (Schema, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(SchemaExtended):
		return SchemaExtended, nil
	case string(SchemaLegacy):
		return SchemaLegacy, nil
	default:
		return "", eris.Errorf("unknown ledger schema: %q (valid: extended, legacy)", s)
	}
}

// Header returns the fixed header row.
func (s Schema) Header() []string {
	if s == SchemaLegacy {
		return []string{"date", "shop_name", "phone_number", "area_location"}
	}
	return []string{"date", "shop_name", "phone_number", "location_text", "area_location"}
}

// ReferenceColumn is the zero-based column holding the location reference.
func (s Schema) ReferenceColumn() int {
	if s == SchemaLegacy {
		return 3
	}
	return 4
}

// NameColumn is the zero-based column holding the listing name.
func (s Schema) NameColumn() int { return 1 }

// Row lays out e in schema order.
func (s Schema) Row(e Entry) []string {
	if s == SchemaLegacy {
		return []string{e.Date, e.Name, e.Phone, e.LocationReference}
	}
	return []string{e.Date, e.Name, e.Phone, e.LocationText, e.LocationReference}
}

// KeyOf derives the identity key of a stored row. ok is false for blank rows.
func (s Schema) KeyOf(row []string) (IdentityKey, bool) {
	k := NewIdentityKey(cell(row, s.NameColumn()), cell(row, s.ReferenceColumn()))
	return k, !k.IsZero()
}

// IsBlankRow reports whether every cell is empty after trimming.
func IsBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
