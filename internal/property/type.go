// Package property is the registry of column types clipd understands. For
// each type it defines how a field is rendered, how a form value is
// serialized to the Notion wire format, and how a wire value is parsed back.
package property

import "fmt"

// Type is a column type. The zero value is TypeUnsupported; columns of that
// type are dropped from every schema.
type Type int

const (
	TypeUnsupported Type = iota
	TypeTitle
	TypeRichText
	TypeURL
	TypeNumber
	TypeCheckbox
	TypeSelect
	TypeMultiSelect
	TypeDate
	TypeEmail
	TypePhone
	TypeStatus
)

var wireNames = [...]string{
	TypeUnsupported: "unsupported",
	TypeTitle:       "title",
	TypeRichText:    "rich_text",
	TypeURL:         "url",
	TypeNumber:      "number",
	TypeCheckbox:    "checkbox",
	TypeSelect:      "select",
	TypeMultiSelect: "multi_select",
	TypeDate:        "date",
	TypeEmail:       "email",
	TypePhone:       "phone_number",
	TypeStatus:      "status",
}

// Types lists every supported type.
var Types = []Type{
	TypeTitle, TypeRichText, TypeURL, TypeNumber, TypeCheckbox, TypeSelect,
	TypeMultiSelect, TypeDate, TypeEmail, TypePhone, TypeStatus,
}

// ParseType maps a Notion property type name to a Type. The second return
// is false for types clipd does not support (formula, relation, people...).
func ParseType(s string) (Type, bool) {
	for _, t := range Types {
		if wireNames[t] == s {
			return t, true
		}
	}
	return TypeUnsupported, false
}

// String returns the Notion wire name of the type.
func (t Type) String() string {
	if t < 0 || int(t) >= len(wireNames) {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return wireNames[t]
}

// Supported reports whether t is one of the registry's types.
func (t Type) Supported() bool {
	return t > TypeUnsupported && int(t) < len(wireNames)
}

// IsChoice reports whether values of t are constrained to the column's options.
func (t Type) IsChoice() bool {
	return t == TypeSelect || t == TypeMultiSelect || t == TypeStatus
}

func (t Type) MarshalText() ([]byte, error) {
	if !t.Supported() {
		return nil, fmt.Errorf("unsupported property type %d", int(t))
	}
	return []byte(wireNames[t]), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	parsed, ok := ParseType(string(b))
	if !ok {
		return fmt.Errorf("unsupported property type %q", b)
	}
	*t = parsed
	return nil
}
