package property

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/kalambet/clipd/internal/notion"
)

// MaxRunLength is Notion's limit on a single rich text run, in UTF-16 code units.
const MaxRunLength = 2000

// Value is the form-side value of a field. Which member is meaningful
// depends on the column type: Checked for checkbox, Names for multi_select,
// Text for everything else (a select holds its option label in Text, a
// number its decimal text, a date its YYYY-MM-DD form).
type Value struct {
	Text    string
	Checked bool
	Names   []string
}

// TextValue is shorthand for a Value carrying text.
func TextValue(s string) Value { return Value{Text: s} }

// IsZero reports whether v is the empty value for type t.
func (v Value) IsZero(t Type) bool {
	switch t {
	case TypeCheckbox:
		return !v.Checked
	case TypeMultiSelect:
		return len(v.Names) == 0
	}
	return strings.TrimSpace(v.Text) == ""
}

// Equal reports whether v and o are the same value of type t.
func (v Value) Equal(t Type, o Value) bool {
	switch t {
	case TypeCheckbox:
		return v.Checked == o.Checked
	case TypeMultiSelect:
		if len(v.Names) != len(o.Names) {
			return false
		}
		for i := range v.Names {
			if v.Names[i] != o.Names[i] {
				return false
			}
		}
		return true
	}
	return v.Text == o.Text
}

// Serialize converts a form value to the wire value for type t. Empty or
// unparseable input yields the type's null value. It returns false only for
// unsupported types.
func Serialize(t Type, v Value) (notion.PropertyValue, bool) {
	pv := notion.PropertyValue{Type: t.String()}
	switch t {
	case TypeTitle:
		pv.Title = []notion.RichText{notion.TextRun(truncateUnits(v.Text, MaxRunLength))}
	case TypeRichText:
		for _, chunk := range ChunkText(v.Text, MaxRunLength) {
			pv.RichText = append(pv.RichText, notion.TextRun(chunk))
		}
	case TypeURL:
		pv.URL = optionalString(v.Text)
	case TypeEmail:
		pv.Email = optionalString(v.Text)
	case TypePhone:
		pv.PhoneNumber = optionalString(v.Text)
	case TypeNumber:
		pv.Number = parseNumber(v.Text)
	case TypeCheckbox:
		checked := v.Checked
		pv.Checkbox = &checked
	case TypeSelect:
		pv.Select = optionalSelect(v.Text)
	case TypeStatus:
		pv.Status = optionalSelect(v.Text)
	case TypeMultiSelect:
		pv.MultiSelect = []notion.SelectValue{}
		seen := make(map[string]bool, len(v.Names))
		for _, n := range v.Names {
			n = strings.TrimSpace(n)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			pv.MultiSelect = append(pv.MultiSelect, notion.SelectValue{Name: n})
		}
	case TypeDate:
		if d, ok := normalizeDate(v.Text); ok {
			pv.Date = &notion.DateValue{Start: d}
		}
	default:
		return notion.PropertyValue{}, false
	}
	return pv, true
}

// Parse converts a wire value back to a form value for type t. Missing or
// null members yield the type's empty value.
func Parse(t Type, pv *notion.PropertyValue) Value {
	if pv == nil {
		return Value{}
	}
	switch t {
	case TypeTitle:
		return Value{Text: notion.Text(pv.Title)}
	case TypeRichText:
		return Value{Text: notion.Text(pv.RichText)}
	case TypeURL:
		return Value{Text: deref(pv.URL)}
	case TypeEmail:
		return Value{Text: deref(pv.Email)}
	case TypePhone:
		return Value{Text: deref(pv.PhoneNumber)}
	case TypeNumber:
		if pv.Number == nil {
			return Value{}
		}
		return Value{Text: strconv.FormatFloat(*pv.Number, 'f', -1, 64)}
	case TypeCheckbox:
		return Value{Checked: pv.Checkbox != nil && *pv.Checkbox}
	case TypeSelect:
		if pv.Select == nil {
			return Value{}
		}
		return Value{Text: pv.Select.Name}
	case TypeStatus:
		if pv.Status == nil {
			return Value{}
		}
		return Value{Text: pv.Status.Name}
	case TypeMultiSelect:
		var names []string
		for _, s := range pv.MultiSelect {
			names = append(names, s.Name)
		}
		return Value{Names: names}
	case TypeDate:
		if pv.Date == nil || len(pv.Date.Start) < len(time.DateOnly) {
			return Value{}
		}
		return Value{Text: pv.Date.Start[:len(time.DateOnly)]}
	}
	return Value{}
}

// IsEmpty reports whether a serialized value carries nothing worth sending.
// Whitespace-only text is empty.
// A checkbox is never empty: false is a value.
func IsEmpty(pv notion.PropertyValue) bool {
	switch pv.Type {
	case "title":
		return strings.TrimSpace(notion.Text(pv.Title)) == ""
	case "rich_text":
		return strings.TrimSpace(notion.Text(pv.RichText)) == ""
	case "url":
		return pv.URL == nil
	case "email":
		return pv.Email == nil
	case "phone_number":
		return pv.PhoneNumber == nil
	case "number":
		return pv.Number == nil
	case "checkbox":
		return false
	case "select":
		return pv.Select == nil
	case "status":
		return pv.Status == nil
	case "multi_select":
		return len(pv.MultiSelect) == 0
	case "date":
		return pv.Date == nil
	}
	return true
}

// ChunkText splits s into pieces of at most max UTF-16 code units without
// splitting a surrogate pair. It always returns at least one piece.
func ChunkText(s string, max int) []string {
	if max <= 1 {
		max = 2
	}
	var (
		chunks []string
		start  int
		units  int
	)
	for i, r := range s {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		if units+n > max {
			chunks = append(chunks, s[start:i])
			start = i
			units = 0
		}
		units += n
	}
	return append(chunks, s[start:])
}

// Interface returns v as a plain JSON-friendly value for type t: bool for
// checkbox, []string for multi_select, string otherwise.
func (v Value) Interface(t Type) any {
	switch t {
	case TypeCheckbox:
		return v.Checked
	case TypeMultiSelect:
		if v.Names == nil {
			return []string{}
		}
		return v.Names
	}
	return v.Text
}

// Coerce converts a decoded JSON value into a Value for type t. It accepts
// the shapes Interface produces, plus numbers for number columns and a
// single string for multi_select.
func Coerce(t Type, raw any) (Value, error) {
	if raw == nil {
		return Value{}, nil
	}
	switch t {
	case TypeCheckbox:
		switch x := raw.(type) {
		case bool:
			return Value{Checked: x}, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(x))
			if err != nil {
				return Value{}, fmt.Errorf("checkbox value %q is not a boolean", x)
			}
			return Value{Checked: b}, nil
		}
	case TypeMultiSelect:
		switch x := raw.(type) {
		case string:
			if strings.TrimSpace(x) == "" {
				return Value{}, nil
			}
			var names []string
			for _, n := range strings.Split(x, ",") {
				if n = strings.TrimSpace(n); n != "" {
					names = append(names, n)
				}
			}
			return Value{Names: names}, nil
		case []string:
			return Value{Names: append([]string(nil), x...)}, nil
		case []any:
			names := make([]string, 0, len(x))
			for _, e := range x {
				s, ok := e.(string)
				if !ok {
					return Value{}, fmt.Errorf("multi_select entries must be strings, got %T", e)
				}
				names = append(names, s)
			}
			return Value{Names: names}, nil
		}
	default:
		switch x := raw.(type) {
		case string:
			return Value{Text: x}, nil
		case float64:
			return Value{Text: strconv.FormatFloat(x, 'f', -1, 64)}, nil
		case bool:
			return Value{Text: strconv.FormatBool(x)}, nil
		}
	}
	return Value{}, fmt.Errorf("cannot use %T as %s value", raw, t)
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func optionalSelect(s string) *notion.SelectValue {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &notion.SelectValue{Name: s}
}

func parseNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// normalizeDate accepts YYYY-MM-DD or any longer ISO timestamp that starts
// with one and returns the date part.
func normalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < len(time.DateOnly) {
		return "", false
	}
	d := s[:len(time.DateOnly)]
	if _, err := time.Parse(time.DateOnly, d); err != nil {
		return "", false
	}
	if len(s) > len(d) && s[len(d)] != 'T' && s[len(d)] != ' ' {
		return "", false
	}
	return d, true
}

func truncateUnits(s string, max int) string {
	return ChunkText(s, max)[0]
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
