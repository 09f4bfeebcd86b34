// Package form turns a database schema, page signals, an optional existing
// row and the user's layout preferences into an ordered list of fields.
package form

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/kalambet/clipd/internal/extract"
	"github.com/kalambet/clipd/internal/match"
	"github.com/kalambet/clipd/internal/notion"
	"github.com/kalambet/clipd/internal/property"
)

var (
	ErrUnknownField = errors.New("unknown field")
	ErrHiddenField  = errors.New("field is hidden")
)

// typePriority orders columns the user has not placed explicitly.
var typePriority = map[property.Type]int{
	property.TypeTitle:       0,
	property.TypeURL:         1,
	property.TypeSelect:      2,
	property.TypeStatus:      3,
	property.TypeMultiSelect: 4,
	property.TypeRichText:    5,
	property.TypeNumber:      6,
	property.TypeDate:        7,
	property.TypeCheckbox:    8,
	property.TypeEmail:       9,
	property.TypePhone:       10,
}

// TypePriority returns the display rank of t; lower sorts first.
func TypePriority(t property.Type) int {
	if p, ok := typePriority[t]; ok {
		return p
	}
	return len(typePriority)
}

// Field is one rendered form input.
type Field struct {
	Name    string          `json:"name"`
	Type    property.Type   `json:"type"`
	Value   property.Value  `json:"-"`
	Visible bool            `json:"visible"`
	Order   int             `json:"order"`
	Widget  property.Widget `json:"widget"`
	Purpose Purpose         `json:"-"`
}

// Preferences are the user's layout overrides. They outlive any one schema.
type Preferences struct {
	Hidden []string `json:"hidden"`
	Order  []string `json:"order"`
}

// IsHidden reports whether the column named name is hidden.
func (p Preferences) IsHidden(name string) bool {
	return slices.Contains(p.Hidden, name)
}

// Row is an existing database row with its values parsed for the form.
type Row struct {
	ID     string
	Values map[string]property.Value
}

// ParseRow parses the columns of page that exist in schema.
func ParseRow(schema property.Schema, page *notion.Page) *Row {
	row := &Row{ID: page.ID, Values: make(map[string]property.Value, len(schema.Columns))}
	for _, col := range schema.Columns {
		pv, ok := page.Properties[col.Name]
		if !ok {
			continue
		}
		row.Values[col.Name] = property.Parse(col.Type, &pv)
	}
	return row
}

// Input is everything a render pass depends on.
type Input struct {
	Schema   property.Schema
	Signals  extract.Signals
	Existing *Row
	Prefs    Preferences
}

// Form is the result of a render pass: visible fields in display order and
// hidden fields kept aside for un-hiding.
type Form struct {
	Fields []Field `json:"fields"`
	Hidden []Field `json:"hidden"`
}

// Synthesize builds a form from in. It is deterministic: the same input
// always yields the same fields in the same order.
func Synthesize(in Input) Form {
	var visible, hidden []Field
	for _, col := range in.Schema.Columns {
		w, ok := property.Render(col)
		if !ok {
			continue
		}
		f := Field{
			Name:    col.Name,
			Type:    col.Type,
			Widget:  w,
			Purpose: Classify(col.Name),
		}
		if v, ok := existingValue(in.Existing, col.Name); ok {
			f.Value = v
		} else {
			f.Value = defaultValue(col, f.Purpose, in.Signals)
		}
		if in.Prefs.IsHidden(col.Name) {
			hidden = append(hidden, f)
			continue
		}
		f.Visible = true
		visible = append(visible, f)
	}

	visible = order(visible, in.Prefs.Order)
	hidden = order(hidden, nil)
	for i := range visible {
		visible[i].Order = i
	}
	for i := range hidden {
		hidden[i].Order = i
	}
	return Form{Fields: visible, Hidden: hidden}
}

func existingValue(row *Row, name string) (property.Value, bool) {
	if row == nil {
		return property.Value{}, false
	}
	v, ok := row.Values[name]
	return v, ok
}

// order places fields named in saved first, in that order, then appends
// the rest by type priority and name.
func order(fields []Field, saved []string) []Field {
	rank := make(map[string]int, len(saved))
	for i, name := range saved {
		if _, dup := rank[name]; !dup {
			rank[name] = i
		}
	}
	sort.SliceStable(fields, func(i, j int) bool {
		ri, iok := rank[fields[i].Name]
		rj, jok := rank[fields[j].Name]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		}
		pi, pj := TypePriority(fields[i].Type), TypePriority(fields[j].Type)
		if pi != pj {
			return pi < pj
		}
		return fields[i].Name < fields[j].Name
	})
	return fields
}

// defaultValue is the pre-population policy for a column with no existing value.
func defaultValue(col property.Column, purpose Purpose, s extract.Signals) property.Value {
	switch col.Type {
	case property.TypeTitle:
		if purpose == PurposeCompany {
			return property.TextValue(firstNonEmpty(s.CompanyName, s.Title))
		}
		return property.TextValue(firstNonEmpty(s.RoleName, s.Title))
	case property.TypeURL:
		if purpose == PurposeCompany {
			return property.Value{}
		}
		return property.TextValue(s.URL)
	case property.TypeRichText:
		switch purpose {
		case PurposeRawJD:
			return property.TextValue(s.SelectedText)
		case PurposeCompany:
			return property.TextValue(s.CompanyName)
		case PurposeRole:
			return property.TextValue(s.RoleName)
		case PurposeLocation:
			return property.TextValue(s.Location)
		}
	case property.TypeSelect, property.TypeStatus:
		switch purpose {
		case PurposeLocation:
			if m, ok := match.Match(s.Location, col.OptionNames()); ok {
				return property.TextValue(m)
			}
		case PurposeCompany:
			if m, ok := match.MatchExact(s.CompanyName, col.OptionNames()); ok {
				return property.TextValue(m)
			}
		}
	}
	return property.Value{}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Field returns the visible field called name.
func (f *Form) Field(name string) (*Field, bool) {
	for i := range f.Fields {
		if f.Fields[i].Name == name {
			return &f.Fields[i], true
		}
	}
	return nil, false
}

// Set replaces the value of a visible field.
func (f *Form) Set(name string, v property.Value) error {
	if fld, ok := f.Field(name); ok {
		fld.Value = v
		return nil
	}
	for _, h := range f.Hidden {
		if h.Name == name {
			return fmt.Errorf("%w: %s", ErrHiddenField, name)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownField, name)
}

// Clone returns a deep copy of f.
func (f Form) Clone() Form {
	c := Form{
		Fields: slices.Clone(f.Fields),
		Hidden: slices.Clone(f.Hidden),
	}
	for i := range c.Fields {
		c.Fields[i].Value.Names = slices.Clone(c.Fields[i].Value.Names)
		c.Fields[i].Widget.Options = slices.Clone(c.Fields[i].Widget.Options)
	}
	for i := range c.Hidden {
		c.Hidden[i].Value.Names = slices.Clone(c.Hidden[i].Value.Names)
		c.Hidden[i].Widget.Options = slices.Clone(c.Hidden[i].Widget.Options)
	}
	return c
}
