package property

import (
	"slices"
	"sort"
	"strings"

	"github.com/kalambet/clipd/internal/notion"
)

// Option is one allowed value of a choice column.
type Option struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Column is a typed column of the target database.
type Column struct {
	Name    string   `json:"name"`
	Type    Type     `json:"type"`
	Options []Option `json:"options,omitempty"`
}

// OptionNames returns the option labels in schema order.
func (c Column) OptionNames() []string {
	names := make([]string, len(c.Options))
	for i, o := range c.Options {
		names[i] = o.Name
	}
	return names
}

// CanonicalOption finds the option equal to name ignoring case and returns
// its exact label.
func (c Column) CanonicalOption(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, o := range c.Options {
		if strings.EqualFold(o.Name, name) {
			return o.Name, true
		}
	}
	return "", false
}

// Schema is the supported subset of a database's columns.
type Schema struct {
	Title   string   `json:"title"`
	Columns []Column `json:"columns"`
}

// SchemaFromDatabase converts a Notion database into a Schema, dropping
// columns of unsupported types. Columns are sorted by name so that two
// fetches of an unchanged database compare equal.
func SchemaFromDatabase(db *notion.Database) Schema {
	s := Schema{Title: notion.Text(db.Title)}
	for name, p := range db.Properties {
		t, ok := ParseType(p.Type)
		if !ok {
			continue
		}
		col := Column{Name: name, Type: t}
		var cfg *notion.SelectConfig
		switch t {
		case TypeSelect:
			cfg = p.Select
		case TypeMultiSelect:
			cfg = p.MultiSelect
		case TypeStatus:
			cfg = p.Status
		}
		if cfg != nil {
			for _, o := range cfg.Options {
				col.Options = append(col.Options, Option{Name: o.Name, Color: o.Color})
			}
		}
		s.Columns = append(s.Columns, col)
	}
	sort.Slice(s.Columns, func(i, j int) bool { return s.Columns[i].Name < s.Columns[j].Name })
	return s
}

// Column looks up a column by exact name.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnsOfType returns the columns of type t in schema order.
func (s Schema) ColumnsOfType(t Type) []Column {
	var out []Column
	for _, c := range s.Columns {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// Equal reports whether two schemas describe the same columns and options.
func (s Schema) Equal(o Schema) bool {
	if s.Title != o.Title {
		return false
	}
	return slices.EqualFunc(s.Columns, o.Columns, func(a, b Column) bool {
		return a.Name == b.Name && a.Type == b.Type && slices.Equal(a.Options, b.Options)
	})
}
