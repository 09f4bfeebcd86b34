// Package payload converts rendered form fields into the property map sent
// to Notion when a row is created or updated.
package payload

import (
	"github.com/kalambet/clipd/internal/form"
	"github.com/kalambet/clipd/internal/notion"
	"github.com/kalambet/clipd/internal/property"
)

// Placeholder replaces an empty title; Notion requires the title column.
const Placeholder = "Untitled"

// Build returns the wire property map for fields. Hidden fields are skipped
// without being looked at. Fields whose serialized value is empty are
// omitted, except the title, which falls back to Placeholder.
func Build(fields []form.Field) map[string]notion.PropertyValue {
	out := make(map[string]notion.PropertyValue, len(fields))
	for _, f := range fields {
		if !f.Visible {
			continue
		}
		pv, ok := property.Serialize(f.Type, f.Value)
		if !ok {
			continue
		}
		if f.Type == property.TypeTitle && property.IsEmpty(pv) {
			pv, _ = property.Serialize(f.Type, property.TextValue(Placeholder))
		}
		if property.IsEmpty(pv) {
			continue
		}
		out[f.Name] = pv
	}
	return out
}
