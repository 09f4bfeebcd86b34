package session

import (
	"github.com/kalambet/clipd/internal/form"
	"github.com/kalambet/clipd/internal/property"
)

// FieldView is a field as the shell renders it.
type FieldView struct {
	Name    string          `json:"name"`
	Type    property.Type   `json:"type"`
	Value   any             `json:"value"`
	Visible bool            `json:"visible"`
	Order   int             `json:"order"`
	Widget  property.Widget `json:"widget"`
}

// View is a read-only snapshot of a session for the shell.
type View struct {
	ID            string      `json:"id"`
	Phase         Phase       `json:"phase"`
	Mode          Mode        `json:"mode"`
	Activity      Activity    `json:"activity"`
	Database      string      `json:"database"`
	URL           string      `json:"url"`
	URLColumn     string      `json:"urlColumn,omitempty"`
	Fields        []FieldView `json:"fields"`
	Hidden        []FieldView `json:"hidden"`
	SubmitLabel   string      `json:"submitLabel"`
	ExistingRowID string      `json:"existingRowId,omitempty"`
	AIAvailable   bool        `json:"aiAvailable"`
	Error         string      `json:"error,omitempty"`
}

// View returns a snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:          s.id,
		Phase:       s.phase,
		Mode:        s.mode,
		Activity:    s.activity,
		Database:    s.schema.Title,
		URL:         s.signals.URL,
		URLColumn:   s.urlColumn,
		Fields:      fieldViews(s.form.Fields),
		Hidden:      fieldViews(s.form.Hidden),
		SubmitLabel: s.mode.SubmitLabel(),
		AIAvailable: s.filler != nil,
		Error:       s.lastErr,
	}
	if s.mode == ModeExisting {
		v.ExistingRowID = s.rowID
	}
	return v
}

func fieldViews(fields []form.Field) []FieldView {
	out := make([]FieldView, len(fields))
	for i, f := range fields {
		out[i] = FieldView{
			Name:    f.Name,
			Type:    f.Type,
			Value:   f.Value.Interface(f.Type),
			Visible: f.Visible,
			Order:   f.Order,
			Widget:  f.Widget,
		}
	}
	return out
}
