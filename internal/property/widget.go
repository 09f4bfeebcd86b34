package property

// WidgetKind names the input control a shell should draw for a field.
type WidgetKind string

const (
	WidgetText     WidgetKind = "text"
	WidgetTextArea WidgetKind = "textarea"
	WidgetNumber   WidgetKind = "number"
	WidgetToggle   WidgetKind = "toggle"
	WidgetSelect   WidgetKind = "select"
	WidgetTags     WidgetKind = "tags"
	WidgetDate     WidgetKind = "date"
)

// Widget describes the input control for one column.
type Widget struct {
	Kind WidgetKind `json:"kind"`
	// InputType is the HTML input type for WidgetText: text, url, email or tel.
	InputType string `json:"inputType,omitempty"`
	// Step is "any" for numeric inputs.
	Step    string   `json:"step,omitempty"`
	Options []Option `json:"options,omitempty"`
	// AllowEmpty is set when a single-choice list offers an unset entry.
	AllowEmpty bool `json:"allowEmpty,omitempty"`
}

// Render returns the widget for col. It returns false for unsupported types.
func Render(col Column) (Widget, bool) {
	switch col.Type {
	case TypeTitle:
		return Widget{Kind: WidgetText, InputType: "text"}, true
	case TypeURL:
		return Widget{Kind: WidgetText, InputType: "url"}, true
	case TypeEmail:
		return Widget{Kind: WidgetText, InputType: "email"}, true
	case TypePhone:
		return Widget{Kind: WidgetText, InputType: "tel"}, true
	case TypeRichText:
		return Widget{Kind: WidgetTextArea}, true
	case TypeNumber:
		return Widget{Kind: WidgetNumber, Step: "any"}, true
	case TypeCheckbox:
		return Widget{Kind: WidgetToggle}, true
	case TypeSelect, TypeStatus:
		return Widget{Kind: WidgetSelect, Options: cloneOptions(col.Options), AllowEmpty: true}, true
	case TypeMultiSelect:
		return Widget{Kind: WidgetTags, Options: cloneOptions(col.Options)}, true
	case TypeDate:
		return Widget{Kind: WidgetDate}, true
	}
	return Widget{}, false
}

func cloneOptions(opts []Option) []Option {
	if opts == nil {
		return []Option{}
	}
	return append([]Option(nil), opts...)
}
