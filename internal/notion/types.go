package notion

import (
	"encoding/json"
	"time"
)

// Database is the subset of a Notion database object clipd reads: its title
// and the column schema.
type Database struct {
	Object         string                `json:"object"`
	ID             string                `json:"id"`
	LastEditedTime time.Time             `json:"last_edited_time"`
	Title          []RichText            `json:"title"`
	Properties     map[string]DBProperty `json:"properties"`
	URL            string                `json:"url"`
	Archived       bool                  `json:"archived"`
}

// DBProperty is a column definition in a database schema. Only the choice
// types carry configuration clipd needs; other types are identified by Type.
type DBProperty struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Type        string        `json:"type"`
	Select      *SelectConfig `json:"select,omitempty"`
	MultiSelect *SelectConfig `json:"multi_select,omitempty"`
	Status      *SelectConfig `json:"status,omitempty"`
}

// SelectConfig lists the allowed options of a select, multi_select or status column.
type SelectConfig struct {
	Options []SelectOption `json:"options"`
}

// SelectOption is one allowed value of a choice column.
type SelectOption struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Page is a database row.
type Page struct {
	Object         string                   `json:"object"`
	ID             string                   `json:"id"`
	CreatedTime    time.Time                `json:"created_time"`
	LastEditedTime time.Time                `json:"last_edited_time"`
	Archived       bool                     `json:"archived"`
	Properties     map[string]PropertyValue `json:"properties"`
	URL            string                   `json:"url"`
}

// QueryResponse is the paginated result of a database query.
type QueryResponse struct {
	Object     string  `json:"object"`
	Results    []Page  `json:"results"`
	NextCursor *string `json:"next_cursor"`
	HasMore    bool    `json:"has_more"`
}

// PropertyValue is the wire value of one column of a row. Type names the
// populated field. Decoding uses the default struct mapping; encoding emits
// only the field named by Type so that explicit nulls and empty lists
// survive.
type PropertyValue struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`

	Title       []RichText    `json:"title,omitempty"`
	RichText    []RichText    `json:"rich_text,omitempty"`
	Number      *float64      `json:"number,omitempty"`
	Select      *SelectValue  `json:"select,omitempty"`
	MultiSelect []SelectValue `json:"multi_select,omitempty"`
	Status      *SelectValue  `json:"status,omitempty"`
	Date        *DateValue    `json:"date,omitempty"`
	Checkbox    *bool         `json:"checkbox,omitempty"`
	URL         *string       `json:"url,omitempty"`
	Email       *string       `json:"email,omitempty"`
	PhoneNumber *string       `json:"phone_number,omitempty"`
}

// MarshalJSON encodes {"<type>": <value>}.
func (p PropertyValue) MarshalJSON() ([]byte, error) {
	var v any
	switch p.Type {
	case "title":
		v = nonNilRuns(p.Title)
	case "rich_text":
		v = nonNilRuns(p.RichText)
	case "number":
		v = p.Number
	case "select":
		v = p.Select
	case "multi_select":
		if p.MultiSelect == nil {
			v = []SelectValue{}
		} else {
			v = p.MultiSelect
		}
	case "status":
		v = p.Status
	case "date":
		v = p.Date
	case "checkbox":
		v = p.Checkbox != nil && *p.Checkbox
	case "url":
		v = p.URL
	case "email":
		v = p.Email
	case "phone_number":
		v = p.PhoneNumber
	default:
		return nil, &json.UnsupportedValueError{Str: "property type " + p.Type}
	}
	return json.Marshal(map[string]any{p.Type: v})
}

func nonNilRuns(rt []RichText) []RichText {
	if rt == nil {
		return []RichText{}
	}
	return rt
}

// RichText is one formatted text run.
type RichText struct {
	Type      string       `json:"type,omitempty"`
	Text      *TextContent `json:"text,omitempty"`
	PlainText string       `json:"plain_text,omitempty"`
	Href      *string      `json:"href,omitempty"`
}

// TextContent holds the content of a text run.
type TextContent struct {
	Content string `json:"content"`
	Link    *Link  `json:"link,omitempty"`
}

// Link is a hyperlink attached to a text run.
type Link struct {
	URL string `json:"url"`
}

// SelectValue is the value of a select, status or multi_select entry.
// Requests only need Name.
type SelectValue struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// DateValue is a date property value.
type DateValue struct {
	Start    string  `json:"start"`
	End      *string `json:"end,omitempty"`
	TimeZone *string `json:"time_zone,omitempty"`
}

// Text returns the concatenated text of the runs, preferring plain_text as
// returned by the API and falling back to text.content for locally built runs.
func Text(rt []RichText) string {
	var n int
	for i := range rt {
		n += len(rt[i].PlainText)
	}
	buf := make([]byte, 0, n)
	for i := range rt {
		switch {
		case rt[i].PlainText != "":
			buf = append(buf, rt[i].PlainText...)
		case rt[i].Text != nil:
			buf = append(buf, rt[i].Text.Content...)
		}
	}
	return string(buf)
}

// TextRun builds a plain text run for a request body.
func TextRun(s string) RichText {
	return RichText{Type: "text", Text: &TextContent{Content: s}}
}

// Error is a Notion API error response body.
type Error struct {
	Object  string `json:"object"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
