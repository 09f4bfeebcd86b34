package autofill

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kalambet/clipd/internal/property"
	"github.com/kalambet/clipd/internal/proxy"
)

const systemPrompt = `You extract structured data from a web page (usually a job posting) to fill a database row. Your output must be ONLY a single valid JSON object whose keys are column names from the list below. Do not include any other text, prose, or markdown.

Rules:
- Only use column names from the list. Omit a column, or set it to null, when the text does not say.
- For columns with a list of allowed values, answer with one of those values exactly. Never invent a new value.
- Do not guess. Leave a column out rather than fill it with something the text does not support.

Columns:`

// typeSemantics explains to the model what a value of each type looks like.
var typeSemantics = map[property.Type]string{
	property.TypeTitle:       "short single-line text, the main name of the row",
	property.TypeRichText:    "free text",
	property.TypeURL:         "an absolute URL",
	property.TypeNumber:      "a JSON number without units or currency symbols",
	property.TypeCheckbox:    "true or false",
	property.TypeSelect:      "exactly one of the allowed values",
	property.TypeStatus:      "exactly one of the allowed values",
	property.TypeMultiSelect: "a JSON array of allowed values",
	property.TypeDate:        "a date as YYYY-MM-DD",
	property.TypeEmail:       "an email address",
	property.TypePhone:       "a phone number",
}

// BuildPrompt constructs the chat messages asking the model to fill columns from text.
func BuildPrompt(columns []property.Column, text string) []proxy.Message {
	var sb strings.Builder
	sb.WriteString(systemPrompt)
	for _, col := range columns {
		sem, ok := typeSemantics[col.Type]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "\n- %s (%s): %s", strconv.Quote(col.Name), col.Type, sem)
		if col.Type.IsChoice() && len(col.Options) > 0 {
			quoted := make([]string, len(col.Options))
			for i, o := range col.Options {
				quoted[i] = strconv.Quote(o.Name)
			}
			fmt.Fprintf(&sb, ". Allowed values: %s", strings.Join(quoted, ", "))
		}
	}

	return []proxy.Message{
		{Role: "system", Content: sb.String()},
		{Role: "user", Content: text},
	}
}
