// Package autofill asks a completion model to fill form fields from page
// text and applies only the answers that fit the schema.
package autofill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/kalambet/clipd/internal/form"
	"github.com/kalambet/clipd/internal/property"
	"github.com/kalambet/clipd/internal/proxy"
)

const DefaultTimeout = 45 * time.Second

var (
	ErrEmptyResponse     = errors.New("ai returned an empty response")
	ErrMalformedResponse = errors.New("ai response is not a JSON object")
)

// Completer is the interface for chat completion.
type Completer interface {
	Complete(ctx context.Context, req proxy.ChatRequest) (string, error)
}

// Filler runs the auto-fill request/response cycle.
type Filler struct {
	client  Completer
	model   string
	timeout time.Duration
}

// NewFiller creates a Filler using the given client and model name.
func NewFiller(client Completer, model string, timeout time.Duration) *Filler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Filler{client: client, model: model, timeout: timeout}
}

// Fill asks the model for values of columns based on text. The result only
// holds values that are valid for their column: choice answers outside the
// option list and unparseable values are dropped. Any failure returns an
// error and no values.
func (f *Filler) Fill(ctx context.Context, columns []property.Column, text string) (map[string]property.Value, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	temperature := 0.0
	raw, err := f.client.Complete(ctx, proxy.ChatRequest{
		Model:          f.model,
		Messages:       BuildPrompt(columns, text),
		Temperature:    &temperature,
		ResponseFormat: &proxy.ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, err
	}

	answers, err := ParseResponse(raw)
	if err != nil {
		slog.Warn("auto-fill response rejected", "error", err, "response_len", len(raw))
		return nil, err
	}
	return Resolve(columns, answers), nil
}

var fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\n?(.*?)\\s*```$")

// ParseResponse decodes the model's answer into a JSON object, unwrapping a
// markdown code fence if present.
func ParseResponse(raw string) (map[string]any, error) {
	s := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	if s == "" {
		return nil, ErrEmptyResponse
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out == nil {
		return nil, ErrMalformedResponse
	}
	return out, nil
}

// Resolve converts raw answers into form values for the known columns.
// Column names are matched exactly first, then ignoring case.
func Resolve(columns []property.Column, answers map[string]any) map[string]property.Value {
	lower := make(map[string]any, len(answers))
	for k, v := range answers {
		lower[strings.ToLower(strings.TrimSpace(k))] = v
	}

	out := make(map[string]property.Value)
	for _, col := range columns {
		raw, ok := answers[col.Name]
		if !ok {
			raw, ok = lower[strings.ToLower(col.Name)]
		}
		if !ok || raw == nil {
			continue
		}
		v, ok := resolveValue(col, raw)
		if !ok {
			continue
		}
		out[col.Name] = v
	}
	return out
}

func resolveValue(col property.Column, raw any) (property.Value, bool) {
	v, err := property.Coerce(col.Type, raw)
	if err != nil {
		return property.Value{}, false
	}
	switch col.Type {
	case property.TypeSelect, property.TypeStatus:
		name, ok := col.CanonicalOption(v.Text)
		if !ok {
			return property.Value{}, false
		}
		v.Text = name
	case property.TypeMultiSelect:
		var names []string
		for _, n := range v.Names {
			if name, ok := col.CanonicalOption(n); ok {
				names = append(names, name)
			}
		}
		v.Names = names
	case property.TypeCheckbox:
		return v, true
	}
	pv, ok := property.Serialize(col.Type, v)
	if !ok || property.IsEmpty(pv) {
		return property.Value{}, false
	}
	// Normalise through the wire form so the field shows what will be saved.
	return property.Parse(col.Type, &pv), true
}

// Apply writes values into the visible fields of f and returns how many
// fields changed. Values for hidden or unknown fields are ignored.
func Apply(f *form.Form, values map[string]property.Value) int {
	changed := 0
	for i := range f.Fields {
		fld := &f.Fields[i]
		v, ok := values[fld.Name]
		if !ok || !fld.Visible {
			continue
		}
		if fld.Value.Equal(fld.Type, v) {
			continue
		}
		fld.Value = v
		changed++
	}
	return changed
}
