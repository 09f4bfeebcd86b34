package autofill

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/kalambet/clipd/internal/form"
	"github.com/kalambet/clipd/internal/property"
	"github.com/kalambet/clipd/internal/proxy"
)

// mockCompleter implements Completer for testing.
type mockCompleter struct {
	response string
	err      error
	delay    time.Duration
	got      proxy.ChatRequest
}

func (m *mockCompleter) Complete(ctx context.Context, req proxy.ChatRequest) (string, error) {
	m.got = req
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.response, m.err
}

func testColumns() []property.Column {
	return []property.Column{
		{Name: "Name", Type: property.TypeTitle},
		{Name: "Status", Type: property.TypeSelect, Options: []property.Option{{Name: "To Review"}, {Name: "Applied"}}},
		{Name: "Skills", Type: property.TypeMultiSelect, Options: []property.Option{{Name: "Go"}, {Name: "SQL"}}},
		{Name: "Salary", Type: property.TypeNumber},
		{Name: "Remote", Type: property.TypeCheckbox},
		{Name: "Posted", Type: property.TypeDate},
		{Name: "Notes", Type: property.TypeRichText},
	}
}

func TestFill(t *testing.T) {
	mock := &mockCompleter{response: "```json\n" + `{
		"Name": "Backend Engineer",
		"status": "applied",
		"Skills": ["go", "Kubernetes", "SQL"],
		"Salary": 185000,
		"Remote": true,
		"Posted": "2024-05-01T00:00:00Z",
		"Notes": null,
		"Unknown": "x"
	}` + "\n```"}

	f := NewFiller(mock, "openai/gpt-4o-mini", time.Second)
	got, err := f.Fill(context.Background(), testColumns(), "page text")
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}

	want := map[string]property.Value{
		"Name":   property.TextValue("Backend Engineer"),
		"Status": property.TextValue("Applied"),
		"Skills": {Names: []string{"Go", "SQL"}},
		"Salary": property.TextValue("185000"),
		"Remote": {Checked: true},
		"Posted": property.TextValue("2024-05-01"),
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}

	if mock.got.Model != "openai/gpt-4o-mini" {
		t.Errorf("model = %q", mock.got.Model)
	}
	if mock.got.ResponseFormat == nil || mock.got.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v", mock.got.ResponseFormat)
	}
	if mock.got.Temperature == nil || *mock.got.Temperature != 0 {
		t.Errorf("temperature = %v", mock.got.Temperature)
	}
}

func TestFill_UnknownOptionDropped(t *testing.T) {
	mock := &mockCompleter{response: `{"Status": "Rejected", "Skills": ["Rust"]}`}
	f := NewFiller(mock, "m", time.Second)
	got, err := f.Fill(context.Background(), testColumns(), "text")
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want no values", got)
	}
}

func TestFill_Errors(t *testing.T) {
	tests := []struct {
		name string
		mock *mockCompleter
		want error
	}{
		{"empty", &mockCompleter{response: "  "}, ErrEmptyResponse},
		{"empty fence", &mockCompleter{response: "```json\n```"}, ErrEmptyResponse},
		{"prose", &mockCompleter{response: "Sure! Here is the data."}, ErrMalformedResponse},
		{"array", &mockCompleter{response: `["a"]`}, ErrMalformedResponse},
		{"null", &mockCompleter{response: `null`}, ErrMalformedResponse},
		{"transport", &mockCompleter{err: proxy.ErrRateLimited}, proxy.ErrRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFiller(tt.mock, "m", time.Second)
			got, err := f.Fill(context.Background(), testColumns(), "text")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if got != nil {
				t.Errorf("values = %v, want nil on error", got)
			}
		})
	}
}

func TestFill_Timeout(t *testing.T) {
	mock := &mockCompleter{response: `{}`, delay: time.Second}
	f := NewFiller(mock, "m", 20*time.Millisecond)

	start := time.Now()
	_, err := f.Fill(context.Background(), testColumns(), "text")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Fill took %v, want it bounded by the timeout", elapsed)
	}
}

func TestBuildPrompt(t *testing.T) {
	msgs := BuildPrompt(testColumns(), "the page")
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	sys := msgs[0].Content
	for _, want := range []string{
		`"Status" (select)`,
		`Allowed values: "To Review", "Applied"`,
		`"Salary" (number): a JSON number`,
		`"Posted" (date): a date as YYYY-MM-DD`,
		"ONLY a single valid JSON object",
	} {
		if !strings.Contains(sys, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if msgs[1].Role != "user" || msgs[1].Content != "the page" {
		t.Errorf("user message = %+v", msgs[1])
	}
}

func TestApply(t *testing.T) {
	schema := property.Schema{Columns: testColumns()}
	f := form.Synthesize(form.Input{
		Schema: schema,
		Prefs:  form.Preferences{Hidden: []string{"Notes"}},
	})
	_ = f.Set("Name", property.TextValue("Backend Engineer"))

	changed := Apply(&f, map[string]property.Value{
		"Name":   property.TextValue("Backend Engineer"),
		"Status": property.TextValue("Applied"),
		"Notes":  property.TextValue("hidden, ignored"),
		"Ghost":  property.TextValue("unknown, ignored"),
	})
	if changed != 1 {
		t.Errorf("changed = %d, want 1", changed)
	}
	if fld, _ := f.Field("Status"); fld.Value.Text != "Applied" {
		t.Errorf("Status = %q", fld.Value.Text)
	}
	if f.Hidden[0].Value.Text != "" {
		t.Errorf("hidden Notes changed to %q", f.Hidden[0].Value.Text)
	}
}

func TestApply_BlankAnswersLeaveFields(t *testing.T) {
	schema := property.Schema{Columns: testColumns()}
	f := form.Synthesize(form.Input{Schema: schema})
	_ = f.Set("Name", property.TextValue("Backend Engineer"))
	_ = f.Set("Notes", property.TextValue("From the job page"))

	values := Resolve(testColumns(), map[string]any{
		"Name":  "   ",
		"Notes": "\n",
	})
	if len(values) != 0 {
		t.Errorf("Resolve kept blank answers: %v", values)
	}

	if changed := Apply(&f, values); changed != 0 {
		t.Errorf("changed = %d, want 0", changed)
	}
	if fld, _ := f.Field("Name"); fld.Value.Text != "Backend Engineer" {
		t.Errorf("Name = %q", fld.Value.Text)
	}
	if fld, _ := f.Field("Notes"); fld.Value.Text != "From the job page" {
		t.Errorf("Notes = %q", fld.Value.Text)
	}
}
