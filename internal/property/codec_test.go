package property

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/kalambet/clipd/internal/notion"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		typ Type
		v   Value
	}{
		{TypeTitle, TextValue("Backend Engineer")},
		{TypeTitle, TextValue("")},
		{TypeRichText, TextValue("line one\nline two")},
		{TypeRichText, TextValue("")},
		{TypeURL, TextValue("https://jobs.acme.test/123")},
		{TypeURL, TextValue("")},
		{TypeEmail, TextValue("jobs@acme.test")},
		{TypePhone, TextValue("+1 555 0100")},
		{TypeNumber, TextValue("42")},
		{TypeNumber, TextValue("3.25")},
		{TypeNumber, TextValue("")},
		{TypeCheckbox, Value{Checked: true}},
		{TypeCheckbox, Value{Checked: false}},
		{TypeSelect, TextValue("Applied")},
		{TypeSelect, TextValue("")},
		{TypeStatus, TextValue("In progress")},
		{TypeMultiSelect, Value{Names: []string{"Go", "Remote"}}},
		{TypeMultiSelect, Value{}},
		{TypeDate, TextValue("2024-05-01")},
		{TypeDate, TextValue("")},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String()+"/"+tt.v.Text, func(t *testing.T) {
			pv, ok := Serialize(tt.typ, tt.v)
			if !ok {
				t.Fatalf("Serialize(%s) not supported", tt.typ)
			}
			// Through the wire and back, as Notion would echo it.
			data, err := json.Marshal(pv)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			var decoded notion.PropertyValue
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			got := Parse(tt.typ, &decoded)
			if diff := cmp.Diff(tt.v, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSerialize_RichTextChunking(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 5000; i++ {
		b.WriteRune(rune(0x4E00 + i))
	}
	s := b.String()

	pv, _ := Serialize(TypeRichText, TextValue(s))
	if len(pv.RichText) != 3 {
		t.Fatalf("runs = %d, want 3", len(pv.RichText))
	}
	var joined strings.Builder
	for i, run := range pv.RichText {
		n := len(utf16.Encode([]rune(run.Text.Content)))
		if n > MaxRunLength {
			t.Errorf("run %d has %d units", i, n)
		}
		joined.WriteString(run.Text.Content)
	}
	if joined.String() != s {
		t.Error("concatenated runs differ from input")
	}
}

func TestChunkText_SurrogatePairs(t *testing.T) {
	// Each emoji is two UTF-16 units; an odd limit must not split one.
	s := strings.Repeat("😀", 5)
	chunks := ChunkText(s, 3)
	if strings.Join(chunks, "") != s {
		t.Fatal("chunks lose characters")
	}
	for _, c := range chunks {
		if n := len(utf16.Encode([]rune(c))); n > 3 {
			t.Errorf("chunk %q has %d units", c, n)
		}
	}
	if got := ChunkText("", MaxRunLength); len(got) != 1 || got[0] != "" {
		t.Errorf("ChunkText(\"\") = %q, want one empty chunk", got)
	}
}

func TestSerialize_Degrades(t *testing.T) {
	tests := []struct {
		name string
		typ  Type
		in   string
	}{
		{"bad number", TypeNumber, "twelve"},
		{"nan", TypeNumber, "NaN"},
		{"inf", TypeNumber, "+Inf"},
		{"bad date", TypeDate, "next tuesday"},
		{"impossible date", TypeDate, "2024-02-31"},
		{"blank url", TypeURL, "   "},
		{"blank select", TypeSelect, " "},
		{"blank title", TypeTitle, "   "},
		{"blank rich text", TypeRichText, "\n\t "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pv, ok := Serialize(tt.typ, TextValue(tt.in))
			if !ok {
				t.Fatal("unsupported")
			}
			if !IsEmpty(pv) {
				t.Errorf("Serialize(%s, %q) = %+v, want empty", tt.typ, tt.in, pv)
			}
		})
	}
}

func TestSerialize_DateTimestamp(t *testing.T) {
	pv, _ := Serialize(TypeDate, TextValue("2024-05-01T10:30:00Z"))
	if pv.Date == nil || pv.Date.Start != "2024-05-01" {
		t.Errorf("date = %+v, want start 2024-05-01", pv.Date)
	}
}

func TestSerialize_MultiSelectDedup(t *testing.T) {
	pv, _ := Serialize(TypeMultiSelect, Value{Names: []string{" Go", "Go", "", "Rust"}})
	want := []notion.SelectValue{{Name: "Go"}, {Name: "Rust"}}
	if diff := cmp.Diff(want, pv.MultiSelect); diff != "" {
		t.Errorf("multi_select mismatch (-want +got):\n%s", diff)
	}
}

func TestSerialize_Unsupported(t *testing.T) {
	if _, ok := Serialize(TypeUnsupported, TextValue("x")); ok {
		t.Error("expected unsupported type to be rejected")
	}
}

func TestParse_ToleratesMissing(t *testing.T) {
	for _, typ := range Types {
		got := Parse(typ, &notion.PropertyValue{Type: typ.String()})
		if !got.IsZero(typ) {
			t.Errorf("Parse(%s, empty) = %+v, want zero", typ, got)
		}
		if got := Parse(typ, nil); !got.IsZero(typ) {
			t.Errorf("Parse(%s, nil) = %+v, want zero", typ, got)
		}
	}
}

func TestParse_NumberFormatting(t *testing.T) {
	n := 1e6
	got := Parse(TypeNumber, &notion.PropertyValue{Type: "number", Number: &n})
	if got.Text != "1000000" {
		t.Errorf("number = %q, want 1000000", got.Text)
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name    string
		typ     Type
		raw     any
		want    Value
		wantErr bool
	}{
		{"text", TypeTitle, "x", TextValue("x"), false},
		{"number from float", TypeNumber, 12.5, TextValue("12.5"), false},
		{"checkbox bool", TypeCheckbox, true, Value{Checked: true}, false},
		{"checkbox string", TypeCheckbox, "true", Value{Checked: true}, false},
		{"checkbox junk", TypeCheckbox, "maybe", Value{}, true},
		{"multi list", TypeMultiSelect, []any{"a", "b"}, Value{Names: []string{"a", "b"}}, false},
		{"multi csv", TypeMultiSelect, "a, b", Value{Names: []string{"a", "b"}}, false},
		{"multi bad entry", TypeMultiSelect, []any{"a", 1.0}, Value{}, true},
		{"nil", TypeSelect, nil, Value{}, false},
		{"object", TypeSelect, map[string]any{}, Value{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.typ, tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
