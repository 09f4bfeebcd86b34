package payload

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/clipd/internal/extract"
	"github.com/kalambet/clipd/internal/form"
	"github.com/kalambet/clipd/internal/notion"
	"github.com/kalambet/clipd/internal/property"
)

func field(name string, t property.Type, v property.Value) form.Field {
	return form.Field{Name: name, Type: t, Value: v, Visible: true}
}

func TestBuild_EmptyTitleUsesPlaceholder(t *testing.T) {
	out := Build([]form.Field{field("Name", property.TypeTitle, property.Value{})})
	pv, ok := out["Name"]
	if !ok {
		t.Fatal("title missing from payload")
	}
	if got := notion.Text(pv.Title); got != Placeholder {
		t.Errorf("title = %q, want %q", got, Placeholder)
	}
}

func TestBuild_BlankTitleUsesPlaceholder(t *testing.T) {
	out := Build([]form.Field{
		field("Name", property.TypeTitle, property.TextValue("   ")),
		field("Notes", property.TypeRichText, property.TextValue("\n\t")),
	})
	if got := notion.Text(out["Name"].Title); got != Placeholder {
		t.Errorf("title = %q, want %q", got, Placeholder)
	}
	if _, ok := out["Notes"]; ok {
		t.Error("whitespace-only rich text should be omitted")
	}
}

func TestBuild_SkipsHidden(t *testing.T) {
	hidden := field("Notes", property.TypeRichText, property.TextValue("secret"))
	hidden.Visible = false
	out := Build([]form.Field{field("Name", property.TypeTitle, property.TextValue("x")), hidden})
	if _, ok := out["Notes"]; ok {
		t.Error("hidden field present in payload")
	}
}

func TestBuild_OmitsEmpty(t *testing.T) {
	fields := []form.Field{
		field("Status", property.TypeSelect, property.Value{}),
		field("Tags", property.TypeMultiSelect, property.Value{}),
		field("Salary", property.TypeNumber, property.TextValue("lots")),
		field("Due", property.TypeDate, property.TextValue("soon")),
		field("Mail", property.TypeEmail, property.TextValue(" ")),
		field("Notes", property.TypeRichText, property.Value{}),
		field("Remote", property.TypeCheckbox, property.Value{}),
		field("Odd", property.TypeUnsupported, property.TextValue("x")),
	}
	out := Build(fields)

	var keys []string
	for k := range out {
		keys = append(keys, k)
	}
	if diff := cmp.Diff([]string{"Remote"}, keys); diff != "" {
		t.Errorf("payload keys mismatch (-want +got):\n%s", diff)
	}
	if c := out["Remote"].Checkbox; c == nil || *c {
		t.Errorf("Remote = %v, want false", c)
	}
}

func TestBuild_JobCapture(t *testing.T) {
	schema := property.Schema{Columns: []property.Column{
		{Name: "Name", Type: property.TypeTitle},
		{Name: "URL", Type: property.TypeURL},
		{Name: "Status", Type: property.TypeSelect, Options: []property.Option{{Name: "To Review"}, {Name: "Applied"}}},
		{Name: "Location", Type: property.TypeSelect, Options: []property.Option{{Name: "Remote"}, {Name: "San Francisco"}}},
	}}
	role, company := extract.SplitTitle("Backend Engineer | Acme | LinkedIn")
	signals := extract.Signals{
		URL:         "https://jobs.acme.test/123",
		Title:       "Backend Engineer | Acme | LinkedIn",
		RoleName:    role,
		CompanyName: company,
		Location:    "Remote - San Francisco Bay Area",
	}

	f := form.Synthesize(form.Input{Schema: schema, Signals: signals})
	out := Build(f.Fields)

	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"Location":{"select":{"name":"Remote"}},` +
		`"Name":{"title":[{"type":"text","text":{"content":"Backend Engineer"}}]},` +
		`"URL":{"url":"https://jobs.acme.test/123"}}`
	if string(data) != want {
		t.Errorf("payload =\n%s\nwant\n%s", data, want)
	}
}

func TestBuild_RichTextChunks(t *testing.T) {
	long := make([]rune, 4500)
	for i := range long {
		long[i] = 'a' + rune(i%26)
	}
	out := Build([]form.Field{field("Notes", property.TypeRichText, property.TextValue(string(long)))})
	if n := len(out["Notes"].RichText); n != 3 {
		t.Errorf("runs = %d, want 3", n)
	}
	if got := notion.Text(out["Notes"].RichText); got != string(long) {
		t.Error("runs do not concatenate back to the input")
	}
}
