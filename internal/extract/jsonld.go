package extract

import (
	"encoding/json"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// JobPosting is the subset of a schema.org JobPosting clipd uses.
type JobPosting struct {
	Title          string   `json:"title,omitempty"`
	Company        string   `json:"company,omitempty"`
	Locations      []string `json:"locations,omitempty"`
	Remote         bool     `json:"remote,omitempty"`
	Description    string   `json:"description,omitempty"`
	EmploymentType string   `json:"employmentType,omitempty"`
	DatePosted     string   `json:"datePosted,omitempty"`
}

var jsonLDSel = cascadia.MustCompile(`script[type="application/ld+json"]`)

// findJobPosting returns the first JobPosting found in the page's JSON-LD
// blocks, looking through top-level arrays and @graph containers.
func findJobPosting(doc *html.Node) *JobPosting {
	for _, n := range jsonLDSel.MatchAll(doc) {
		var v any
		if err := json.Unmarshal([]byte(strings.TrimSpace(rawText(n))), &v); err != nil {
			continue
		}
		if obj := findTyped(v, "JobPosting", 0); obj != nil {
			return jobPostingFrom(obj)
		}
	}
	return nil
}

func findTyped(v any, typ string, depth int) map[string]any {
	if depth > 8 {
		return nil
	}
	switch x := v.(type) {
	case []any:
		for _, e := range x {
			if obj := findTyped(e, typ, depth+1); obj != nil {
				return obj
			}
		}
	case map[string]any:
		if hasType(x["@type"], typ) {
			return x
		}
		if g, ok := x["@graph"]; ok {
			return findTyped(g, typ, depth+1)
		}
	}
	return nil
}

func hasType(v any, typ string) bool {
	switch x := v.(type) {
	case string:
		return x == typ
	case []any:
		for _, e := range x {
			if s, ok := e.(string); ok && s == typ {
				return true
			}
		}
	}
	return false
}

func jobPostingFrom(obj map[string]any) *JobPosting {
	jp := &JobPosting{
		Title:          str(obj["title"]),
		Company:        nameOf(obj["hiringOrganization"]),
		EmploymentType: strings.Join(strs(obj["employmentType"]), ", "),
		DatePosted:     str(obj["datePosted"]),
	}
	if d := str(obj["description"]); d != "" {
		jp.Description = htmlToText(d)
	}
	for _, t := range strs(obj["jobLocationType"]) {
		if strings.EqualFold(t, "TELECOMMUTE") {
			jp.Remote = true
		}
	}
	for _, loc := range list(obj["jobLocation"]) {
		if s := placeText(loc); s != "" {
			jp.Locations = append(jp.Locations, s)
		}
	}
	return jp
}

// placeText renders a schema.org Place as "Locality, Region", falling back
// to the country.
func placeText(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case map[string]any:
		addr := x["address"]
		if addr == nil {
			return str(x["name"])
		}
		if s, ok := addr.(string); ok {
			return strings.TrimSpace(s)
		}
		a, ok := addr.(map[string]any)
		if !ok {
			return ""
		}
		var parts []string
		if l := str(a["addressLocality"]); l != "" {
			parts = append(parts, l)
		}
		if r := str(a["addressRegion"]); r != "" {
			parts = append(parts, r)
		}
		if len(parts) == 0 {
			return nameOf(a["addressCountry"])
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func nameOf(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case map[string]any:
		return str(x["name"])
	}
	return ""
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func strs(v any) []string {
	var out []string
	for _, e := range list(v) {
		if s := str(e); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func list(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	}
	return []any{v}
}

// htmlToText strips markup from an HTML fragment such as a JSON-LD description.
func htmlToText(s string) string {
	if !strings.Contains(s, "<") {
		return cleanText(html.UnescapeString(s))
	}
	nodes, err := html.ParseFragment(strings.NewReader(s), nil)
	if err != nil {
		return cleanText(s)
	}
	var sb strings.Builder
	for _, n := range nodes {
		walkText(n, &sb, 0)
	}
	return cleanText(sb.String())
}
