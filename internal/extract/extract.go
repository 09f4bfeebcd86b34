// Package extract derives advisory signals about a captured page: the role
// and company from its title, a location, the user's selection and the main
// text used for auto-fill. Extraction never fails; anything it cannot find
// is left empty.
package extract

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const (
	// DefaultMaxContentChars caps RawContent.
	DefaultMaxContentChars = 15000
	// DefaultMinContentChars is the shortest container text accepted as the
	// main content before falling back to the whole page.
	DefaultMinContentChars = 200

	truncationMarker = "\n\n[...truncated...]"
	titleSeparator   = " | "
)

// Tab is what the browser shell knows about the page being captured.
type Tab struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	HTML        string `json:"html,omitempty"`
	Text        string `json:"text,omitempty"`
	Selection   string `json:"selection,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// Signals are the heuristically derived facts about a page. They are only
// ever used as form defaults.
type Signals struct {
	URL          string      `json:"url"`
	Title        string      `json:"title"`
	RoleName     string      `json:"roleName"`
	CompanyName  string      `json:"companyName"`
	Location     string      `json:"location"`
	SelectedText string      `json:"selectedText"`
	Description  string      `json:"description"`
	RawContent   string      `json:"rawContent"`
	Structured   *JobPosting `json:"structured,omitempty"`
}

// Options tune extraction.
type Options struct {
	MaxContentChars int
	MinContentChars int
}

func (o Options) withDefaults() Options {
	if o.MaxContentChars <= 0 {
		o.MaxContentChars = DefaultMaxContentChars
	}
	if o.MinContentChars <= 0 {
		o.MinContentChars = DefaultMinContentChars
	}
	return o
}

// page is the parsed form of a Tab shared by the extraction stages.
type page struct {
	url     string
	doc     *html.Node
	text    string
	posting *JobPosting
}

// Extract derives Signals from tab.
func Extract(tab Tab, opts Options) Signals {
	opts = opts.withDefaults()
	p := &page{url: strings.TrimSpace(tab.URL)}

	if strings.TrimSpace(tab.HTML) != "" {
		doc, err := html.Parse(strings.NewReader(tab.HTML))
		if err != nil {
			slog.Debug("extract: parsing page html", "url", p.url, "error", err)
		} else {
			p.doc = doc
			p.posting = findJobPosting(doc)
		}
	}
	if p.doc != nil {
		if body := bodySel.MatchFirst(p.doc); body != nil {
			p.text = visibleText(body)
		} else {
			p.text = visibleText(p.doc)
		}
	}
	if p.text == "" {
		p.text = cleanText(tab.Text)
	}

	s := Signals{
		URL:          p.url,
		Title:        pageTitle(tab, p),
		SelectedText: strings.TrimSpace(tab.Selection),
		Structured:   p.posting,
	}
	s.RoleName, s.CompanyName = SplitTitle(s.Title)
	if s.CompanyName == "" && p.posting != nil {
		s.CompanyName = p.posting.Company
	}
	s.Location = findLocation(p)
	if p.doc != nil {
		s.Description = metaContent(p.doc, descriptionSel)
	}
	if s.Description == "" && p.posting != nil {
		s.Description = truncate(p.posting.Description, 500, "")
	}
	s.RawContent = truncate(mainContent(p, opts.MinContentChars), opts.MaxContentChars, truncationMarker)
	return s
}

// SplitTitle splits a window title of the form "Role | Company | Site" into
// role and company. Titles without the separator are returned whole as the
// role.
func SplitTitle(title string) (role, company string) {
	title = strings.TrimSpace(title)
	parts := strings.Split(title, titleSeparator)
	if len(parts) < 2 {
		return title, ""
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func pageTitle(tab Tab, p *page) string {
	if t := strings.TrimSpace(tab.Title); t != "" {
		return t
	}
	if p.doc == nil {
		return ""
	}
	if n := firstMatch(p.doc, titleSel); n != nil {
		if t := strings.Join(strings.Fields(rawText(n)), " "); t != "" {
			return t
		}
	}
	return metaContent(p.doc, ogTitleSel)
}

// truncate cuts s to max characters and appends marker when it did.
func truncate(s string, max int, marker string) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	var n int
	for i := range s {
		if n == max {
			return s[:i] + marker
		}
		n++
	}
	return s
}
