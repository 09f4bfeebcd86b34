package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

const (
	maxLocationLen = 100
	bareScanChars  = 5000
)

var (
	cityState       = `[A-Z][A-Za-z.'\-]*(?:[ ][A-Z][A-Za-z.'\-]*){0,3},[ ]?[A-Z]{2}\b`
	labeledLocRe    = regexp.MustCompile(`(?:[Ll]ocation:|[Bb]ased in|[Oo]ffice in)\s*(` + cityState + `)`)
	bareCityStateRe = regexp.MustCompile(cityState)
	locationLabelRe = regexp.MustCompile(`(?i)^(job\s+)?locations?\s*:?\s*`)

	metaLocationSel = cascadia.MustCompile(`meta[name="location"], meta[property="location"], ` +
		`meta[name="job:location"], meta[property="job:location"], ` +
		`meta[name="og:location"], meta[property="og:location"]`)
	genericLocationSel = cascadia.MustCompile(`[class*="location"], [class*="Location"], ` +
		`[id*="location"], [id*="Location"], [data-testid*="location"], ` +
		`[data-automation-id*="location"], [itemprop="jobLocation"], [itemprop="addressLocality"]`)
)

// siteLayout holds the location selectors of one job board, keyed by host suffix.
type siteLayout struct {
	host string
	sel  cascadia.Selector
}

var siteLayouts = []siteLayout{
	{"linkedin.com", cascadia.MustCompile(`.job-details-jobs-unified-top-card__primary-description-container .tvm__text, ` +
		`.jobs-unified-top-card__bullet, .topcard__flavor--bullet`)},
	{"greenhouse.io", cascadia.MustCompile(`#header .location, .job__location, .location`)},
	{"lever.co", cascadia.MustCompile(`.posting-categories .location, .sort-by-location`)},
	{"myworkdayjobs.com", cascadia.MustCompile(`[data-automation-id="locations"] dd, [data-automation-id="location"]`)},
	{"indeed.com", cascadia.MustCompile(`[data-testid="inlineHeader-companyLocation"], [data-testid="job-location"], #jobLocationText`)},
}

var workplaceOnly = map[string]bool{
	"remote":       true,
	"hybrid":       true,
	"onsite":       true,
	"on-site":      true,
	"on site":      true,
	"in office":    true,
	"in-office":    true,
	"fully remote": true,
	"remote only":  true,
	"remote first": true,
	"anywhere":     true,
	"flexible":     true,
}

// isWorkplaceOnly reports whether s names a working arrangement rather than a place.
func isWorkplaceOnly(s string) bool {
	s = strings.ToLower(strings.Trim(s, " .()-–"))
	return workplaceOnly[s]
}

// locationStage yields candidate location strings.
type locationStage func(p *page) []string

// findLocation runs the stages in priority order. The first genuine place
// wins; a workplace-only word is kept as a fallback.
func findLocation(p *page) string {
	stages := []locationStage{
		jsonLDLocations,
		metaLocations,
		siteLocations,
		labeledLocations,
		genericLocations,
		bareLocations,
	}
	var fallback string
	for _, stage := range stages {
		for _, c := range stage(p) {
			c = cleanLocation(c)
			if c == "" {
				continue
			}
			if isWorkplaceOnly(c) {
				if fallback == "" {
					fallback = c
				}
				continue
			}
			return c
		}
	}
	return fallback
}

func cleanLocation(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = locationLabelRe.ReplaceAllString(s, "")
	s = strings.Trim(s, " ·•|,")
	if len(s) > maxLocationLen {
		return ""
	}
	return s
}

func jsonLDLocations(p *page) []string {
	if p.posting == nil {
		return nil
	}
	out := append([]string(nil), p.posting.Locations...)
	if p.posting.Remote {
		out = append(out, "Remote")
	}
	return out
}

func metaLocations(p *page) []string {
	if p.doc == nil {
		return nil
	}
	var out []string
	for _, n := range metaLocationSel.MatchAll(p.doc) {
		out = append(out, getAttr(n, "content"))
	}
	return out
}

func siteLocations(p *page) []string {
	if p.doc == nil {
		return nil
	}
	host := hostOf(p.url)
	var out []string
	for _, site := range siteLayouts {
		if host != site.host && !strings.HasSuffix(host, "."+site.host) {
			continue
		}
		for _, n := range site.sel.MatchAll(p.doc) {
			out = append(out, inlineText(n))
		}
	}
	return out
}

func labeledLocations(p *page) []string {
	var out []string
	for _, m := range labeledLocRe.FindAllStringSubmatch(p.text, -1) {
		out = append(out, m[1])
	}
	return out
}

func genericLocations(p *page) []string {
	if p.doc == nil {
		return nil
	}
	var out []string
	for _, n := range genericLocationSel.MatchAll(p.doc) {
		if n.Type != html.ElementNode || n.Parent == nil {
			continue
		}
		if c := getAttr(n, "content"); c != "" {
			out = append(out, c)
			continue
		}
		out = append(out, inlineText(n))
	}
	return out
}

func bareLocations(p *page) []string {
	text := p.text
	if len(text) > bareScanChars {
		text = text[:bareScanChars]
	}
	return bareCityStateRe.FindAllString(text, -1)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
}
