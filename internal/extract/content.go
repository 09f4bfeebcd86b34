package extract

import (
	"unicode/utf8"

	"github.com/andybalholm/cascadia"
)

// contentSelectors are tried in order; the longest text among all matches wins.
var contentSelectors = []cascadia.Selector{
	cascadia.MustCompile("article"),
	cascadia.MustCompile("main"),
	cascadia.MustCompile(`[role="main"]`),
	cascadia.MustCompile(`#job-description, .job-description, [class*="job-description"], [class*="jobDescription"]`),
	cascadia.MustCompile(`.description__text, .jobs-description__content, #jobDescriptionText`),
	cascadia.MustCompile(`[data-automation-id="jobPostingDescription"], .posting-page, #content`),
}

// mainContent returns the text of the largest content container, or the
// whole page text when no container reaches minChars.
func mainContent(p *page, minChars int) string {
	var best string
	if p.doc != nil {
		for _, sel := range contentSelectors {
			for _, n := range sel.MatchAll(p.doc) {
				if t := visibleText(n); utf8.RuneCountInString(t) > utf8.RuneCountInString(best) {
					best = t
				}
			}
		}
	}
	if utf8.RuneCountInString(best) >= minChars {
		return best
	}
	return p.text
}
