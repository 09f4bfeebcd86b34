// Package match picks the option of a choice column that best fits a free
// text signal such as a scraped location.
package match

import (
	"regexp"
	"strings"
)

// family groups the spellings of one metro area. Patterns are matched
// against the free text; keywords are searched for in option labels.
type family struct {
	name     string
	pattern  *regexp.Regexp
	keywords []string
}

var families = []family{
	{
		name:     "san francisco",
		pattern:  regexp.MustCompile(`(?i)\b(san francisco|sf|bay area|silicon valley)\b`),
		keywords: []string{"san francisco", "sf", "bay area"},
	},
	{
		name:     "new york",
		pattern:  regexp.MustCompile(`(?i)\b(new york|nyc|manhattan|brooklyn)\b`),
		keywords: []string{"new york", "nyc", "ny"},
	},
	{
		name:     "los angeles",
		pattern:  regexp.MustCompile(`(?i)\b(los angeles|la)\b`),
		keywords: []string{"los angeles", "la"},
	},
	{
		name:     "washington dc",
		pattern:  regexp.MustCompile(`(?i)\b(washington,? d\.?c\.?|dc)\b`),
		keywords: []string{"washington", "dc"},
	},
	{
		name:     "boston",
		pattern:  regexp.MustCompile(`(?i)\bboston\b`),
		keywords: []string{"boston"},
	},
	{
		name:     "chicago",
		pattern:  regexp.MustCompile(`(?i)\bchicago\b`),
		keywords: []string{"chicago"},
	},
	{
		name:     "seattle",
		pattern:  regexp.MustCompile(`(?i)\bseattle\b`),
		keywords: []string{"seattle"},
	},
	{
		name:     "austin",
		pattern:  regexp.MustCompile(`(?i)\baustin\b`),
		keywords: []string{"austin"},
	},
	{
		name:     "denver",
		pattern:  regexp.MustCompile(`(?i)\bdenver\b`),
		keywords: []string{"denver"},
	},
}

var stateCodeRe = regexp.MustCompile(`,\s*([A-Za-z]{2})\s*$`)

// Match returns the option that best fits text. Tiers are tried in order
// and the first hit wins: exact, option contained in text, text contained
// in option, remote, metro family, trailing state code. It returns false
// when nothing qualifies; the caller leaves the field unset.
func Match(text string, options []string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" || len(options) == 0 {
		return "", false
	}
	lt := strings.ToLower(text)

	for _, o := range options {
		if strings.EqualFold(strings.TrimSpace(o), text) {
			return o, true
		}
	}
	for _, o := range options {
		if lo := normalized(o); lo != "" && strings.Contains(lt, lo) {
			return o, true
		}
	}
	for _, o := range options {
		if lo := normalized(o); lo != "" && strings.Contains(lo, lt) {
			return o, true
		}
	}
	if strings.Contains(lt, "remote") {
		for _, o := range options {
			if strings.Contains(normalized(o), "remote") {
				return o, true
			}
		}
	}
	for _, f := range families {
		if !f.pattern.MatchString(text) {
			continue
		}
		for _, o := range options {
			if containsAnyWord(normalized(o), f.keywords) {
				return o, true
			}
		}
	}
	if m := stateCodeRe.FindStringSubmatch(text); m != nil {
		code := strings.ToLower(m[1])
		for _, o := range options {
			if containsWord(normalized(o), code) {
				return o, true
			}
		}
	}
	return "", false
}

// MatchExact returns the option equal to text ignoring case and surrounding
// space. It is used for company columns, where partial matches would be
// wrong more often than right.
func MatchExact(text string, options []string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	for _, o := range options {
		if strings.EqualFold(strings.TrimSpace(o), text) {
			return o, true
		}
	}
	return "", false
}

func normalized(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsAnyWord(s string, words []string) bool {
	for _, w := range words {
		if containsWord(s, w) {
			return true
		}
	}
	return false
}

// containsWord reports whether w occurs in s delimited by non-letters.
func containsWord(s, w string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], w)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(w)
		if (start == 0 || !isLetter(s[start-1])) && (end == len(s) || !isLetter(s[end])) {
			return true
		}
		i = start + 1
	}
}

func isLetter(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
