package form

import "strings"

// Purpose is what a column is for, judged from its name.
type Purpose int

const (
	PurposeNone Purpose = iota
	PurposeRole
	PurposeCompany
	PurposeLocation
	PurposeRawJD
	PurposeSourceURL
)

func (p Purpose) String() string {
	switch p {
	case PurposeRole:
		return "role"
	case PurposeCompany:
		return "company"
	case PurposeLocation:
		return "location"
	case PurposeRawJD:
		return "raw_jd"
	case PurposeSourceURL:
		return "source_url"
	}
	return "none"
}

// rule classifies a column name. A name matches when it equals one of
// exact, or contains one of include and none of exclude. All comparisons
// are case-insensitive.
type rule struct {
	purpose Purpose
	exact   []string
	include []string
	exclude []string
}

// rules are checked in order; the first match wins.
var rules = []rule{
	{
		purpose: PurposeRawJD,
		exact:   []string{"jd"},
		include: []string{"raw jd", "raw job description", "raw description", "full jd", "job description text"},
	},
	{
		purpose: PurposeLocation,
		include: []string{"location", "where", "city", "place"},
	},
	{
		purpose: PurposeCompany,
		exact:   []string{"org"},
		include: []string{"company", "organization", "organisation", "employer"},
		exclude: []string{"summary", "description", "about"},
	},
	{
		purpose: PurposeRole,
		exact:   []string{"title", "job", "role"},
		include: []string{"role", "job title", "position"},
		exclude: []string{"summary", "description", "about"},
	},
	{
		purpose: PurposeSourceURL,
		exact:   []string{"url", "link"},
		include: []string{"job url", "job link", "posting", "source", "listing url"},
	},
}

// Classify returns the purpose of a column from its name.
func Classify(name string) Purpose {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return PurposeNone
	}
	for _, r := range rules {
		if r.matches(n) {
			return r.purpose
		}
	}
	return PurposeNone
}

func (r rule) matches(n string) bool {
	for _, e := range r.exclude {
		if strings.Contains(n, e) {
			return false
		}
	}
	for _, e := range r.exact {
		if n == e {
			return true
		}
	}
	for _, inc := range r.include {
		if strings.Contains(n, inc) {
			return true
		}
	}
	return false
}
