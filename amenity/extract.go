package amenity

import (
	"regexp"

	"metroheat/parser"
)

// utilitiesName marks grab-bag entries whose values bundle unrelated
// utilities; they get the appliance-only pattern set.
var utilitiesName = regexp.MustCompile(`(?i)^utilit`)

// Extractor walks a listing's detail groups and pulls out candidate
// heating-related text fragments. It holds no per-listing state, so repeated
// extraction over the same payload yields the same fragments.
type Extractor struct {
	rules *Rules
}

// NewExtractor builds an extractor over the given rule table, falling back
// to the embedded default when rules is nil.
func NewExtractor(rules *Rules) *Extractor {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Extractor{rules: rules}
}

// HeatingFragments applies the filter cascade to the detail groups:
//
//  1. drop groups whose title matches no inclusion pattern;
//  2. within surviving groups, named entries pass when the name matches an
//     inclusion pattern and no exclusion pattern ("Heating/Cooling Updated
//     In: 2022" is metadata, not a fuel fact); bare entries and "Utilities"
//     entries are always candidates but get the narrower appliance set;
//  3. keep values matching at least one inclusion pattern and no exclusion
//     pattern.
//
// The result is deduplicated and order-preserving. An empty result means no
// usable heating data, which is common and not an error.
func (e *Extractor) HeatingFragments(groups []Group) []string {
	var fragments []string
	seen := make(map[string]struct{})

	for _, group := range groups {
		if !matchAny(e.rules.groupTitles, group.Title) {
			continue
		}
		for _, entry := range group.Entries {
			include := e.rules.valueInclude
			switch {
			case !entry.Named() || utilitiesName.MatchString(entry.Name):
				include = e.rules.appliance
			case matchAny(e.rules.nameInclude, entry.Name) && !matchAny(e.rules.nameExclude, entry.Name):
				// full fuel+appliance set
			default:
				continue
			}

			for _, value := range entry.Values {
				value = parser.NormalizeSpace(value)
				if value == "" {
					continue
				}
				if !matchAny(include, value) || matchAny(e.rules.valueExclude, value) {
					continue
				}
				if _, dup := seen[value]; dup {
					continue
				}
				seen[value] = struct{}{}
				fragments = append(fragments, value)
			}
		}
	}
	return fragments
}
