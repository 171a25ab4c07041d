package amenity

import "metroheat/models"

// Categorizer folds extracted fragments into the fixed category record.
type Categorizer struct {
	rules *Rules
}

// NewCategorizer builds a categorizer over the given rule table, falling
// back to the embedded default when rules is nil.
func NewCategorizer(rules *Rules) *Categorizer {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Categorizer{rules: rules}
}

// Categorize ORs the category matches of every fragment into one result. A
// fragment may set several categories at once ("Heat Pump, Electric" sets
// both), and a flag never reverts once set, so the fold is order-independent.
// An empty fragment list yields the all-false default; callers distinguish
// "unknown" from "confirmed no match" via ListingRecord.HadDetail.
func (c *Categorizer) Categorize(fragments []string) models.FuelCategoryResult {
	var result models.FuelCategoryResult
	for _, fragment := range fragments {
		for _, cat := range c.rules.categories {
			if cat.pattern.MatchString(fragment) {
				result.Set(cat.name)
			}
		}
	}
	return result
}
