// Package listings retrieves bulk search results from the external listings
// source, one ZIP code at a time.
package listings

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// PropertyType is a closed enum over the source's property-type filter. The
// wire string never leaves this package except inside an encoded filter path.
type PropertyType int

const (
	PropertyHouse PropertyType = iota + 1
	PropertyCondo
	PropertyTownhouse
	PropertyLand
	PropertyOther
	PropertyManufactured
	PropertyCoop
	PropertyMultifamily
)

var propertyTypeWire = map[PropertyType]string{
	PropertyHouse:        "house",
	PropertyCondo:        "condo",
	PropertyTownhouse:    "townhouse",
	PropertyLand:         "land",
	PropertyOther:        "other",
	PropertyManufactured: "manufactured",
	PropertyCoop:         "co-op",
	PropertyMultifamily:  "multifamily",
}

func (p PropertyType) wire() (string, error) {
	s, ok := propertyTypeWire[p]
	if !ok {
		return "", fmt.Errorf("invalid property type %d", int(p))
	}
	return s, nil
}

// SortOrder is a closed enum over the source's sort filter. Some orders only
// apply to sold searches, some only to for-sale searches; Filters.Validate
// rejects the invalid pairings.
type SortOrder int

const (
	SortNewestListed SortOrder = iota + 1 // for-sale only
	SortMostRecentlySold
	SortPriceLowToHigh
	SortPriceHighToLow
	SortSquareFeet
	SortLotSize
	SortPricePerSquareFoot
)

var sortWire = map[SortOrder]string{
	SortNewestListed:       "lo-days",
	SortMostRecentlySold:   "hi-sale-date",
	SortPriceLowToHigh:     "lo-price",
	SortPriceHighToLow:     "hi-price",
	SortSquareFeet:         "hi-sqft",
	SortLotSize:            "hi-lot-sqf",
	SortPricePerSquareFoot: "lo-dollarsqft",
}

func (s SortOrder) wire() (string, error) {
	w, ok := sortWire[s]
	if !ok {
		return "", fmt.Errorf("invalid sort order %d", int(s))
	}
	return w, nil
}

// SoldWithin is the cumulative sold-listing window. Houses in the 1-week
// window are the first to appear in the 1-year window.
type SoldWithin int

const (
	SoldLastWeek SoldWithin = iota + 1
	SoldLastMonth
	SoldLast3Months
	SoldLast6Months
	SoldLastYear
	SoldLast2Years
	SoldLast3Years
	SoldLast5Years
)

var soldWithinWire = map[SoldWithin]string{
	SoldLastWeek:    "sold-1wk",
	SoldLastMonth:   "sold-1mo",
	SoldLast3Months: "sold-3mo",
	SoldLast6Months: "sold-6mo",
	SoldLastYear:    "sold-1yr",
	SoldLast2Years:  "sold-2yr",
	SoldLast3Years:  "sold-3yr",
	SoldLast5Years:  "sold-5yr",
}

func (s SoldWithin) wire() (string, error) {
	w, ok := soldWithinWire[s]
	if !ok {
		return "", fmt.Errorf("invalid sold-within window %d", int(s))
	}
	return w, nil
}

// Status is an active-listing status value for for-sale searches.
type Status int

const (
	StatusActive Status = iota + 1
	StatusComingSoon
	StatusContingent
	StatusPending
)

var statusWire = map[Status]string{
	StatusActive:     "active",
	StatusComingSoon: "comingsoon",
	StatusContingent: "contingent",
	StatusPending:    "pending",
}

func (s Status) wire() (string, error) {
	w, ok := statusWire[s]
	if !ok {
		return "", fmt.Errorf("invalid status %d", int(s))
	}
	return w, nil
}

// Stories is the min-stories filter. The source only accepts a fixed set of
// values.
type Stories int

var validStories = map[Stories]struct{}{
	1: {}, 2: {}, 3: {}, 4: {}, 5: {}, 10: {}, 15: {}, 20: {},
}

func (s Stories) wire() (string, error) {
	if _, ok := validStories[s]; !ok {
		return "", fmt.Errorf("invalid min-stories value %d", int(s))
	}
	return strconv.Itoa(int(s)), nil
}

// Sqft is a square-footage bound in square feet. The source only accepts a
// fixed ladder of values, each with its own wire spelling.
type Sqft int

var sqftWire = map[Sqft]string{
	750:   "750",
	1000:  "1K",
	1100:  "1.1k",
	1200:  "1.2k",
	1300:  "1.3k",
	1400:  "1.4k",
	1500:  "1.5k",
	1600:  "1.6k",
	1700:  "1.7k",
	1800:  "1.8k",
	1900:  "1.9k",
	2000:  "2k",
	2250:  "2.25k",
	2500:  "2.5k",
	2750:  "2.75k",
	3000:  "3k",
	4000:  "4k",
	5000:  "5k",
	7500:  "7.5k",
	10000: "10k",
}

func (s Sqft) wire() (string, error) {
	w, ok := sqftWire[s]
	if !ok {
		return "", fmt.Errorf("invalid square-footage bound %d", int(s))
	}
	return w, nil
}

// Scope is the tagged for-sale vs sold portion of the filters: exactly one of
// the two variants is set. Construct with Sold or ForSale.
type Scope struct {
	sold       SoldWithin
	statuses   []Status
	isSoldSide bool
}

// Sold scopes a search to listings sold within the given window.
func Sold(window SoldWithin) Scope {
	return Scope{sold: window, isSoldSide: true}
}

// ForSale scopes a search to active listings with the given statuses.
func ForSale(statuses ...Status) Scope {
	return Scope{statuses: statuses}
}

// IsSold reports whether the scope targets sold listings.
func (s Scope) IsSold() bool { return s.isSoldSide }

// Filters is the validated search configuration for one pipeline run. Build
// it once, call Validate, and treat it as immutable afterwards.
type Filters struct {
	Sort          SortOrder
	PropertyTypes []PropertyType
	Scope         Scope

	MinYearBuilt int
	MaxYearBuilt int
	MinStories   Stories
	MinPrice     int64
	MaxPrice     int64
	MinSqft      Sqft
	MaxSqft      Sqft
}

// Validate rejects contradictory or out-of-range combinations before any
// request is built. A validation failure here is a configuration error and
// fatal at startup.
func (f *Filters) Validate() error {
	if len(f.PropertyTypes) == 0 {
		return fmt.Errorf("at least one property type is required")
	}
	for _, p := range f.PropertyTypes {
		if _, err := p.wire(); err != nil {
			return err
		}
	}
	if _, err := f.Sort.wire(); err != nil {
		return err
	}

	if f.Scope.IsSold() {
		if _, err := f.Scope.sold.wire(); err != nil {
			return err
		}
		if f.Sort == SortNewestListed {
			return fmt.Errorf("sort by newest listed cannot be combined with a sold search")
		}
	} else {
		for _, st := range f.Scope.statuses {
			if _, err := st.wire(); err != nil {
				return err
			}
		}
		if f.Sort == SortMostRecentlySold {
			return fmt.Errorf("sort by most recently sold requires a sold search")
		}
	}

	if f.MinYearBuilt != 0 && f.MaxYearBuilt != 0 && f.MinYearBuilt > f.MaxYearBuilt {
		return fmt.Errorf("min year built %d exceeds max year built %d", f.MinYearBuilt, f.MaxYearBuilt)
	}
	if f.MinStories != 0 {
		if _, err := f.MinStories.wire(); err != nil {
			return err
		}
	}
	if f.MinPrice < 0 || f.MaxPrice < 0 {
		return fmt.Errorf("price bounds cannot be negative")
	}
	if f.MinPrice != 0 && f.MaxPrice != 0 && f.MinPrice > f.MaxPrice {
		return fmt.Errorf("min price %d exceeds max price %d", f.MinPrice, f.MaxPrice)
	}
	if f.MinSqft != 0 {
		if _, err := f.MinSqft.wire(); err != nil {
			return err
		}
	}
	if f.MaxSqft != 0 {
		if _, err := f.MaxSqft.wire(); err != nil {
			return err
		}
	}
	if f.MinSqft != 0 && f.MaxSqft != 0 && f.MinSqft > f.MaxSqft {
		return fmt.Errorf("min sqft %d exceeds max sqft %d", int(f.MinSqft), int(f.MaxSqft))
	}
	return nil
}

// Encode serializes the filters into the source's filter path segment, e.g.
// "/filter/sort=hi-sale-date,property-type=house,include=sold-5yr". The
// output is deterministic: keys appear in a fixed order.
func (f *Filters) Encode() (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}

	var parts []string
	add := func(key, value string) {
		parts = append(parts, key+"="+value)
	}

	sortValue, _ := f.Sort.wire()
	add("sort", sortValue)

	types := make([]string, 0, len(f.PropertyTypes))
	for _, p := range f.PropertyTypes {
		w, _ := p.wire()
		types = append(types, w)
	}
	sort.Strings(types)
	add("property-type", strings.Join(types, "+"))

	if f.MinYearBuilt != 0 {
		add("min-year-built", strconv.Itoa(f.MinYearBuilt))
	}
	if f.MaxYearBuilt != 0 {
		add("max-year-built", strconv.Itoa(f.MaxYearBuilt))
	}
	if f.Scope.IsSold() {
		w, _ := f.Scope.sold.wire()
		add("include", w)
	} else if len(f.Scope.statuses) > 0 {
		statuses := make([]string, 0, len(f.Scope.statuses))
		for _, st := range f.Scope.statuses {
			w, _ := st.wire()
			statuses = append(statuses, w)
		}
		sort.Strings(statuses)
		add("status", strings.Join(statuses, "+"))
	}
	if f.MinStories != 0 {
		w, _ := f.MinStories.wire()
		add("min-stories", w)
	}
	if f.MinPrice != 0 {
		add("min-price", strconv.FormatInt(f.MinPrice, 10))
	}
	if f.MaxPrice != 0 {
		add("max-price", strconv.FormatInt(f.MaxPrice, 10))
	}
	if f.MinSqft != 0 {
		w, _ := f.MinSqft.wire()
		add("min-sqft", w)
	}
	if f.MaxSqft != 0 {
		w, _ := f.MaxSqft.wire()
		add("max-sqft", w)
	}

	return "/filter/" + strings.Join(parts, ","), nil
}
