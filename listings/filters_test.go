package listings

import (
	"strings"
	"testing"
)

func soldFilters() *Filters {
	return &Filters{
		Sort:          SortMostRecentlySold,
		PropertyTypes: []PropertyType{PropertyHouse},
		Scope:         Sold(SoldLast5Years),
	}
}

func TestFiltersValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Filters)
		wantErr string
	}{
		{
			name:   "default sold filters are valid",
			mutate: func(f *Filters) {},
		},
		{
			name: "no property types",
			mutate: func(f *Filters) {
				f.PropertyTypes = nil
			},
			wantErr: "property type",
		},
		{
			name: "unknown property type",
			mutate: func(f *Filters) {
				f.PropertyTypes = []PropertyType{PropertyType(99)}
			},
			wantErr: "invalid property type",
		},
		{
			name: "newest listed with sold scope",
			mutate: func(f *Filters) {
				f.Sort = SortNewestListed
			},
			wantErr: "sold search",
		},
		{
			name: "most recently sold with for-sale scope",
			mutate: func(f *Filters) {
				f.Scope = ForSale(StatusActive)
			},
			wantErr: "requires a sold search",
		},
		{
			name: "inverted year range",
			mutate: func(f *Filters) {
				f.MinYearBuilt = 2000
				f.MaxYearBuilt = 1990
			},
			wantErr: "year built",
		},
		{
			name: "inverted price range",
			mutate: func(f *Filters) {
				f.MinPrice = 500000
				f.MaxPrice = 400000
			},
			wantErr: "price",
		},
		{
			name: "negative price",
			mutate: func(f *Filters) {
				f.MinPrice = -1
			},
			wantErr: "negative",
		},
		{
			name: "off-ladder sqft",
			mutate: func(f *Filters) {
				f.MinSqft = 1050
			},
			wantErr: "square-footage",
		},
		{
			name: "inverted sqft range",
			mutate: func(f *Filters) {
				f.MinSqft = 2000
				f.MaxSqft = 1000
			},
			wantErr: "sqft",
		},
		{
			name: "unsupported stories value",
			mutate: func(f *Filters) {
				f.MinStories = 7
			},
			wantErr: "min-stories",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := soldFilters()
			tt.mutate(f)
			err := f.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %q, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestFiltersEncode(t *testing.T) {
	f := soldFilters()
	f.PropertyTypes = []PropertyType{PropertyMultifamily, PropertyHouse}
	f.MinYearBuilt = 1950
	f.MinPrice = 100000
	f.MaxSqft = 2500

	got, err := f.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	want := "/filter/sort=hi-sale-date,property-type=house+multifamily,min-year-built=1950,include=sold-5yr,min-price=100000,max-sqft=2.5k"
	if got != want {
		t.Fatalf("Encode() = %q, want %q", got, want)
	}
}

func TestFiltersEncodeForSale(t *testing.T) {
	f := &Filters{
		Sort:          SortNewestListed,
		PropertyTypes: []PropertyType{PropertyHouse},
		Scope:         ForSale(StatusPending, StatusActive),
	}
	got, err := f.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	want := "/filter/sort=lo-days,property-type=house,status=active+pending"
	if got != want {
		t.Fatalf("Encode() = %q, want %q", got, want)
	}
}

// Two encodes of the same filters must be byte-identical so cached search
// results can be keyed by the encoded path.
func TestFiltersEncodeDeterministic(t *testing.T) {
	f := soldFilters()
	f.PropertyTypes = []PropertyType{PropertyTownhouse, PropertyCondo, PropertyHouse}

	first, err := f.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := f.Encode()
		if err != nil {
			t.Fatalf("Encode() error: %v", err)
		}
		if again != first {
			t.Fatalf("Encode() run %d = %q, want %q", i, again, first)
		}
	}
}
