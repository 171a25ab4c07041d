// Package models defines data structures shared across the collector.
package models

import "time"

// ListingRecord is one row of bulk search results for a ZIP code. It is not
// mutated after the search phase except to attach the derived Heating result.
type ListingRecord struct {
	Address    string  `csv:"address" json:"address"`
	City       string  `csv:"city" json:"city"`
	State      string  `csv:"state" json:"state"`
	ZIP        string  `csv:"zip" json:"zip"`
	Price      int64   `csv:"price" json:"price"`
	YearBuilt  int     `csv:"year_built" json:"year_built"`
	SquareFeet int64   `csv:"square_feet" json:"square_feet"`
	Latitude   float64 `csv:"latitude" json:"latitude"`
	Longitude  float64 `csv:"longitude" json:"longitude"`
	// DetailRef is the path used to fetch the full listing detail payload.
	DetailRef string    `csv:"detail_ref" json:"detail_ref"`
	ScrapedAt time.Time `csv:"scraped_at" json:"scraped_at"`

	Heating FuelCategoryResult `json:"heating"`
	// HadDetail reports whether a detail payload was retrieved for this
	// listing. An all-false Heating with HadDetail == false means the fuel is
	// unknown, not that the house is unheated.
	HadDetail bool `csv:"had_detail" json:"had_detail"`
}

// FuelCategoryResult holds one flag per recognized heating fuel or appliance
// category. The zero value (all false) is the default for listings with no
// usable heating data.
type FuelCategoryResult struct {
	Electricity      bool `json:"electricity"`
	NaturalGas       bool `json:"natural_gas"`
	Propane          bool `json:"propane"`
	DieselHeatingOil bool `json:"diesel_heating_oil"`
	WoodPellet       bool `json:"wood_pellet"`
	SolarHeating     bool `json:"solar_heating"`
	HeatPump         bool `json:"heat_pump"`
	Baseboard        bool `json:"baseboard"`
	Furnace          bool `json:"furnace"`
	Boiler           bool `json:"boiler"`
	Radiator         bool `json:"radiator"`
	RadiantFloor     bool `json:"radiant_floor"`
}

// CategoryNames lists the category columns in output order.
var CategoryNames = []string{
	"Electricity",
	"Natural Gas",
	"Propane",
	"Diesel/Heating Oil",
	"Wood/Pellet",
	"Solar Heating",
	"Heat Pump",
	"Baseboard",
	"Furnace",
	"Boiler",
	"Radiator",
	"Radiant Floor",
}

// Flags returns the category values in the same order as CategoryNames.
func (r FuelCategoryResult) Flags() []bool {
	return []bool{
		r.Electricity,
		r.NaturalGas,
		r.Propane,
		r.DieselHeatingOil,
		r.WoodPellet,
		r.SolarHeating,
		r.HeatPump,
		r.Baseboard,
		r.Furnace,
		r.Boiler,
		r.Radiator,
		r.RadiantFloor,
	}
}

// Set marks the named category true. Unknown names are ignored so the rule
// table can carry categories this build does not model yet.
func (r *FuelCategoryResult) Set(name string) {
	switch name {
	case "Electricity":
		r.Electricity = true
	case "Natural Gas":
		r.NaturalGas = true
	case "Propane":
		r.Propane = true
	case "Diesel/Heating Oil":
		r.DieselHeatingOil = true
	case "Wood/Pellet":
		r.WoodPellet = true
	case "Solar Heating":
		r.SolarHeating = true
	case "Heat Pump":
		r.HeatPump = true
	case "Baseboard":
		r.Baseboard = true
	case "Furnace":
		r.Furnace = true
	case "Boiler":
		r.Boiler = true
	case "Radiator":
		r.Radiator = true
	case "Radiant Floor":
		r.RadiantFloor = true
	}
}

// Merge ORs other into r. Flags never transition back to false.
func (r *FuelCategoryResult) Merge(other FuelCategoryResult) {
	r.Electricity = r.Electricity || other.Electricity
	r.NaturalGas = r.NaturalGas || other.NaturalGas
	r.Propane = r.Propane || other.Propane
	r.DieselHeatingOil = r.DieselHeatingOil || other.DieselHeatingOil
	r.WoodPellet = r.WoodPellet || other.WoodPellet
	r.SolarHeating = r.SolarHeating || other.SolarHeating
	r.HeatPump = r.HeatPump || other.HeatPump
	r.Baseboard = r.Baseboard || other.Baseboard
	r.Furnace = r.Furnace || other.Furnace
	r.Boiler = r.Boiler || other.Boiler
	r.Radiator = r.Radiator || other.Radiator
	r.RadiantFloor = r.RadiantFloor || other.RadiantFloor
}

// RunReport summarizes one metro run. Partial success is the expected steady
// state, so counts are reported instead of raising for per-unit failures.
type RunReport struct {
	Metro             string
	StartTime         time.Time
	EndTime           time.Time
	ZIPsAttempted     int
	ZIPsWithData      int
	ZIPsEmpty         int
	ZIPsFailed        int
	ListingsProcessed int
	// ListingsUnknown counts rows whose detail fetch failed; ListingsNoMatch
	// counts rows with detail that matched no category. Callers treat the
	// two differently, so they are never folded together.
	ListingsUnknown int
	ListingsNoMatch int
	FailedZIPs        []string
	ErrorsByType      map[string]int
}
