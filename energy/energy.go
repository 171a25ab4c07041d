// Package energy wraps the EIA open-data API for residential heating-fuel
// price series, plus the unit conversions needed to compare fuels on a
// delivered-heat basis.
package energy

import "time"

// FuelType selects a price series family.
type FuelType string

const (
	Electricity FuelType = "electricity"
	NaturalGas  FuelType = "natural_gas"
	HeatingOil  FuelType = "heating_oil"
	Propane     FuelType = "propane"
)

// Nominal heat content per retail unit.
const (
	btuPerKWh              = 3412.0
	btuPerMcfNaturalGas    = 1_037_000.0
	btuPerGallonHeatingOil = 138_500.0
	btuPerGallonPropane    = 91_452.0
)

// Typical seasonal efficiency of the dominant heater burning each fuel.
// Electric resistance converts fully; combustion appliances lose flue heat.
var heaterEfficiency = map[FuelType]float64{
	Electricity: 1.00,
	NaturalGas:  0.90,
	HeatingOil:  0.83,
	Propane:     0.90,
}

// BTUPerUnit returns the heat content of one retail unit of the fuel
// (kWh, Mcf, or gallon).
func BTUPerUnit(fuel FuelType) float64 {
	switch fuel {
	case Electricity:
		return btuPerKWh
	case NaturalGas:
		return btuPerMcfNaturalGas
	case HeatingOil:
		return btuPerGallonHeatingOil
	case Propane:
		return btuPerGallonPropane
	}
	return 0
}

// Efficiency returns the assumed seasonal heater efficiency for the fuel.
func Efficiency(fuel FuelType) float64 {
	if e, ok := heaterEfficiency[fuel]; ok {
		return e
	}
	return 1
}

// PricePerMMBTU converts a retail unit price to dollars per million BTU of
// delivered heat, adjusting for heater efficiency.
func PricePerMMBTU(fuel FuelType, pricePerUnit float64) float64 {
	btu := BTUPerUnit(fuel)
	if btu == 0 {
		return 0
	}
	return pricePerUnit / (btu / 1_000_000) / Efficiency(fuel)
}

// HeatingSeason returns the heating-season window that begins in the given
// year: October 1 through March 31 of the following year.
func HeatingSeason(year int) (start, end time.Time) {
	start = time.Date(year, time.October, 1, 0, 0, 0, 0, time.UTC)
	end = time.Date(year+1, time.March, 31, 0, 0, 0, 0, time.UTC)
	return start, end
}

// States covered by the weekly heating-oil residential price survey. Other
// states have no heating-oil series, so callers must check before querying.
var heatingOilStates = map[string]struct{}{
	"CT": {}, "DE": {}, "MA": {}, "MD": {}, "ME": {}, "NH": {},
	"NJ": {}, "NY": {}, "PA": {}, "RI": {}, "VA": {}, "VT": {}, "NC": {},
}

// States covered by the weekly residential propane price survey.
var propaneStates = map[string]struct{}{
	"CT": {}, "DE": {}, "MA": {}, "MD": {}, "ME": {}, "NH": {},
	"NJ": {}, "NY": {}, "PA": {}, "RI": {}, "VA": {}, "VT": {}, "NC": {},
	"IA": {}, "IL": {}, "IN": {}, "KS": {}, "KY": {}, "MI": {}, "MN": {},
	"MO": {}, "ND": {}, "NE": {}, "OH": {}, "OK": {}, "SD": {}, "TN": {},
	"TX": {}, "WI": {},
}

// HasSeries reports whether the EIA publishes a state-level residential
// series for the fuel. Electricity and natural gas cover every state.
func HasSeries(fuel FuelType, state string) bool {
	switch fuel {
	case Electricity, NaturalGas:
		return true
	case HeatingOil:
		_, ok := heatingOilStates[state]
		return ok
	case Propane:
		_, ok := propaneStates[state]
		return ok
	}
	return false
}
