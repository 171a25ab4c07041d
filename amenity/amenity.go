// Package amenity extracts heating-related text fragments from listing
// detail payloads and classifies them into fuel/appliance categories.
//
// The detail payload is modeled as a list of Groups. Each group carries
// entries that are either named ("Heating Fuel: Gas") or bare value lists
// ("Forced Air", "Electric"). The source mixes both shapes freely, so the
// Entry type keeps the distinction explicit instead of round-tripping
// through strings.
package amenity

// Entry is one amenity fact inside a group. An empty Name marks a dangling
// bare value list.
type Entry struct {
	Name   string
	Values []string
}

// Named reports whether the entry carries a key before its values.
func (e Entry) Named() bool { return e.Name != "" }

// Group is one titled section of a listing's detail payload, e.g.
// "Heating & Cooling" or "Utilities".
type Group struct {
	Title   string
	Entries []Entry
}
