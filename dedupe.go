package main

import (
	"math"
	"strings"
)

// identityKey is the equivalence class used to collapse duplicate placemarks
// within one import run. Coordinates are rounded to 5 decimals (~1m) so that
// GPS jitter between repeated survey passes does not produce duplicates.
type identityKey struct {
	name     string
	geomType GeomType
	startLon float64
	startLat float64
	endLon   float64
	endLat   float64
}

func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}

func placemarkKey(pm Placemark) identityKey {
	start := pm.Coords[0]
	end := start
	if len(pm.Coords) > 1 {
		end = pm.Coords[len(pm.Coords)-1]
	}
	return identityKey{
		name:     strings.ToLower(strings.TrimSpace(pm.Name)),
		geomType: pm.GeomType,
		startLon: round5(start[0]),
		startLat: round5(start[1]),
		endLon:   round5(end[0]),
		endLat:   round5(end[1]),
	}
}

// deduper collapses placemarks with equivalent identity keys across a whole
// import run. The first occurrence of a key is kept, later ones discarded,
// and input order is preserved. Feeding the output back in changes nothing.
type deduper struct {
	seen map[identityKey]bool
}

func newDeduper() *deduper {
	return &deduper{seen: make(map[identityKey]bool)}
}

func (d *deduper) Apply(placemarks []Placemark) []Placemark {
	kept := make([]Placemark, 0, len(placemarks))
	for _, pm := range placemarks {
		if len(pm.Coords) == 0 {
			continue
		}
		key := placemarkKey(pm)
		if d.seen[key] {
			continue
		}
		d.seen[key] = true
		kept = append(kept, pm)
	}
	return kept
}
