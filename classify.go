package main

import "strings"

// Classification vocabulary. Rule order matters and mirrors how the survey
// crews actually label placemarks; see classify.
var (
	junkNames = map[string]bool{
		"untitled placemark": true,
		"new placemark":      true,
		"sightseeing":        true,
		"path measure":       true,
		"line measure":       true,
	}

	// measureTraceNames are junk for points but are real cable routes when
	// the surveyor traced a line.
	measureTraceNames = map[string]bool{
		"path measure": true,
		"line measure": true,
	}

	civilWords    = []string{"manhole", "duct", "trench", "drainage", "culvert"}
	cabinetWords  = []string{"cabinet", "fdh", "dist hub"}
	closureWords  = []string{"closure", "joint", "splice"}
	accessWords   = []string{"access point", "handhole", "wall box"}
	oltWords      = []string{"olt", "bts", "exchange"}
)

// classify maps a placemark's (name, geometry type) pair to an asset type.
// It is a pure, total function: rules are evaluated in order, first match
// wins, and the geometry fallback guarantees a decision for every input.
// The second return is false only for junk placemarks that should be skipped.
func classify(name string, geomType GeomType) (AssetType, bool) {
	n := strings.ToLower(strings.TrimSpace(name))

	// Rule 1: junk names. A traced line named like a measurement is still a
	// cable route the surveyor walked, so it survives as a segment.
	if n == "" || junkNames[n] {
		if geomType == GeomLineString && measureTraceNames[n] {
			return AssetFiberSegment, true
		}
		return "", false
	}

	// Rule 2: civil infrastructure. Manhole points hold splice closures;
	// everything else is either a dug route or a structure.
	if containsAny(n, civilWords) {
		if strings.Contains(n, "manhole") && geomType == GeomPoint {
			return AssetSpliceClosure, true
		}
		if geomType == GeomLineString {
			return AssetFiberSegment, true
		}
		return AssetServiceBuilding, true
	}

	if containsAny(n, cabinetWords) {
		return lineOr(geomType, AssetFdhCabinet), true
	}
	if containsAny(n, closureWords) {
		return lineOr(geomType, AssetSpliceClosure), true
	}
	if containsAny(n, accessWords) {
		return lineOr(geomType, AssetAccessPoint), true
	}
	if containsAny(n, oltWords) {
		return lineOr(geomType, AssetOltDevice), true
	}

	// Rule 7: geometry fallback. Unrecognized points and polygons default to
	// customer/subscriber premises.
	if geomType == GeomLineString {
		return AssetFiberSegment, true
	}
	return AssetServiceBuilding, true
}

// lineOr keeps traced lines as segments regardless of what the surveyor
// named them; only point-like geometries become the vocabulary's type.
func lineOr(geomType GeomType, typ AssetType) AssetType {
	if geomType == GeomLineString {
		return AssetFiberSegment
	}
	return typ
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
