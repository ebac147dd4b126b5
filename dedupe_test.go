package main

import (
	"testing"

	"github.com/paulmach/orb"
)

func pointPlacemark(name string, lon, lat float64) Placemark {
	return Placemark{
		Name:     name,
		GeomType: GeomPoint,
		Coords:   []orb.Point{{lon, lat}},
	}
}

func TestDedupe_RoundingCollapses(t *testing.T) {
	// Within 5-decimal rounding these are the same cabinet; the third is not.
	input := []Placemark{
		pointPlacemark("Cabinet", 7.100001, 9.0),
		pointPlacemark("Cabinet", 7.100004, 9.0),
		pointPlacemark("Cabinet", 7.5, 9.0),
	}

	out := newDeduper().Apply(input)
	if len(out) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(out))
	}
	if out[0].Coords[0].Lon() != 7.100001 {
		t.Errorf("first occurrence should win, got %v", out[0].Coords[0])
	}
	if out[1].Coords[0].Lon() != 7.5 {
		t.Errorf("distinct location should survive, got %v", out[1].Coords[0])
	}
}

func TestDedupe_NameCaseAndWhitespace(t *testing.T) {
	input := []Placemark{
		pointPlacemark("  Cabinet ", 7.1, 9.0),
		pointPlacemark("cabinet", 7.1, 9.0),
	}

	out := newDeduper().Apply(input)
	if len(out) != 1 {
		t.Fatalf("expected name normalization to collapse, got %d survivors", len(out))
	}
}

func TestDedupe_GeometryTypeDistinguishes(t *testing.T) {
	line := Placemark{
		Name:     "Cabinet",
		GeomType: GeomLineString,
		Coords:   []orb.Point{{7.1, 9.0}, {7.1, 9.0}},
	}
	input := []Placemark{pointPlacemark("Cabinet", 7.1, 9.0), line}

	out := newDeduper().Apply(input)
	if len(out) != 2 {
		t.Fatalf("same name+location but different geometry should both survive, got %d", len(out))
	}
}

func TestDedupe_EndpointsMatter(t *testing.T) {
	mk := func(end orb.Point) Placemark {
		return Placemark{
			Name:     "Route",
			GeomType: GeomLineString,
			Coords:   []orb.Point{{7.0, 9.0}, end},
		}
	}

	input := []Placemark{mk(orb.Point{7.2, 9.0}), mk(orb.Point{7.3, 9.0}), mk(orb.Point{7.2, 9.0})}
	out := newDeduper().Apply(input)
	if len(out) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(out))
	}
}

func TestDedupe_Idempotent(t *testing.T) {
	input := []Placemark{
		pointPlacemark("Cabinet", 7.1, 9.0),
		pointPlacemark("Cabinet", 7.1, 9.0),
		pointPlacemark("Closure", 7.2, 9.0),
	}

	once := newDeduper().Apply(input)
	twice := newDeduper().Apply(once)
	if len(once) != len(twice) {
		t.Fatalf("dedupe not idempotent: %d then %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].Name != twice[i].Name {
			t.Errorf("order changed at %d: %q vs %q", i, once[i].Name, twice[i].Name)
		}
	}
}

func TestDedupe_DropsEmptyGeometry(t *testing.T) {
	input := []Placemark{
		{Name: "Ghost", GeomType: GeomPoint},
		pointPlacemark("Cabinet", 7.1, 9.0),
	}

	out := newDeduper().Apply(input)
	if len(out) != 1 || out[0].Name != "Cabinet" {
		t.Fatalf("zero-coordinate placemark should be dropped, got %v", out)
	}
}

func TestRound5(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{7.100004, 7.1},
		{7.100006, 7.10001},
		{-7.100004, -7.1},
		{0, 0},
	}
	for _, tt := range tests {
		if got := round5(tt.in); got != tt.want {
			t.Errorf("round5(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
