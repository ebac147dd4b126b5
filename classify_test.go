package main

import "testing"

func TestClassify_Rules(t *testing.T) {
	tests := []struct {
		name     string
		pmName   string
		geomType GeomType
		want     AssetType
		wantOK   bool
	}{
		// Junk names are skipped
		{"empty name point", "", GeomPoint, "", false},
		{"untitled placemark", "Untitled Placemark", GeomPoint, "", false},
		{"sightseeing", "sightseeing", GeomPoint, "", false},
		{"path measure point", "Path Measure", GeomPoint, "", false},

		// Measurement-trace LineStrings survive as segments
		{"path measure line", "Path Measure", GeomLineString, AssetFiberSegment, true},
		{"line measure line", "line measure", GeomLineString, AssetFiberSegment, true},

		// Civil infrastructure
		{"manhole point", "Manhole 14", GeomPoint, AssetSpliceClosure, true},
		{"manhole line", "Manhole Duct Run", GeomLineString, AssetFiberSegment, true},
		{"trench line", "Trenching Phase 2", GeomLineString, AssetFiberSegment, true},
		{"duct polygon", "Duct Bank", GeomPolygon, AssetServiceBuilding, true},

		// Cabinets
		{"cabinet point", "FDH Cabinet A3", GeomPoint, AssetFdhCabinet, true},
		{"cabinet line", "Cabinet Feed", GeomLineString, AssetFiberSegment, true},

		// Closures
		{"closure point", "Joint Closure 7", GeomPoint, AssetSpliceClosure, true},
		{"splice polygon", "Splice Bay", GeomPolygon, AssetSpliceClosure, true},

		// Access points
		{"handhole point", "Handhole 22", GeomPoint, AssetAccessPoint, true},
		{"wall box", "Wall Box North", GeomPoint, AssetAccessPoint, true},

		// OLT
		{"olt point", "OLT Site 1", GeomPoint, AssetOltDevice, true},
		{"exchange polygon", "Central Exchange", GeomPolygon, AssetOltDevice, true},

		// Rule order: cabinet vocabulary wins over OLT vocabulary
		{"bts cabinet", "BTS Cabinet", GeomPoint, AssetFdhCabinet, true},

		// Geometry fallback
		{"unknown line", "Main Street Run", GeomLineString, AssetFiberSegment, true},
		{"unknown polygon", "Plot 17", GeomPolygon, AssetServiceBuilding, true},
		{"unknown point", "Mrs. Adeyemi", GeomPoint, AssetServiceBuilding, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := classify(tt.pmName, tt.geomType)
			if ok != tt.wantOK {
				t.Fatalf("classify(%q, %s) ok = %v, want %v", tt.pmName, tt.geomType, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("classify(%q, %s) = %s, want %s", tt.pmName, tt.geomType, got, tt.want)
			}
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	// Same input always yields the same output
	inputs := []struct {
		name string
		geom GeomType
	}{
		{"Manhole 3", GeomPoint},
		{"", GeomLineString},
		{"BTS Cabinet", GeomPoint},
		{"anything at all", GeomPolygon},
	}

	for _, in := range inputs {
		first, firstOK := classify(in.name, in.geom)
		for i := 0; i < 10; i++ {
			got, ok := classify(in.name, in.geom)
			if got != first || ok != firstOK {
				t.Fatalf("classify(%q, %s) changed between calls", in.name, in.geom)
			}
		}
	}
}

func TestClassify_Total(t *testing.T) {
	// Every geometry type yields a decision for arbitrary names
	names := []string{"", "x", "Untitled Placemark", "Manhole", "some very long name with no keywords"}
	geoms := []GeomType{GeomPoint, GeomLineString, GeomPolygon}

	for _, name := range names {
		for _, geom := range geoms {
			typ, ok := classify(name, geom)
			if ok && typ == "" {
				t.Errorf("classify(%q, %s) returned ok with empty type", name, geom)
			}
		}
	}
}
