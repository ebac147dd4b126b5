package main

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Standalone survey inspector. Duplicates the minimal KML structures on
// purpose so it stays a single-file tool with no module wiring.

type KML struct {
	XMLName  xml.Name `xml:"kml"`
	Document Document `xml:"Document"`
}

type Document struct {
	Folders    []Folder    `xml:"Folder"`
	Placemarks []Placemark `xml:"Placemark"`
}

type Folder struct {
	Name       string      `xml:"name"`
	Folders    []Folder    `xml:"Folder"`
	Placemarks []Placemark `xml:"Placemark"`
}

type Placemark struct {
	Name       string    `xml:"name"`
	Point      *Geometry `xml:"Point"`
	LineString *Geometry `xml:"LineString"`
	Polygon    *Geometry `xml:"Polygon>outerBoundaryIs>LinearRing"`
}

type Geometry struct {
	Coordinates string `xml:"coordinates"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: inspect-kmz <path-to-kmz-or-kml>")
		fmt.Println("Example: inspect-kmz ~/surveys/district-east.kmz")
		os.Exit(1)
	}

	filePath := os.Args[1]

	var kmlData []byte
	var err error

	// Check if KMZ or KML
	if strings.HasSuffix(strings.ToLower(filePath), ".kmz") {
		kmlData, err = extractKMLFromKMZ(filePath)
		if err != nil {
			fmt.Printf("Error extracting KML from KMZ: %v\n", err)
			os.Exit(1)
		}
	} else {
		kmlData, err = os.ReadFile(filePath)
		if err != nil {
			fmt.Printf("Error reading KML file: %v\n", err)
			os.Exit(1)
		}
	}

	var kml KML
	if err := xml.Unmarshal(kmlData, &kml); err != nil {
		fmt.Printf("Error parsing KML: %v\n", err)
		os.Exit(1)
	}

	analyze(kml, filepath.Base(filePath))
}

func extractKMLFromKMZ(kmzPath string) ([]byte, error) {
	r, err := zip.OpenReader(kmzPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	for _, f := range r.File {
		// Look for any .kml file (handles both "doc.kml" and "folder/doc.kml")
		if strings.HasSuffix(strings.ToLower(f.Name), ".kml") {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}

	return nil, fmt.Errorf("no .kml file found in KMZ archive")
}

func collect(folders []Folder, out *[]Placemark) {
	for _, f := range folders {
		*out = append(*out, f.Placemarks...)
		collect(f.Folders, out)
	}
}

// classifyPreview mirrors the import classifier closely enough to preview
// bucket sizes before a real run.
func classifyPreview(name, geom string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	isLine := geom == "LineString"

	junk := map[string]bool{
		"": true, "untitled placemark": true, "new placemark": true,
		"sightseeing": true, "path measure": true, "line measure": true,
	}
	if junk[n] {
		if isLine && (n == "path measure" || n == "line measure") {
			return "fiber_segment"
		}
		return "skip"
	}

	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(n, w) {
				return true
			}
		}
		return false
	}

	switch {
	case has("manhole", "duct", "trench", "drainage", "culvert"):
		if has("manhole") && geom == "Point" {
			return "splice_closure"
		}
		if isLine {
			return "fiber_segment"
		}
		return "service_building"
	case has("cabinet", "fdh", "dist hub"):
		if isLine {
			return "fiber_segment"
		}
		return "fdh_cabinet"
	case has("closure", "joint", "splice"):
		if isLine {
			return "fiber_segment"
		}
		return "splice_closure"
	case has("access point", "handhole", "wall box"):
		if isLine {
			return "fiber_segment"
		}
		return "access_point"
	case has("olt", "bts", "exchange"):
		if isLine {
			return "fiber_segment"
		}
		return "olt_device"
	case isLine:
		return "fiber_segment"
	default:
		return "service_building"
	}
}

func geomType(pm Placemark) string {
	switch {
	case pm.Point != nil:
		return "Point"
	case pm.LineString != nil:
		return "LineString"
	case pm.Polygon != nil:
		return "Polygon"
	default:
		return "none"
	}
}

func analyze(kml KML, filename string) {
	placemarks := append([]Placemark{}, kml.Document.Placemarks...)
	collect(kml.Document.Folders, &placemarks)

	geomCounts := make(map[string]int)
	nameCounts := make(map[string]int)
	classCounts := make(map[string]int)
	totalCoordinates := 0
	unnamed := 0

	for _, pm := range placemarks {
		g := geomType(pm)
		geomCounts[g]++
		if g != "none" {
			classCounts[classifyPreview(pm.Name, g)]++
		}

		name := strings.TrimSpace(pm.Name)
		if name == "" {
			unnamed++
		} else {
			nameCounts[strings.ToLower(name)]++
		}

		for _, g := range []*Geometry{pm.Point, pm.LineString, pm.Polygon} {
			if g != nil {
				totalCoordinates += len(strings.Fields(g.Coordinates))
			}
		}
	}

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Survey Analysis: %s\n", filename)
	fmt.Println(strings.Repeat("=", 70))
	fmt.Println()

	fmt.Println("Counts:")
	fmt.Printf("  Placemarks:               %d\n", len(placemarks))
	fmt.Printf("  Unnamed placemarks:       %d\n", unnamed)
	fmt.Printf("  Total coordinate points:  %d\n", totalCoordinates)
	fmt.Println()

	fmt.Println("Geometry types:")
	for _, g := range []string{"Point", "LineString", "Polygon", "none"} {
		if geomCounts[g] > 0 {
			fmt.Printf("  %-12s %d\n", g, geomCounts[g])
		}
	}
	fmt.Println()

	fmt.Println("Would classify as:")
	classes := make([]string, 0, len(classCounts))
	for c := range classCounts {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	for _, c := range classes {
		fmt.Printf("  %-18s %d\n", c, classCounts[c])
	}
	fmt.Println()

	// Repeated names are merge candidates after import
	type nameCount struct {
		name  string
		count int
	}
	var repeated []nameCount
	for name, count := range nameCounts {
		if count > 1 {
			repeated = append(repeated, nameCount{name, count})
		}
	}
	sort.Slice(repeated, func(i, j int) bool {
		if repeated[i].count != repeated[j].count {
			return repeated[i].count > repeated[j].count
		}
		return repeated[i].name < repeated[j].name
	})

	fmt.Printf("Repeated names (%d):\n", len(repeated))
	for i, nc := range repeated {
		if i >= 20 {
			fmt.Printf("  ... and %d more\n", len(repeated)-20)
			break
		}
		bar := strings.Repeat("#", min(nc.count, 50))
		fmt.Printf("  %4d  %-40s %s\n", nc.count, nc.name, bar)
	}
	fmt.Println()
	fmt.Println(strings.Repeat("=", 70))
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
