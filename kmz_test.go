package main

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleKML = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <Placemark>
      <name>FDH Cabinet A1</name>
      <ExtendedData>
        <Data name="code"><value>CAB-001</value></Data>
        <Data name="capacity"><value>144</value></Data>
      </ExtendedData>
      <Point><coordinates>7.1,9.0,0</coordinates></Point>
    </Placemark>
    <Folder>
      <name>Routes</name>
      <Placemark>
        <name>Main Feed</name>
        <LineString><coordinates>7.1,9.0,0 7.2,9.1,0 7.3,9.2,0</coordinates></LineString>
      </Placemark>
      <Folder>
        <name>Nested</name>
        <Placemark>
          <name>Plot 5</name>
          <ExtendedData>
            <SchemaData>
              <SimpleData name="owner">Adeyemi</SimpleData>
            </SchemaData>
          </ExtendedData>
          <Polygon><outerBoundaryIs><LinearRing>
            <coordinates>7.0,9.0 7.1,9.0 7.1,9.1 7.0,9.1 7.0,9.0</coordinates>
          </LinearRing></outerBoundaryIs></Polygon>
        </Placemark>
      </Folder>
    </Folder>
    <Placemark>
      <name>No Geometry Here</name>
    </Placemark>
  </Document>
</kml>`

// writeKMZ builds a zip archive in a temp dir with the given member names
// and contents.
func writeKMZ(t *testing.T, members map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "survey.kmz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range members {
		mw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := mw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadSurvey_KMZ(t *testing.T) {
	path := writeKMZ(t, map[string]string{
		"images/overlay.png": "not-kml",
		"doc.kml":            sampleKML,
	})

	pms, err := ReadSurvey(path)
	if err != nil {
		t.Fatal(err)
	}

	// Geometry-less placemark is dropped
	if len(pms) != 3 {
		t.Fatalf("expected 3 placemarks, got %d", len(pms))
	}

	cab := pms[0]
	if cab.Name != "FDH Cabinet A1" || cab.GeomType != GeomPoint {
		t.Errorf("unexpected first placemark: %+v", cab)
	}
	if cab.Properties["code"] != "CAB-001" || cab.Properties["capacity"] != "144" {
		t.Errorf("extended data not extracted: %v", cab.Properties)
	}

	feed := pms[1]
	if feed.GeomType != GeomLineString || len(feed.Coords) != 3 {
		t.Errorf("unexpected line placemark: %+v", feed)
	}

	plot := pms[2]
	if plot.GeomType != GeomPolygon || len(plot.Coords) != 5 {
		t.Errorf("nested folder polygon not found: %+v", plot)
	}
	if plot.Properties["owner"] != "Adeyemi" {
		t.Errorf("SimpleData not extracted: %v", plot.Properties)
	}
}

func TestReadSurvey_BareKML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "survey.kml")
	if err := os.WriteFile(path, []byte(sampleKML), 0644); err != nil {
		t.Fatal(err)
	}

	pms, err := ReadSurvey(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(pms) != 3 {
		t.Fatalf("expected 3 placemarks, got %d", len(pms))
	}
}

func TestReadSurvey_NoKMLMember(t *testing.T) {
	path := writeKMZ(t, map[string]string{
		"readme.txt": "nothing useful",
	})

	_, err := ReadSurvey(path)
	var formatErr *FormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("expected FormatError, got %v", err)
	}
}

func TestReadSurvey_MalformedXML(t *testing.T) {
	path := writeKMZ(t, map[string]string{
		"doc.kml": "<kml><Document><Placemark></kml>",
	})

	_, err := ReadSurvey(path)
	var formatErr *FormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("expected FormatError, got %v", err)
	}
}

func TestReadSurvey_FirstWriteWinsOnDuplicateKeys(t *testing.T) {
	kml := `<?xml version="1.0"?>
<kml xmlns="http://www.opengis.net/kml/2.2"><Document>
  <Placemark>
    <name>Closure 1</name>
    <ExtendedData>
      <SchemaData><SimpleData name="code">SC-1</SimpleData></SchemaData>
      <Data name="code"><value>SC-other</value></Data>
    </ExtendedData>
    <Point><coordinates>7.1,9.0</coordinates></Point>
  </Placemark>
</Document></kml>`

	path := writeKMZ(t, map[string]string{"doc.kml": kml})
	pms, err := ReadSurvey(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(pms) != 1 {
		t.Fatalf("expected 1 placemark, got %d", len(pms))
	}
	if pms[0].Properties["code"] != "SC-1" {
		t.Errorf("SimpleData should win over Data, got %q", pms[0].Properties["code"])
	}
}
