package main

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/paulmach/orb"
)

// FormatError means the survey archive itself is unusable: no .kml member or
// KML that is not well-formed XML. It aborts the whole import run.
type FormatError struct {
	Path   string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bad survey file %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("bad survey file %s: %s", e.Path, e.Reason)
}

func (e *FormatError) Unwrap() error { return e.Err }

// KML structure. The namespace is pinned on the root element only so that
// exports written without an explicit default namespace still parse.
type kmlRoot struct {
	XMLName  xml.Name    `xml:"kml"`
	Document kmlDocument `xml:"Document"`
}

type kmlDocument struct {
	Placemarks []kmlPlacemark `xml:"Placemark"`
	Folders    []kmlFolder    `xml:"Folder"`
}

type kmlFolder struct {
	Name       string         `xml:"name"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
	Folders    []kmlFolder    `xml:"Folder"`
}

type kmlPlacemark struct {
	Name         string          `xml:"name"`
	Description  string          `xml:"description"`
	ExtendedData kmlExtendedData `xml:"ExtendedData"`
	Point        *kmlGeometry    `xml:"Point"`
	LineString   *kmlGeometry    `xml:"LineString"`
	Polygon      *kmlPolygon     `xml:"Polygon"`
}

type kmlGeometry struct {
	Coordinates string `xml:"coordinates"`
}

type kmlPolygon struct {
	OuterBoundaryIs struct {
		LinearRing kmlGeometry `xml:"LinearRing"`
	} `xml:"outerBoundaryIs"`
}

type kmlExtendedData struct {
	Data       []kmlData       `xml:"Data"`
	SchemaData []kmlSchemaData `xml:"SchemaData"`
}

type kmlData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

type kmlSchemaData struct {
	SimpleData []kmlSimpleData `xml:"SimpleData"`
}

type kmlSimpleData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// ReadSurvey reads a .kmz archive (or a bare .kml file) and returns its
// placemarks. Placemarks without a usable geometry are dropped here; they are
// never counted by the importer.
func ReadSurvey(path string) ([]Placemark, error) {
	logger := slog.With("path", path)
	logger.Debug("reading survey file")

	var data []byte
	var err error

	if strings.HasSuffix(strings.ToLower(path), ".kmz") {
		data, err = extractKMLFromKMZ(path)
		if err != nil {
			return nil, err
		}
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read KML file: %w", err)
		}
	}

	placemarks, err := parseKML(path, data)
	if err != nil {
		return nil, err
	}

	logger.Debug("survey parsed", "placemarks", len(placemarks))
	return placemarks, nil
}

// extractKMLFromKMZ pulls the first .kml member out of a zip archive.
func extractKMLFromKMZ(kmzPath string) ([]byte, error) {
	r, err := zip.OpenReader(kmzPath)
	if err != nil {
		return nil, &FormatError{Path: kmzPath, Reason: "cannot open archive", Err: err}
	}
	defer r.Close()

	for _, f := range r.File {
		// Handles both "doc.kml" and "folder/doc.kml".
		if strings.HasSuffix(strings.ToLower(f.Name), ".kml") {
			rc, err := f.Open()
			if err != nil {
				return nil, &FormatError{Path: kmzPath, Reason: "cannot open KML member", Err: err}
			}
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err != nil {
				return nil, &FormatError{Path: kmzPath, Reason: "cannot read KML member", Err: err}
			}
			return data, nil
		}
	}

	return nil, &FormatError{Path: kmzPath, Reason: "no .kml member in archive"}
}

func parseKML(path string, data []byte) ([]Placemark, error) {
	var root kmlRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, &FormatError{Path: path, Reason: "KML is not well-formed XML", Err: err}
	}

	var placemarks []Placemark
	collect := func(pms []kmlPlacemark) {
		for _, pm := range pms {
			geomType, coords, ok := extractGeometry(pm)
			if !ok || len(coords) == 0 {
				continue
			}
			placemarks = append(placemarks, Placemark{
				Name:       strings.TrimSpace(pm.Name),
				Properties: extractProperties(pm),
				GeomType:   geomType,
				Coords:     coords,
			})
		}
	}

	collect(root.Document.Placemarks)
	var walk func(folders []kmlFolder)
	walk = func(folders []kmlFolder) {
		for _, f := range folders {
			collect(f.Placemarks)
			walk(f.Folders)
		}
	}
	walk(root.Document.Folders)

	return placemarks, nil
}

// extractGeometry probes the placemark's geometry children in document order
// and returns the first one present.
func extractGeometry(pm kmlPlacemark) (GeomType, []orb.Point, bool) {
	if pm.Point != nil {
		return GeomPoint, parseCoordinates(pm.Point.Coordinates), true
	}
	if pm.LineString != nil {
		return GeomLineString, parseCoordinates(pm.LineString.Coordinates), true
	}
	if pm.Polygon != nil {
		return GeomPolygon, parseCoordinates(pm.Polygon.OuterBoundaryIs.LinearRing.Coordinates), true
	}
	return "", nil, false
}

// extractProperties flattens ExtendedData into a string map. Both the
// SchemaData/SimpleData and Data/value forms occur in the field exports;
// the first write wins on duplicate keys.
func extractProperties(pm kmlPlacemark) map[string]string {
	props := make(map[string]string)

	for _, sd := range pm.ExtendedData.SchemaData {
		for _, f := range sd.SimpleData {
			if _, ok := props[f.Name]; !ok {
				props[f.Name] = strings.TrimSpace(f.Value)
			}
		}
	}
	for _, d := range pm.ExtendedData.Data {
		if _, ok := props[d.Name]; !ok {
			props[d.Name] = strings.TrimSpace(d.Value)
		}
	}

	return props
}
