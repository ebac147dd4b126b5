package main

import (
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

const earthRadiusM = 6371000.0

// parseCoordinates parses a KML coordinate string into points.
// KML format: "lng,lat,elev lng,lat,elev ..." (space-separated, comma-separated inner).
// Tokens that do not yield two parseable floats are skipped, not fatal.
func parseCoordinates(coordString string) []orb.Point {
	var coords []orb.Point

	for _, part := range strings.Fields(strings.TrimSpace(coordString)) {
		values := strings.Split(part, ",")
		if len(values) < 2 {
			continue
		}

		lng, err1 := strconv.ParseFloat(values[0], 64)
		lat, err2 := strconv.ParseFloat(values[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}

		coords = append(coords, orb.Point{lng, lat})
	}

	return coords
}

// polygonCentroid computes the area-weighted centroid of a ring using the
// shoelace formula. The ring is closed first if the input is open. Degenerate
// rings with near-zero area fall back to the arithmetic mean of the vertices.
func polygonCentroid(ring []orb.Point) orb.Point {
	if len(ring) == 0 {
		return orb.Point{}
	}
	if len(ring) == 1 {
		return ring[0]
	}

	closed := ring
	if ring[0] != ring[len(ring)-1] {
		closed = make([]orb.Point, len(ring)+1)
		copy(closed, ring)
		closed[len(ring)] = ring[0]
	}

	var area, cx, cy float64
	for i := 0; i < len(closed)-1; i++ {
		cross := closed[i][0]*closed[i+1][1] - closed[i+1][0]*closed[i][1]
		area += cross
		cx += (closed[i][0] + closed[i+1][0]) * cross
		cy += (closed[i][1] + closed[i+1][1]) * cross
	}
	area /= 2

	if math.Abs(area) < 1e-12 {
		// Degenerate ring, e.g. all vertices collinear.
		var sx, sy float64
		for _, p := range ring {
			sx += p[0]
			sy += p[1]
		}
		n := float64(len(ring))
		return orb.Point{sx / n, sy / n}
	}

	return orb.Point{cx / (6 * area), cy / (6 * area)}
}

// haversineM returns the great-circle distance in meters between two
// lon/lat points.
func haversineM(lon1, lat1, lon2, lat2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}

// lineLengthM sums the haversine distance over consecutive coordinate pairs.
func lineLengthM(coords []orb.Point) float64 {
	var total float64
	for i := 0; i < len(coords)-1; i++ {
		total += haversineM(coords[i][0], coords[i][1], coords[i+1][0], coords[i+1][1])
	}
	return total
}

// inRegion reports whether the first coordinate of a geometry falls inside
// the configured bounding box.
func inRegion(coords []orb.Point, bbox orb.Bound) bool {
	if len(coords) == 0 {
		return false
	}
	return bbox.Contains(coords[0])
}
