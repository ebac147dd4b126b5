package main

import (
	"time"

	"github.com/paulmach/orb"
)

// AssetType tags one of the persisted network asset tables.
type AssetType string

const (
	AssetFdhCabinet      AssetType = "fdh_cabinet"
	AssetSpliceClosure   AssetType = "splice_closure"
	AssetFiberSegment    AssetType = "fiber_segment"
	AssetAccessPoint     AssetType = "access_point"
	AssetOltDevice       AssetType = "olt_device"
	AssetServiceBuilding AssetType = "service_building"
)

// assetTypeOrder is the fixed processing order for import buckets and reports.
var assetTypeOrder = []AssetType{
	AssetFdhCabinet,
	AssetSpliceClosure,
	AssetFiberSegment,
	AssetAccessPoint,
	AssetOltDevice,
	AssetServiceBuilding,
}

// GeomType is the geometry kind carried by a placemark.
type GeomType string

const (
	GeomPoint      GeomType = "Point"
	GeomLineString GeomType = "LineString"
	GeomPolygon    GeomType = "Polygon"
)

// Placemark is a named, geometry-bearing record extracted from a KML
// document. It only exists during an import run.
type Placemark struct {
	Name       string
	Properties map[string]string
	GeomType   GeomType
	Coords     []orb.Point // lon, lat order; outer ring only for polygons
}

// Asset is one persisted network asset row. All six asset tables share this
// shape; the segment-only columns stay nil for the other types.
type Asset struct {
	ID          string
	Type        AssetType
	Name        string
	Code        *string
	Lat         *float64
	Lon         *float64
	Path        string // JSON [[lon,lat],...] for line geometries, "" otherwise
	Notes       string // JSON of the original placemark properties
	SegmentType *string
	CableType   *string
	LengthM     *float64
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MergeLog is one append-only audit row written when a merge commits.
// Rows are never updated or deleted after insert.
type MergeLog struct {
	ID               string
	AssetType        AssetType
	SourceAssetID    string
	TargetAssetID    string
	MergedBy         string
	Snapshot         map[string]any // every source column at merge time
	FieldChoices     map[string]string
	ChildrenMigrated map[string]int64 // relation name -> migrated row count
	CreatedAt        time.Time
}
