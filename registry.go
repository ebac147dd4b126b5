package main

// assetTable maps each asset type to its table. The same map drives the
// importer, the merge engine and the purge path.
var assetTable = map[AssetType]string{
	AssetFdhCabinet:      "fdh_cabinets",
	AssetSpliceClosure:   "splice_closures",
	AssetFiberSegment:    "fiber_segments",
	AssetAccessPoint:     "access_points",
	AssetOltDevice:       "olt_devices",
	AssetServiceBuilding: "service_buildings",
}

// ChildRelation is a child table owned by an asset through a real,
// database-enforced foreign key column.
type ChildRelation struct {
	Name   string // relation name reported to callers and in the merge log
	Table  string
	FKCol  string
}

// LooseRef is a column that stores a bare asset id with no database-level
// foreign key (the schema's polymorphic references). These are enumerated
// here exhaustively; nothing is discovered at runtime.
type LooseRef struct {
	Table  string
	Column string
}

func (r LooseRef) Name() string { return r.Table + "." + r.Column }

// MergeSpec describes everything the merge engine needs to know about one
// mergeable asset type.
type MergeSpec struct {
	Table     string
	Children  []ChildRelation
	LooseRefs []LooseRef
	Fields    []string // field names eligible for source/target resolution
}

// Registry is the full mergeable-asset configuration. It is built once at
// process start by NewRegistry and passed by reference into the merge
// engine; nothing mutates it afterwards.
type Registry map[AssetType]MergeSpec

// Equipment ids (cabinets, closures, access points, OLT devices) can all end
// up in a strand's upstream/downstream pointers, so those loose refs repeat
// across the equipment types. work_orders.ref_id can point at any asset.
var (
	strandUpstream   = LooseRef{Table: "fiber_strands", Column: "upstream_id"}
	strandDownstream = LooseRef{Table: "fiber_strands", Column: "downstream_id"}
	workOrderRef     = LooseRef{Table: "work_orders", Column: "ref_id"}
)

var equipmentRefs = []LooseRef{strandUpstream, strandDownstream, workOrderRef}

var pointFields = []string{"name", "code", "lat", "lon", "notes"}

// NewRegistry builds the static mergeable-asset configuration.
func NewRegistry() Registry {
	segmentFields := append(append([]string{}, pointFields...),
		"path", "segment_type", "cable_type", "length_m")

	return Registry{
		AssetFdhCabinet: {
			Table: assetTable[AssetFdhCabinet],
			Children: []ChildRelation{
				{Name: "splitters", Table: "splitters", FKCol: "fdh_cabinet_id"},
			},
			LooseRefs: equipmentRefs,
			Fields:    pointFields,
		},
		AssetSpliceClosure: {
			Table: assetTable[AssetSpliceClosure],
			Children: []ChildRelation{
				{Name: "splice_trays", Table: "splice_trays", FKCol: "splice_closure_id"},
			},
			LooseRefs: equipmentRefs,
			Fields:    pointFields,
		},
		AssetFiberSegment: {
			Table: assetTable[AssetFiberSegment],
			Children: []ChildRelation{
				{Name: "fiber_strands", Table: "fiber_strands", FKCol: "fiber_segment_id"},
			},
			LooseRefs: []LooseRef{workOrderRef},
			Fields:    segmentFields,
		},
		AssetAccessPoint: {
			Table: assetTable[AssetAccessPoint],
			Children: []ChildRelation{
				{Name: "drop_lines", Table: "drop_lines", FKCol: "access_point_id"},
			},
			LooseRefs: equipmentRefs,
			Fields:    pointFields,
		},
		AssetOltDevice: {
			Table: assetTable[AssetOltDevice],
			Children: []ChildRelation{
				{Name: "olt_cards", Table: "olt_cards", FKCol: "olt_device_id"},
			},
			LooseRefs: equipmentRefs,
			Fields:    pointFields,
		},
		AssetServiceBuilding: {
			Table: assetTable[AssetServiceBuilding],
			Children: []ChildRelation{
				{Name: "drop_lines", Table: "drop_lines", FKCol: "service_building_id"},
			},
			LooseRefs: []LooseRef{workOrderRef},
			Fields:    pointFields,
		},
	}
}

// fieldAccessor is one entry in the typed field table used for merge field
// resolution. Copying goes through these closures so there is no reflection
// anywhere in the merge path.
type fieldAccessor struct {
	get  func(a *Asset) any
	copy func(dst, src *Asset)
}

var mergeFieldTable = map[string]fieldAccessor{
	"name": {
		get:  func(a *Asset) any { return a.Name },
		copy: func(dst, src *Asset) { dst.Name = src.Name },
	},
	"code": {
		get:  func(a *Asset) any { return strPtrValue(a.Code) },
		copy: func(dst, src *Asset) { dst.Code = src.Code },
	},
	"lat": {
		get:  func(a *Asset) any { return floatPtrValue(a.Lat) },
		copy: func(dst, src *Asset) { dst.Lat = src.Lat },
	},
	"lon": {
		get:  func(a *Asset) any { return floatPtrValue(a.Lon) },
		copy: func(dst, src *Asset) { dst.Lon = src.Lon },
	},
	"path": {
		get:  func(a *Asset) any { return a.Path },
		copy: func(dst, src *Asset) { dst.Path = src.Path },
	},
	"notes": {
		get:  func(a *Asset) any { return a.Notes },
		copy: func(dst, src *Asset) { dst.Notes = src.Notes },
	},
	"segment_type": {
		get:  func(a *Asset) any { return strPtrValue(a.SegmentType) },
		copy: func(dst, src *Asset) { dst.SegmentType = src.SegmentType },
	},
	"cable_type": {
		get:  func(a *Asset) any { return strPtrValue(a.CableType) },
		copy: func(dst, src *Asset) { dst.CableType = src.CableType },
	},
	"length_m": {
		get:  func(a *Asset) any { return floatPtrValue(a.LengthM) },
		copy: func(dst, src *Asset) { dst.LengthM = src.LengthM },
	},
}

// snapshotAsset captures every column of a row into a plain map, used for
// the merge log snapshot and the details preview.
func snapshotAsset(a *Asset) map[string]any {
	snap := map[string]any{
		"id":         a.ID,
		"is_active":  a.IsActive,
		"created_at": a.CreatedAt,
		"updated_at": a.UpdatedAt,
	}
	fields := pointFields
	if a.Type == AssetFiberSegment {
		fields = append(append([]string{}, pointFields...),
			"path", "segment_type", "cable_type", "length_m")
	}
	for _, f := range fields {
		snap[f] = mergeFieldTable[f].get(a)
	}
	return snap
}

func strPtrValue(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func floatPtrValue(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
