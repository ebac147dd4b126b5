package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

// ImportOptions controls a single import run.
type ImportOptions struct {
	SegmentType string
	CableType   string
	DryRun      bool
	Upsert      bool
	Purge       bool
	Limit       int // per-bucket placemark cap, 0 = unlimited
	Region      *orb.Bound
}

// TypeCounts tallies importer outcomes for one asset type.
type TypeCounts struct {
	Created int
	Updated int
	Skipped int
}

// ImportReport summarizes an import run.
type ImportReport struct {
	Counts                map[AssetType]*TypeCounts
	SkippedClassification int // placemarks the classifier dropped
	Discarded             int // placemarks with no usable geometry or outside the region
	DryRun                bool
}

func (r *ImportReport) Print() {
	logger := slog.With("dry_run", r.DryRun)
	for _, typ := range assetTypeOrder {
		c, ok := r.Counts[typ]
		if !ok {
			continue
		}
		logger.Info("import results",
			"type", typ,
			"created", c.Created,
			"updated", c.Updated,
			"skipped", c.Skipped)
	}
	logger.Info("import complete",
		"skipped_classification", r.SkippedClassification,
		"discarded", r.Discarded)
}

// genericNames per asset type get a coordinate suffix so two unnamed
// cabinets in different streets do not collide.
var genericNames = map[AssetType]map[string]bool{
	AssetFdhCabinet:      {"cabinet": true, "fdh": true, "dist hub": true},
	AssetSpliceClosure:   {"closure": true, "joint": true, "splice": true, "manhole": true},
	AssetAccessPoint:     {"access point": true, "handhole": true, "wall box": true},
	AssetOltDevice:       {"olt": true, "bts": true, "exchange": true},
	AssetServiceBuilding: {"client": true, "building": true, "house": true},
}

// genericSegmentNames are replaced outright with a synthesized name built
// from the segment's endpoints.
var genericSegmentNames = map[string]bool{
	"path measure": true,
	"line measure": true,
	"trenching":    true,
	"trench":       true,
	"route":        true,
	"duct":         true,
}

// Importer runs the survey ingestion pipeline: read, filter, dedupe,
// classify, upsert.
type Importer struct {
	store Store
}

func NewImporter(store Store) *Importer {
	return &Importer{store: store}
}

// Run imports the given survey files. typed maps asset types to KMZ paths
// whose placemarks are imported as that type without classification; the
// optional mergedPath file goes through the classifier. All writes happen in
// one transaction committed at the end, or rolled back on dry-run.
func (imp *Importer) Run(ctx context.Context, typed map[AssetType]string, mergedPath string, opts ImportOptions) (*ImportReport, error) {
	report := &ImportReport{
		Counts: make(map[AssetType]*TypeCounts),
		DryRun: opts.DryRun,
	}

	// One deduper across every input so the same placemark appearing in a
	// per-type file and the merged file only lands once.
	dd := newDeduper()
	buckets := make(map[AssetType][]Placemark)

	for _, typ := range assetTypeOrder {
		path, ok := typed[typ]
		if !ok || path == "" {
			continue
		}
		pms, err := imp.readFiltered(path, opts.Region, report)
		if err != nil {
			return nil, err
		}
		buckets[typ] = append(buckets[typ], dd.Apply(pms)...)
	}

	if mergedPath != "" {
		pms, err := imp.readFiltered(mergedPath, opts.Region, report)
		if err != nil {
			return nil, err
		}
		for _, pm := range dd.Apply(pms) {
			typ, ok := classify(pm.Name, pm.GeomType)
			if !ok {
				report.SkippedClassification++
				continue
			}
			buckets[typ] = append(buckets[typ], pm)
		}
	}

	tx, err := imp.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if opts.Purge {
		if opts.DryRun {
			slog.Info("dry run, purge skipped")
		} else {
			slog.Warn("purging existing plant rows")
			if err := tx.PurgePlant(ctx); err != nil {
				return nil, err
			}
		}
	}

	batch := newBatchState()
	for _, typ := range assetTypeOrder {
		pms := buckets[typ]
		if len(pms) == 0 {
			continue
		}
		if opts.Limit > 0 && len(pms) > opts.Limit {
			slog.Debug("bucket truncated", "type", typ, "limit", opts.Limit, "dropped", len(pms)-opts.Limit)
			pms = pms[:opts.Limit]
		}

		counts := &TypeCounts{}
		report.Counts[typ] = counts
		for _, pm := range pms {
			if err := imp.importOne(ctx, tx, typ, pm, opts, batch, counts); err != nil {
				return nil, err
			}
		}
	}

	if opts.DryRun {
		slog.Info("dry run, rolling back")
		return report, tx.Rollback()
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return report, nil
}

func (imp *Importer) readFiltered(path string, region *orb.Bound, report *ImportReport) ([]Placemark, error) {
	pms, err := ReadSurvey(path)
	if err != nil {
		return nil, err
	}
	slog.Debug("survey read", "path", path, "placemarks", len(pms))

	if region == nil {
		return pms, nil
	}
	kept := pms[:0]
	for _, pm := range pms {
		if inRegion(pm.Coords, *region) {
			kept = append(kept, pm)
		} else {
			report.Discarded++
		}
	}
	return kept, nil
}

// batchState tracks names and codes claimed earlier in this run, before the
// transaction commits, so same-batch collisions are caught.
type batchState struct {
	seenNames map[AssetType]map[string]bool
	seenCodes map[AssetType]map[string]bool
}

func newBatchState() *batchState {
	return &batchState{
		seenNames: make(map[AssetType]map[string]bool),
		seenCodes: make(map[AssetType]map[string]bool),
	}
}

func (b *batchState) claimName(typ AssetType, name string) {
	if b.seenNames[typ] == nil {
		b.seenNames[typ] = make(map[string]bool)
	}
	b.seenNames[typ][name] = true
}

func (b *batchState) nameSeen(typ AssetType, name string) bool {
	return b.seenNames[typ][name]
}

func (b *batchState) claimCode(typ AssetType, code string) {
	if b.seenCodes[typ] == nil {
		b.seenCodes[typ] = make(map[string]bool)
	}
	b.seenCodes[typ][code] = true
}

func (b *batchState) codeSeen(typ AssetType, code string) bool {
	return b.seenCodes[typ][code]
}

func (imp *Importer) importOne(ctx context.Context, tx Tx, typ AssetType, pm Placemark, opts ImportOptions, batch *batchState, counts *TypeCounts) error {
	if len(pm.Coords) == 0 {
		return nil
	}

	lat, lon := representativePoint(pm)
	name := resolveName(typ, pm, lat, lon, batch)
	code := strings.TrimSpace(pm.Properties["code"])

	// Identity: code first when present, else the resolved name.
	var existing *Asset
	var err error
	if code != "" {
		existing, err = tx.FindAssetByCode(ctx, typ, code)
	} else {
		existing, err = tx.FindAssetByName(ctx, typ, name)
	}
	if err != nil {
		return err
	}

	inBatch := false
	if code != "" {
		inBatch = batch.codeSeen(typ, code)
	} else {
		inBatch = batch.nameSeen(typ, name)
	}

	now := time.Now().UTC()
	switch {
	case (existing != nil || inBatch) && !opts.Upsert:
		counts.Skipped++
	case existing != nil && opts.Upsert:
		fillAsset(existing, typ, pm, name, code, lat, lon, opts)
		existing.UpdatedAt = now
		if err := tx.UpdateAsset(ctx, existing); err != nil {
			return err
		}
		counts.Updated++
	case inBatch:
		// Same identity earlier in this batch; the row is not queryable
		// yet, so an upsert re-import degrades to a skip.
		counts.Skipped++
	default:
		a := &Asset{
			ID:        uuid.New().String(),
			Type:      typ,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		fillAsset(a, typ, pm, name, code, lat, lon, opts)
		if err := tx.InsertAsset(ctx, a); err != nil {
			return err
		}
		counts.Created++
	}

	batch.claimName(typ, name)
	if code != "" {
		batch.claimCode(typ, code)
	}
	return nil
}

func fillAsset(a *Asset, typ AssetType, pm Placemark, name, code string, lat, lon float64, opts ImportOptions) {
	a.Name = name
	if code != "" {
		a.Code = &code
	}
	a.Lat = &lat
	a.Lon = &lon
	a.Notes = encodeProperties(pm.Properties)

	if typ != AssetFiberSegment {
		return
	}
	a.Path = encodePath(pm.Coords)
	length := lineLengthM(pm.Coords)
	a.LengthM = &length
	if opts.SegmentType != "" {
		st := opts.SegmentType
		a.SegmentType = &st
	}
	if opts.CableType != "" {
		ct := opts.CableType
		a.CableType = &ct
	}
}

// representativePoint picks the lat/lon stored on the asset row: the point
// itself, a polygon's centroid, or a line's first vertex.
func representativePoint(pm Placemark) (lat, lon float64) {
	switch pm.GeomType {
	case GeomPolygon:
		c := polygonCentroid(pm.Coords)
		return c.Lat(), c.Lon()
	default:
		return pm.Coords[0].Lat(), pm.Coords[0].Lon()
	}
}

// resolveName disambiguates generic names and same-batch duplicates.
func resolveName(typ AssetType, pm Placemark, lat, lon float64, batch *batchState) string {
	name := strings.TrimSpace(pm.Name)
	lower := strings.ToLower(name)

	if typ == AssetFiberSegment {
		if name == "" || genericSegmentNames[lower] {
			start := pm.Coords[0]
			end := pm.Coords[len(pm.Coords)-1]
			name = fmt.Sprintf("Segment %.5f,%.5f -> %.5f,%.5f",
				start.Lat(), start.Lon(), end.Lat(), end.Lon())
		}
	} else if name == "" || genericNames[typ][lower] {
		if name == "" {
			name = defaultBaseName(typ)
		}
		name = fmt.Sprintf("%s (%.5f, %.5f)", name, lat, lon)
	}

	// Exact collision with an earlier placemark in this batch that is not
	// the same identity (different coordinates survived dedupe).
	base := name
	for n := 2; batch.nameSeen(typ, name); n++ {
		name = fmt.Sprintf("%s #%d", base, n)
	}
	return name
}

func defaultBaseName(typ AssetType) string {
	switch typ {
	case AssetFdhCabinet:
		return "Cabinet"
	case AssetSpliceClosure:
		return "Closure"
	case AssetAccessPoint:
		return "Access Point"
	case AssetOltDevice:
		return "OLT"
	default:
		return "Building"
	}
}

func encodeProperties(props map[string]string) string {
	if len(props) == 0 {
		return ""
	}
	data, err := json.Marshal(props)
	if err != nil {
		return ""
	}
	return string(data)
}

func encodePath(coords []orb.Point) string {
	pairs := make([][2]float64, len(coords))
	for i, c := range coords {
		pairs[i] = [2]float64{c.Lon(), c.Lat()}
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return ""
	}
	return string(data)
}
