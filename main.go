package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

func main() {
	// Parse flags
	configPath := flag.String("config", ".env", "Path to config file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	help := flag.Bool("help", false, "Show help message")
	flag.Parse()

	// Show help if requested or no arguments provided
	args := flag.Args()
	if *help || len(args) == 0 {
		showHelp()
		os.Exit(0)
	}

	command := args[0]

	// Setup logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Handle different commands
	if command == "import" {
		cmdImport(args[1:], configPath)
	} else if command == "merge" {
		cmdMergeAssets(args[1:], configPath)
	} else if command == "details" {
		cmdDetails(args[1:], configPath)
	} else {
		slog.Error("unknown command", "command", command)
		showHelp()
		os.Exit(1)
	}
}

// cmdImport runs the survey ingestion pipeline
func cmdImport(args []string, configPath *string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	cabinets := fs.String("cabinets", "", "KMZ file of FDH cabinets")
	closures := fs.String("closures", "", "KMZ file of splice closures")
	segments := fs.String("segments", "", "KMZ file of fiber segments")
	accessPoints := fs.String("access-points", "", "KMZ file of access points")
	olts := fs.String("olts", "", "KMZ file of OLT devices")
	buildings := fs.String("buildings", "", "KMZ file of service buildings")
	merged := fs.String("merged", "", "Single KMZ containing mixed asset types (classified by name)")
	segmentType := fs.String("segment-type", "", "Segment type for imported segments (default from config)")
	cableType := fs.String("cable-type", "", "Cable type for imported segments")
	dryRun := fs.Bool("dry-run", false, "Parse and report but commit nothing")
	upsert := fs.Bool("upsert", false, "Overwrite existing rows matched by code or name")
	purge := fs.Bool("purge", false, "Delete all existing plant rows before importing")
	limit := fs.Int("limit", 0, "Per-type placemark limit (0 = unlimited)")
	region := fs.String("region", "", "Bounding box filter minLon,minLat,maxLon,maxLat")
	skipArchive := fs.Bool("skip-archive", false, "Skip uploading survey files to the archive bucket")
	fs.Parse(args)

	typed := map[AssetType]string{
		AssetFdhCabinet:      *cabinets,
		AssetSpliceClosure:   *closures,
		AssetFiberSegment:    *segments,
		AssetAccessPoint:     *accessPoints,
		AssetOltDevice:       *olts,
		AssetServiceBuilding: *buildings,
	}
	var files []string
	for _, path := range typed {
		if path != "" {
			files = append(files, path)
		}
	}
	if *merged != "" {
		files = append(files, *merged)
	}
	if len(files) == 0 {
		slog.Error("at least one input file required (-merged or a per-type flag)")
		os.Exit(1)
	}

	// Load configuration
	cfg, err := LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	opts := ImportOptions{
		SegmentType: cfg.Import.SegmentType,
		CableType:   *cableType,
		DryRun:      *dryRun,
		Upsert:      *upsert,
		Purge:       *purge,
		Limit:       *limit,
		Region:      cfg.Import.Region,
	}
	if *segmentType != "" {
		opts.SegmentType = *segmentType
	}
	if *region != "" {
		bound, err := ParseRegion(*region)
		if err != nil {
			slog.Error("invalid region", "error", err)
			os.Exit(1)
		}
		opts.Region = bound
	}

	db, err := NewDatabase(cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	slog.Info("starting import",
		"files", len(files),
		"dry_run", *dryRun,
		"upsert", *upsert,
		"purge", *purge)

	type importOutcome struct {
		report *ImportReport
		err    error
	}
	done := make(chan importOutcome, 1)
	go func() {
		report, err := NewImporter(db).Run(ctx, typed, *merged, opts)
		done <- importOutcome{report, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			var formatErr *FormatError
			if errors.As(out.err, &formatErr) {
				slog.Error("survey file unreadable", "path", formatErr.Path, "reason", formatErr.Reason)
			}
			slog.Error("import failed", "error", out.err)
			os.Exit(1)
		}
		out.report.Print()

		if !*dryRun && !*skipArchive {
			if cfg.S3.AccessKeyID == "" {
				slog.Info("no S3 credentials, skipping survey archive")
				return
			}
			s3Client, err := NewS3Client(cfg.S3)
			if err != nil {
				slog.Warn("failed to initialize S3 client, surveys not archived", "error", err)
				return
			}
			s3Client.ArchiveSurveys(ctx, files)
		}
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
		<-done
		os.Exit(1)
	}
}

// cmdMergeAssets consolidates two duplicate assets
func cmdMergeAssets(args []string, configPath *string) {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	typ := fs.String("type", "", "Asset type (fdh_cabinet, splice_closure, fiber_segment, access_point, olt_device, service_building)")
	source := fs.String("source", "", "Source asset id (will be soft-deleted)")
	target := fs.String("target", "", "Target asset id (survives)")
	fields := fs.String("field", "", "Comma-separated field choices, e.g. name=source,code=target")
	by := fs.String("by", "", "Acting user id")
	fs.Parse(args)

	if *typ == "" || *source == "" || *target == "" || *by == "" {
		slog.Error("-type, -source, -target and -by are required")
		os.Exit(1)
	}

	choices, err := parseFieldChoices(*fields)
	if err != nil {
		slog.Error("invalid -field value", "error", err)
		os.Exit(1)
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := NewDatabase(cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	engine := NewMergeEngine(db)

	result, err := engine.MergeAssets(ctx, AssetType(*typ), *source, *target, *by, choices)
	if err != nil {
		var conflict *MergeConflictError
		if errors.As(err, &conflict) {
			slog.Error("merge conflict", "relation", conflict.Relation)
			os.Exit(1)
		}
		slog.Error("merge failed", "error", err)
		os.Exit(1)
	}

	slog.Info("merge committed",
		"merge_log_id", result.MergeLogID,
		"target_id", result.TargetID)
	for rel, n := range result.ChildrenMigrated {
		slog.Info("relation migrated", "relation", rel, "rows", n)
	}
}

// cmdDetails prints one asset's mergeable fields and child counts
func cmdDetails(args []string, configPath *string) {
	fs := flag.NewFlagSet("details", flag.ExitOnError)
	typ := fs.String("type", "", "Asset type")
	id := fs.String("id", "", "Asset id")
	fs.Parse(args)

	if *typ == "" || *id == "" {
		slog.Error("-type and -id are required")
		os.Exit(1)
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := NewDatabase(cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	engine := NewMergeEngine(db)
	details, err := engine.GetAssetDetails(context.Background(), AssetType(*typ), *id)
	if err != nil {
		slog.Error("failed to load asset details", "error", err)
		os.Exit(1)
	}

	logger := slog.With("type", *typ, "id", *id, "active", details.Asset.IsActive)
	for field, value := range details.Fields {
		logger.Info("field", "name", field, "value", value)
	}
	for rel, count := range details.ChildCounts {
		logger.Info("children", "relation", rel, "count", count)
	}
}

func parseFieldChoices(s string) (map[string]string, error) {
	choices := make(map[string]string)
	if s == "" {
		return choices, nil
	}
	for _, pair := range strings.Split(s, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("expected field=source|target, got %q", pair)
		}
		choices[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return choices, nil
}

func showHelp() {
	help := `Plant Inventory - Import KMZ survey exports and consolidate duplicate assets

Usage:
  plant-inventory [global options] <command> [command options]

Global Options:
  -config string        Path to .env configuration file (default ".env")
  -debug                Enable debug logging
  -help                 Show this help message

Commands:
  import                Import KMZ/KML survey files into the asset inventory
  merge                 Merge a duplicate asset into another of the same type
  details               Show an asset's mergeable fields and child counts

Import Command:
  Usage: plant-inventory import [options]

  Options:
    -cabinets string      KMZ file of FDH cabinets
    -closures string      KMZ file of splice closures
    -segments string      KMZ file of fiber segments
    -access-points string KMZ file of access points
    -olts string          KMZ file of OLT devices
    -buildings string     KMZ file of service buildings
    -merged string        Single KMZ containing mixed asset types; each
                          placemark is classified by name and geometry
    -segment-type string  Segment type stored on imported segments
    -cable-type string    Cable type stored on imported segments
    -dry-run              Parse and report but commit nothing
    -upsert               Overwrite existing rows matched by code or name
    -purge                Delete all existing plant rows before importing
    -limit int            Per-type placemark limit (0 = unlimited)
    -region string        Bounding box filter minLon,minLat,maxLon,maxLat
    -skip-archive         Skip uploading survey files to the archive bucket

  Description:
    Reads each KMZ (or bare KML), drops placemarks outside the configured
    region, collapses duplicates, classifies placemarks from -merged files,
    and upserts asset rows in one transaction. Per-type files bypass
    classification since the operator already declared the type.

Merge Command:
  Usage: plant-inventory merge -type T -source ID -target ID -by USER [options]

  Options:
    -field string         Comma-separated field choices, e.g.
                          name=source,code=target. Fields not listed keep
                          the target's value.

  Description:
    Moves every child row and loose reference from the source asset to the
    target, applies the field choices, soft-deletes the source, and records
    an immutable merge log entry. All-or-nothing: any failure rolls back
    everything.

Details Command:
  Usage: plant-inventory details -type T -id ID

Examples:
  # Dry-run a mixed survey import
  plant-inventory import -merged survey.kmz -dry-run

  # Import per-type files, overwriting existing rows
  plant-inventory import -cabinets cab.kmz -segments seg.kmz -upsert

  # Rebuild the plant from scratch
  plant-inventory import -merged survey.kmz -purge

  # Merge duplicate cabinets, keeping the source's name
  plant-inventory merge -type fdh_cabinet -source A -target B -field name=source -by admin

  # Inspect before merging
  plant-inventory details -type fdh_cabinet -id A
`
	fmt.Print(help)
}
