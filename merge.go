package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

// MergeValidationError reports a merge request that was rejected before any
// row was touched.
type MergeValidationError struct {
	Reason string
}

func (e *MergeValidationError) Error() string {
	return "merge validation failed: " + e.Reason
}

// MergeConflictError reports a child migration that would violate a unique
// constraint on the target. The whole merge is rolled back.
type MergeConflictError struct {
	Relation string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict: %s already exist on the target asset", e.Relation)
}

// MergeResult describes a completed merge.
type MergeResult struct {
	MergeLogID       string
	TargetID         string
	ChildrenMigrated map[string]int64
}

// AssetDetails is the pre-merge view of a single asset: its mergeable field
// values plus how many children hang off it.
type AssetDetails struct {
	Asset       *Asset
	Fields      map[string]any
	ChildCounts map[string]int64
}

// MergeEngine folds duplicate assets together inside a single transaction.
type MergeEngine struct {
	store    Store
	registry Registry
}

func NewMergeEngine(store Store) *MergeEngine {
	return &MergeEngine{store: store, registry: NewRegistry()}
}

// MergeAssets merges the source asset into the target: children and loose
// references move to the target, chosen field values are copied over, and the
// source is soft-deleted. Everything happens in one transaction, so a failure
// at any step leaves both assets untouched.
//
// fieldChoices maps field name to "source" or "target"; fields not listed
// keep the target's value.
func (e *MergeEngine) MergeAssets(ctx context.Context, typ AssetType, sourceID, targetID, mergedBy string, fieldChoices map[string]string) (*MergeResult, error) {
	spec, ok := e.registry[typ]
	if !ok {
		return nil, &MergeValidationError{Reason: fmt.Sprintf("unknown asset type %q", typ)}
	}
	if sourceID == targetID {
		return nil, &MergeValidationError{Reason: "source and target are the same asset"}
	}
	if err := validateFieldChoices(spec, fieldChoices); err != nil {
		return nil, err
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	source, target, err := lockPair(ctx, tx, typ, sourceID, targetID)
	if err != nil {
		return nil, err
	}
	if !source.IsActive {
		return nil, &MergeValidationError{Reason: fmt.Sprintf("source asset %s is already merged", sourceID)}
	}
	if !target.IsActive {
		return nil, &MergeValidationError{Reason: fmt.Sprintf("target asset %s is already merged", targetID)}
	}

	snapshot := snapshotAsset(source)
	now := time.Now().UTC()

	for field, choice := range fieldChoices {
		if choice == "source" {
			mergeFieldTable[field].copy(target, source)
		}
	}
	target.UpdatedAt = now
	if err := tx.UpdateAsset(ctx, target); err != nil {
		return nil, err
	}

	migrated := make(map[string]int64)
	for _, rel := range spec.Children {
		n, err := tx.MigrateChildren(ctx, rel, sourceID, targetID)
		if err != nil {
			if errors.Is(err, ErrUniqueViolation) {
				return nil, &MergeConflictError{Relation: rel.Name}
			}
			return nil, err
		}
		if n > 0 {
			migrated[rel.Name] = n
		}
	}
	for _, ref := range spec.LooseRefs {
		n, err := tx.MigrateLooseRef(ctx, ref, sourceID, targetID)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			migrated[ref.Name()] = n
		}
	}

	source.IsActive = false
	source.UpdatedAt = now
	if err := tx.UpdateAsset(ctx, source); err != nil {
		return nil, err
	}

	log := &MergeLog{
		ID:               uuid.New().String(),
		AssetType:        typ,
		SourceAssetID:    sourceID,
		TargetAssetID:    targetID,
		MergedBy:         mergedBy,
		Snapshot:         snapshot,
		FieldChoices:     fieldChoices,
		ChildrenMigrated: migrated,
		CreatedAt:        now,
	}
	if err := tx.InsertMergeLog(ctx, log); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	slog.Info("assets merged",
		"type", typ,
		"source", sourceID,
		"target", targetID,
		"merged_by", mergedBy,
		"children_migrated", migrated)

	return &MergeResult{
		MergeLogID:       log.ID,
		TargetID:         targetID,
		ChildrenMigrated: migrated,
	}, nil
}

// GetAssetDetails returns the mergeable fields and child counts for one
// asset, for review before a merge.
func (e *MergeEngine) GetAssetDetails(ctx context.Context, typ AssetType, id string) (*AssetDetails, error) {
	spec, ok := e.registry[typ]
	if !ok {
		return nil, &MergeValidationError{Reason: fmt.Sprintf("unknown asset type %q", typ)}
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	asset, err := tx.GetAsset(ctx, typ, id)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]any, len(spec.Fields))
	for _, f := range spec.Fields {
		fields[f] = mergeFieldTable[f].get(asset)
	}

	counts := make(map[string]int64, len(spec.Children))
	for _, rel := range spec.Children {
		n, err := tx.CountChildren(ctx, rel, id)
		if err != nil {
			return nil, err
		}
		counts[rel.Name] = n
	}

	return &AssetDetails{Asset: asset, Fields: fields, ChildCounts: counts}, nil
}

func validateFieldChoices(spec MergeSpec, choices map[string]string) error {
	for field, choice := range choices {
		if choice != "source" && choice != "target" {
			return &MergeValidationError{Reason: fmt.Sprintf("field %q: choice must be \"source\" or \"target\", got %q", field, choice)}
		}
		known := false
		for _, f := range spec.Fields {
			if f == field {
				known = true
				break
			}
		}
		if !known {
			return &MergeValidationError{Reason: fmt.Sprintf("field %q is not mergeable for this asset type", field)}
		}
	}
	return nil
}

// lockPair row-locks both assets in a stable order so two concurrent merges
// over the same pair cannot deadlock.
func lockPair(ctx context.Context, tx Tx, typ AssetType, sourceID, targetID string) (source, target *Asset, err error) {
	ids := []string{sourceID, targetID}
	sort.Strings(ids)

	locked := make(map[string]*Asset, 2)
	for _, id := range ids {
		a, err := tx.GetAssetForUpdate(ctx, typ, id)
		if err != nil {
			if errors.Is(err, ErrAssetNotFound) {
				return nil, nil, &MergeValidationError{Reason: fmt.Sprintf("asset %s not found", id)}
			}
			return nil, nil, err
		}
		locked[id] = a
	}
	return locked[sourceID], locked[targetID], nil
}
