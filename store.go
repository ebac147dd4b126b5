package main

import (
	"context"
	"errors"
)

// ErrAssetNotFound is returned by Tx.GetAsset* when no row has the id.
var ErrAssetNotFound = errors.New("asset not found")

// ErrUniqueViolation is returned when a write would break a uniqueness
// constraint. The merge engine turns it into a MergeConflictError naming the
// offending relation.
var ErrUniqueViolation = errors.New("unique constraint violation")

// Store opens transactions against the asset schema. The production
// implementation is Postgres (database.go); tests run against an in-memory
// implementation with the same commit/rollback semantics.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one storage transaction. Nothing is visible to other transactions
// until Commit; Rollback discards everything. Rollback after Commit is a
// no-op so it can sit in a defer.
type Tx interface {
	Commit() error
	Rollback() error

	// GetAsset loads a row by id. GetAssetForUpdate additionally takes a
	// row-level write lock held until the transaction ends.
	GetAsset(ctx context.Context, typ AssetType, id string) (*Asset, error)
	GetAssetForUpdate(ctx context.Context, typ AssetType, id string) (*Asset, error)

	// FindAssetByCode / FindAssetByName return (nil, nil) when absent.
	FindAssetByCode(ctx context.Context, typ AssetType, code string) (*Asset, error)
	FindAssetByName(ctx context.Context, typ AssetType, name string) (*Asset, error)

	InsertAsset(ctx context.Context, a *Asset) error
	UpdateAsset(ctx context.Context, a *Asset) error

	CountChildren(ctx context.Context, rel ChildRelation, assetID string) (int64, error)
	// MigrateChildren repoints every child row with rel.FKCol == fromID to
	// toID and returns the number of rows moved. A uniqueness conflict
	// surfaces as ErrUniqueViolation.
	MigrateChildren(ctx context.Context, rel ChildRelation, fromID, toID string) (int64, error)
	MigrateLooseRef(ctx context.Context, ref LooseRef, fromID, toID string) (int64, error)

	InsertMergeLog(ctx context.Context, log *MergeLog) error

	// PurgePlant deletes every fiber-plant row in foreign-key-safe
	// dependency order: child tables first, then the asset tables.
	PurgePlant(ctx context.Context) error
}
