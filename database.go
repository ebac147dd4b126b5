package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// Database wraps the Postgres connection and implements Store.
type Database struct {
	conn *sql.DB
}

// NewDatabase creates a new database connection.
func NewDatabase(cfg DatabaseConfig) (*Database, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	slog.Info("database connected successfully")

	return &Database{conn: db}, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.conn.Close()
}

// Begin opens a storage transaction.
func (d *Database) Begin(ctx context.Context) (Tx, error) {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *pgTx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

const pointAssetCols = "id, name, code, lat, lon, path, notes, is_active, created_at, updated_at"
const segmentAssetCols = pointAssetCols + ", segment_type, cable_type, length_m"

// Table and column names below are interpolated into SQL text. They only
// ever come from the static registry, never from input.
func assetCols(typ AssetType) string {
	if typ == AssetFiberSegment {
		return segmentAssetCols
	}
	return pointAssetCols
}

func scanAsset(typ AssetType, row *sql.Row) (*Asset, error) {
	a := &Asset{Type: typ}
	var code sql.NullString
	var lat, lon sql.NullFloat64
	var path, notes sql.NullString

	dest := []any{
		&a.ID, &a.Name, &code, &lat, &lon, &path, &notes,
		&a.IsActive, &a.CreatedAt, &a.UpdatedAt,
	}

	var segType, cableType sql.NullString
	var lengthM sql.NullFloat64
	if typ == AssetFiberSegment {
		dest = append(dest, &segType, &cableType, &lengthM)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if code.Valid {
		a.Code = &code.String
	}
	if lat.Valid {
		a.Lat = &lat.Float64
	}
	if lon.Valid {
		a.Lon = &lon.Float64
	}
	a.Path = path.String
	a.Notes = notes.String
	if segType.Valid {
		a.SegmentType = &segType.String
	}
	if cableType.Valid {
		a.CableType = &cableType.String
	}
	if lengthM.Valid {
		a.LengthM = &lengthM.Float64
	}

	return a, nil
}

func (t *pgTx) getAsset(ctx context.Context, typ AssetType, id string, forUpdate bool) (*Asset, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", assetCols(typ), assetTable[typ])
	if forUpdate {
		query += " FOR UPDATE"
	}

	a, err := scanAsset(typ, t.tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", typ, id, ErrAssetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", assetTable[typ], err)
	}
	return a, nil
}

func (t *pgTx) GetAsset(ctx context.Context, typ AssetType, id string) (*Asset, error) {
	return t.getAsset(ctx, typ, id, false)
}

func (t *pgTx) GetAssetForUpdate(ctx context.Context, typ AssetType, id string) (*Asset, error) {
	return t.getAsset(ctx, typ, id, true)
}

func (t *pgTx) findAsset(ctx context.Context, typ AssetType, column, value string) (*Asset, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = $1 AND is_active LIMIT 1",
		assetCols(typ), assetTable[typ], column,
	)

	a, err := scanAsset(typ, t.tx.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s by %s: %w", assetTable[typ], column, err)
	}
	return a, nil
}

func (t *pgTx) FindAssetByCode(ctx context.Context, typ AssetType, code string) (*Asset, error) {
	return t.findAsset(ctx, typ, "code", code)
}

func (t *pgTx) FindAssetByName(ctx context.Context, typ AssetType, name string) (*Asset, error) {
	return t.findAsset(ctx, typ, "name", name)
}

func (t *pgTx) InsertAsset(ctx context.Context, a *Asset) error {
	cols := assetCols(a.Type)
	args := []any{
		a.ID, a.Name, a.Code, a.Lat, a.Lon,
		nullIfEmpty(a.Path), nullIfEmpty(a.Notes),
		a.IsActive, a.CreatedAt, a.UpdatedAt,
	}
	placeholders := "$1, $2, $3, $4, $5, $6, $7, $8, $9, $10"
	if a.Type == AssetFiberSegment {
		args = append(args, a.SegmentType, a.CableType, a.LengthM)
		placeholders += ", $11, $12, $13"
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", assetTable[a.Type], cols, placeholders)
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("inserting into %s: %w", assetTable[a.Type], ErrUniqueViolation)
		}
		return fmt.Errorf("failed to insert into %s: %w", assetTable[a.Type], err)
	}
	return nil
}

func (t *pgTx) UpdateAsset(ctx context.Context, a *Asset) error {
	set := "name = $2, code = $3, lat = $4, lon = $5, path = $6, notes = $7, is_active = $8, updated_at = $9"
	args := []any{
		a.ID, a.Name, a.Code, a.Lat, a.Lon,
		nullIfEmpty(a.Path), nullIfEmpty(a.Notes),
		a.IsActive, a.UpdatedAt,
	}
	if a.Type == AssetFiberSegment {
		set += ", segment_type = $10, cable_type = $11, length_m = $12"
		args = append(args, a.SegmentType, a.CableType, a.LengthM)
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $1", assetTable[a.Type], set)
	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("updating %s: %w", assetTable[a.Type], ErrUniqueViolation)
		}
		return fmt.Errorf("failed to update %s: %w", assetTable[a.Type], err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", a.Type, a.ID, ErrAssetNotFound)
	}
	return nil
}

func (t *pgTx) CountChildren(ctx context.Context, rel ChildRelation, assetID string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = $1", rel.Table, rel.FKCol)

	var count int64
	if err := t.tx.QueryRowContext(ctx, query, assetID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", rel.Name, err)
	}
	return count, nil
}

func (t *pgTx) MigrateChildren(ctx context.Context, rel ChildRelation, fromID, toID string) (int64, error) {
	query := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s = $2", rel.Table, rel.FKCol, rel.FKCol)

	result, err := t.tx.ExecContext(ctx, query, toID, fromID)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("migrating %s: %w", rel.Name, ErrUniqueViolation)
		}
		return 0, fmt.Errorf("failed to migrate %s: %w", rel.Name, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows, nil
}

func (t *pgTx) MigrateLooseRef(ctx context.Context, ref LooseRef, fromID, toID string) (int64, error) {
	query := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s = $2", ref.Table, ref.Column, ref.Column)

	result, err := t.tx.ExecContext(ctx, query, toID, fromID)
	if err != nil {
		return 0, fmt.Errorf("failed to migrate %s: %w", ref.Name(), err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows, nil
}

func (t *pgTx) InsertMergeLog(ctx context.Context, log *MergeLog) error {
	snapshot, err := json.Marshal(log.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal merge snapshot: %w", err)
	}
	choices, err := json.Marshal(log.FieldChoices)
	if err != nil {
		return fmt.Errorf("failed to marshal field choices: %w", err)
	}
	migrated, err := json.Marshal(log.ChildrenMigrated)
	if err != nil {
		return fmt.Errorf("failed to marshal migration counts: %w", err)
	}

	query := `
		INSERT INTO merge_logs (id, asset_type, source_asset_id, target_asset_id,
		                        merged_by, snapshot, field_choices, children_migrated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = t.tx.ExecContext(ctx, query,
		log.ID, string(log.AssetType), log.SourceAssetID, log.TargetAssetID,
		log.MergedBy, snapshot, choices, migrated, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert merge log: %w", err)
	}
	return nil
}

// purgeOrder lists every plant table, children before their parents, so the
// deletes never trip a foreign key.
var purgeOrder = []string{
	"drop_lines",
	"splitters",
	"splice_trays",
	"olt_cards",
	"fiber_strands",
	"fiber_segments",
	"fdh_cabinets",
	"splice_closures",
	"access_points",
	"olt_devices",
	"service_buildings",
}

func (t *pgTx) PurgePlant(ctx context.Context) error {
	// work_orders survive a purge but their plant pointers become stale.
	if _, err := t.tx.ExecContext(ctx, "UPDATE work_orders SET ref_id = NULL WHERE ref_id IS NOT NULL"); err != nil {
		return fmt.Errorf("failed to clear work order refs: %w", err)
	}

	for _, table := range purgeOrder {
		if _, err := t.tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to purge %s: %w", table, err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
