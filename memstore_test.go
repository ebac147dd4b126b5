package main

import (
	"context"
	"fmt"
)

// memStore is an in-memory Store with real transaction semantics: a
// transaction works on a deep copy and Commit swaps it in, so rollback (or
// just dropping the tx) leaves committed state untouched. Tests are
// single-threaded; there is no locking.
type memStore struct {
	assets    map[AssetType]map[string]*Asset
	children  map[string][]*memChild          // table -> rows
	looseRefs map[string]map[string]string    // table.column -> row id -> asset id
	logs      []*MergeLog
}

// memChild is one child row. Key simulates a unique constraint scoped to the
// parent: two rows with the same non-empty Key under one parent conflict.
type memChild struct {
	ID  string
	FK  string
	Key string
}

func newMemStore() *memStore {
	s := &memStore{
		assets:    make(map[AssetType]map[string]*Asset),
		children:  make(map[string][]*memChild),
		looseRefs: make(map[string]map[string]string),
	}
	for _, typ := range assetTypeOrder {
		s.assets[typ] = make(map[string]*Asset)
	}
	return s
}

func (s *memStore) addAsset(a *Asset) {
	s.assets[a.Type][a.ID] = cloneAsset(a)
}

func (s *memStore) addChild(table string, c memChild) {
	s.children[table] = append(s.children[table], &c)
}

func (s *memStore) setLooseRef(ref LooseRef, rowID, assetID string) {
	if s.looseRefs[ref.Name()] == nil {
		s.looseRefs[ref.Name()] = make(map[string]string)
	}
	s.looseRefs[ref.Name()][rowID] = assetID
}

func (s *memStore) asset(typ AssetType, id string) *Asset {
	return s.assets[typ][id]
}

func (s *memStore) countAssets(typ AssetType) int {
	return len(s.assets[typ])
}

func (s *memStore) childrenOf(table, fk string) []*memChild {
	var out []*memChild
	for _, c := range s.children[table] {
		if c.FK == fk {
			out = append(out, c)
		}
	}
	return out
}

func (s *memStore) Begin(ctx context.Context) (Tx, error) {
	return &memTx{store: s, state: s.snapshot()}, nil
}

func (s *memStore) snapshot() *memStore {
	cp := newMemStore()
	for typ, m := range s.assets {
		for id, a := range m {
			cp.assets[typ][id] = cloneAsset(a)
		}
	}
	for table, rows := range s.children {
		for _, c := range rows {
			cc := *c
			cp.children[table] = append(cp.children[table], &cc)
		}
	}
	for name, m := range s.looseRefs {
		cp.looseRefs[name] = make(map[string]string, len(m))
		for id, v := range m {
			cp.looseRefs[name][id] = v
		}
	}
	cp.logs = append(cp.logs, s.logs...)
	return cp
}

func cloneAsset(a *Asset) *Asset {
	cp := *a
	if a.Code != nil {
		v := *a.Code
		cp.Code = &v
	}
	if a.Lat != nil {
		v := *a.Lat
		cp.Lat = &v
	}
	if a.Lon != nil {
		v := *a.Lon
		cp.Lon = &v
	}
	if a.SegmentType != nil {
		v := *a.SegmentType
		cp.SegmentType = &v
	}
	if a.CableType != nil {
		v := *a.CableType
		cp.CableType = &v
	}
	if a.LengthM != nil {
		v := *a.LengthM
		cp.LengthM = &v
	}
	return &cp
}

type memTx struct {
	store *memStore
	state *memStore
	done  bool
}

func (t *memTx) Commit() error {
	*t.store = *t.state
	t.done = true
	return nil
}

func (t *memTx) Rollback() error {
	t.done = true
	return nil
}

func (t *memTx) GetAsset(ctx context.Context, typ AssetType, id string) (*Asset, error) {
	a := t.state.assets[typ][id]
	if a == nil {
		return nil, fmt.Errorf("%s %s: %w", typ, id, ErrAssetNotFound)
	}
	return cloneAsset(a), nil
}

func (t *memTx) GetAssetForUpdate(ctx context.Context, typ AssetType, id string) (*Asset, error) {
	return t.GetAsset(ctx, typ, id)
}

func (t *memTx) FindAssetByCode(ctx context.Context, typ AssetType, code string) (*Asset, error) {
	for _, a := range t.state.assets[typ] {
		if a.IsActive && a.Code != nil && *a.Code == code {
			return cloneAsset(a), nil
		}
	}
	return nil, nil
}

func (t *memTx) FindAssetByName(ctx context.Context, typ AssetType, name string) (*Asset, error) {
	for _, a := range t.state.assets[typ] {
		if a.IsActive && a.Name == name {
			return cloneAsset(a), nil
		}
	}
	return nil, nil
}

func (t *memTx) InsertAsset(ctx context.Context, a *Asset) error {
	if _, ok := t.state.assets[a.Type][a.ID]; ok {
		return ErrUniqueViolation
	}
	if a.Code != nil {
		for _, other := range t.state.assets[a.Type] {
			if other.Code != nil && *other.Code == *a.Code {
				return ErrUniqueViolation
			}
		}
	}
	t.state.assets[a.Type][a.ID] = cloneAsset(a)
	return nil
}

func (t *memTx) UpdateAsset(ctx context.Context, a *Asset) error {
	if _, ok := t.state.assets[a.Type][a.ID]; !ok {
		return fmt.Errorf("%s %s: %w", a.Type, a.ID, ErrAssetNotFound)
	}
	t.state.assets[a.Type][a.ID] = cloneAsset(a)
	return nil
}

func (t *memTx) CountChildren(ctx context.Context, rel ChildRelation, assetID string) (int64, error) {
	var n int64
	for _, c := range t.state.children[rel.Table] {
		if c.FK == assetID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) MigrateChildren(ctx context.Context, rel ChildRelation, fromID, toID string) (int64, error) {
	// Conflict check first: moving a keyed row under a parent that already
	// has the same key is a unique violation.
	existing := make(map[string]bool)
	for _, c := range t.state.children[rel.Table] {
		if c.FK == toID && c.Key != "" {
			existing[c.Key] = true
		}
	}
	for _, c := range t.state.children[rel.Table] {
		if c.FK == fromID && c.Key != "" && existing[c.Key] {
			return 0, ErrUniqueViolation
		}
	}

	var n int64
	for _, c := range t.state.children[rel.Table] {
		if c.FK == fromID {
			c.FK = toID
			n++
		}
	}
	return n, nil
}

func (t *memTx) MigrateLooseRef(ctx context.Context, ref LooseRef, fromID, toID string) (int64, error) {
	var n int64
	for id, v := range t.state.looseRefs[ref.Name()] {
		if v == fromID {
			t.state.looseRefs[ref.Name()][id] = toID
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertMergeLog(ctx context.Context, log *MergeLog) error {
	cp := *log
	t.state.logs = append(t.state.logs, &cp)
	return nil
}

func (t *memTx) PurgePlant(ctx context.Context) error {
	for typ := range t.state.assets {
		t.state.assets[typ] = make(map[string]*Asset)
	}
	t.state.children = make(map[string][]*memChild)
	for name := range t.state.looseRefs {
		t.state.looseRefs[name] = make(map[string]string)
	}
	return nil
}
