// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/antgroup/tabula/modules/plumbing"
	"github.com/antgroup/tabula/pkg/serve/database"
)

const (
	// DefaultPageLimit applies when the caller leaves the page size unset.
	DefaultPageLimit = 100
	// MaxPageLimit bounds a single page; larger reads go through Stream.
	MaxPageLimit = 1000

	// LogicalRowIDField decorates every returned row with its manifest position.
	LogicalRowIDField = "_logical_row_id"
)

type ErrBadPage struct {
	Reason string
}

func (err *ErrBadPage) Error() string {
	return fmt.Sprintf("bad page bounds: %s", err.Reason)
}

func IsErrBadPage(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*ErrBadPage)
	return ok
}

// Reader serves table data out of immutable commits. Commit and schema
// lookups go through the metadata cache; row pages always hit the store.
type Reader struct {
	db    database.DB
	cache MetaCache
}

func NewReader(db database.DB, cache MetaCache) *Reader {
	if cache == nil {
		cache = NewNopCache()
	}
	return &Reader{db: db, cache: cache}
}

func (r *Reader) Commit(ctx context.Context, commitID string) (*database.Commit, error) {
	if c, ok := r.cache.Commit(commitID); ok {
		return c, nil
	}
	c, err := r.db.FindCommit(ctx, commitID)
	if err != nil {
		return nil, err
	}
	_ = r.cache.Store(commitID, c)
	return c, nil
}

func (r *Reader) Schema(ctx context.Context, commitID string) (*database.SchemaDefinition, error) {
	if s, ok := r.cache.Schema(commitID); ok {
		return s, nil
	}
	s, err := r.db.FindSchema(ctx, commitID)
	if err != nil {
		return nil, err
	}
	_ = r.cache.Store(commitID, s)
	return s, nil
}

// ListTables returns the commit's table keys in sorted order. The schema is
// authoritative; commits written before schemas carried table maps fall back
// to a manifest scan.
func (r *Reader) ListTables(ctx context.Context, commitID string) ([]string, error) {
	s, err := r.Schema(ctx, commitID)
	if database.IsNotFound(err) {
		return r.db.ListTableKeys(ctx, commitID)
	}
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(s.Tables))
	for k := range s.Tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *Reader) TableSchema(ctx context.Context, commitID, tableKey string) (*database.TableSchema, error) {
	s, err := r.Schema(ctx, commitID)
	if err != nil {
		return nil, err
	}
	ts, ok := s.Tables[tableKey]
	if !ok {
		return nil, database.NewErrNotFound("table", "commit '%s' has no table '%s'", commitID, tableKey)
	}
	return ts, nil
}

func (r *Reader) CountRows(ctx context.Context, commitID, tableKey string) (int64, error) {
	if _, err := r.TableSchema(ctx, commitID, tableKey); err != nil {
		return 0, err
	}
	return r.db.CountTableRows(ctx, commitID, tableKey)
}

// TableData returns one page of rows in logical order, each decorated with
// its logical row id.
func (r *Reader) TableData(ctx context.Context, commitID, tableKey string, offset, limit int64) ([]map[string]any, error) {
	if offset < 0 {
		return nil, &ErrBadPage{Reason: fmt.Sprintf("offset %d < 0", offset)}
	}
	if limit == 0 {
		limit = DefaultPageLimit
	}
	if limit < 0 || limit > MaxPageLimit {
		return nil, &ErrBadPage{Reason: fmt.Sprintf("limit %d out of range [1, %d]", limit, MaxPageLimit)}
	}
	if _, err := r.TableSchema(ctx, commitID, tableKey); err != nil {
		return nil, err
	}
	rows, err := r.db.GetTableRows(ctx, commitID, tableKey, offset, limit)
	if err != nil {
		return nil, err
	}
	return decorateRows(rows)
}

// Stream walks the whole table in fixed-size pages and hands each page to fn.
// The offset cursor makes the walk restartable; fn returning plumbing.ErrStop
// ends the walk early without error.
func (r *Reader) Stream(ctx context.Context, commitID, tableKey string, batch int64, fn func(rows []map[string]any) error) error {
	if batch <= 0 || batch > MaxPageLimit {
		batch = MaxPageLimit
	}
	if _, err := r.TableSchema(ctx, commitID, tableKey); err != nil {
		return err
	}
	for offset := int64(0); ; offset += batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := r.db.GetTableRows(ctx, commitID, tableKey, offset, batch)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		page, err := decorateRows(rows)
		if err != nil {
			return err
		}
		if err := fn(page); err != nil {
			if err == plumbing.ErrStop {
				return nil
			}
			return err
		}
		if int64(len(rows)) < batch {
			return nil
		}
	}
}

// Overview batches table metadata for many commits, typically every head ref
// of a dataset, one query for all cache misses.
func (r *Reader) Overview(ctx context.Context, commitIDs []string) (map[string]map[string]*database.TableMetadata, error) {
	out := make(map[string]map[string]*database.TableMetadata, len(commitIDs))
	missing := make([]string, 0, len(commitIDs))
	for _, id := range commitIDs {
		if m, ok := r.cache.Metadata(id); ok {
			out[id] = m
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}
	fetched, err := r.db.BatchTableMetadata(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, m := range fetched {
		out[id] = m
		_ = r.cache.Store(id, m)
	}
	return out, nil
}

func decorateRows(rows []*database.TableRow) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(rows))
	for _, t := range rows {
		row := make(map[string]any)
		if err := json.Unmarshal(t.Data, &row); err != nil {
			return nil, fmt.Errorf("decode row '%s': %w", t.LogicalRowID, err)
		}
		row[LogicalRowIDField] = t.LogicalRowID
		out = append(out, row)
	}
	return out, nil
}
