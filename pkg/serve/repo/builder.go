// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package repo implements the versioned-dataset object model on top of the
// database layer: staging rows into content-addressed storage, deriving and
// publishing commits, and reading tables back out of a commit.
package repo

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sort"
	"time"

	"github.com/antgroup/tabula/modules/canon"
	"github.com/antgroup/tabula/modules/plumbing"
	"github.com/antgroup/tabula/pkg/serve/database"
	"github.com/antgroup/tabula/pkg/serve/parser"
	"golang.org/x/sync/errgroup"
)

const defaultStageBatch = 1000

type ErrEmptyMessage struct{}

func (ErrEmptyMessage) Error() string {
	return "commit message is empty"
}

func IsErrEmptyMessage(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(ErrEmptyMessage)
	return ok
}

type ErrDuplicateTable struct {
	Key string
}

func (err *ErrDuplicateTable) Error() string {
	return fmt.Sprintf("table '%s' staged twice", err.Key)
}

func IsErrDuplicateTable(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*ErrDuplicateTable)
	return ok
}

// Builder accumulates staged tables and publishes them as one commit. A
// builder is single-use and not safe for concurrent staging.
type Builder struct {
	db        database.DB
	batchSize int
	seen      map[string]bool
	manifest  []database.ManifestEntry
	schema    *database.SchemaDefinition
	tables    map[string]int64
	rowsTotal int64
}

func NewBuilder(db database.DB) *Builder {
	return &Builder{
		db:        db,
		batchSize: defaultStageBatch,
		seen:      make(map[string]bool),
		tables:    make(map[string]int64),
		schema: &database.SchemaDefinition{
			RowIDFormat: database.RowIDFormatIntegerSuffix,
			Tables:      make(map[string]*database.TableSchema),
		},
	}
}

type stagedRow struct {
	hash  plumbing.Hash
	data  []byte
	kinds []canon.Kind
}

// StageTable drains one row reader: each row is canonicalized, fingerprinted,
// upserted into content-addressed storage, and bound to its manifest position.
// Row order is the reader's order; the column schema is widened row by row.
func (b *Builder) StageTable(ctx context.Context, tableKey string, rows parser.RowReader) error {
	if !plumbing.ValidateTableKey(tableKey) {
		return &plumbing.ErrBadTableKey{Key: tableKey}
	}
	if _, ok := b.schema.Tables[tableKey]; ok {
		return &ErrDuplicateTable{Key: tableKey}
	}
	columns := rows.Columns()
	kinds := make([]canon.Kind, len(columns))
	var index int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := rows.NextBatch(b.batchSize)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		staged, err := canonicalizeBatch(ctx, columns, batch)
		if err != nil {
			return err
		}
		blobs := make([]database.RowBlob, 0, len(staged))
		for _, s := range staged {
			for i, k := range s.kinds {
				kinds[i] = canon.Widen(kinds[i], k)
			}
			b.manifest = append(b.manifest, database.ManifestEntry{
				LogicalRowID: plumbing.RowID(tableKey, index),
				RowHash:      s.hash.String(),
			})
			index++
			if hex := s.hash.String(); !b.seen[hex] {
				b.seen[hex] = true
				blobs = append(blobs, database.RowBlob{Hash: hex, Data: s.data})
			}
		}
		if err := b.db.UpsertRows(ctx, blobs); err != nil {
			return err
		}
	}
	ts := &database.TableSchema{Columns: make([]database.Column, len(columns))}
	for i, name := range columns {
		ts.Columns[i] = database.Column{Name: name, Type: kinds[i].String()}
	}
	b.schema.Tables[tableKey] = ts
	b.tables[tableKey] = index
	b.rowsTotal += index
	return nil
}

// canonicalizeBatch fans the batch across the CPUs; order is preserved.
func canonicalizeBatch(ctx context.Context, columns []string, batch []map[string]any) ([]stagedRow, error) {
	staged := make([]stagedRow, len(batch))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, row := range batch {
		i, row := i, row
		g.Go(func() error {
			vals, err := canon.FromRow(row)
			if err != nil {
				return err
			}
			data := canon.EncodeRow(columns, vals)
			kinds := make([]canon.Kind, len(columns))
			for j, name := range columns {
				kinds[j] = vals[name].Kind()
			}
			staged[i] = stagedRow{hash: plumbing.DigestBytes(data), data: data, kinds: kinds}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return staged, nil
}

type CommitOptions struct {
	DatasetID int64
	TargetRef string
	Message   string
	AuthorID  int64
}

// CommitResult reports the published commit plus per-table row counts.
type CommitResult struct {
	Commit       *database.Commit `json:"commit"`
	RowsImported int64            `json:"rows_imported"`
	Tables       map[string]int64 `json:"tables"`
}

// Commit derives the content-addressed commit id, publishes commit + manifest +
// schema atomically, and advances the target ref from its observed position.
//
// Replays are accepted: a duplicate commit insert means the identical commit
// already exists, and a lost CAS whose ref already points at the derived id is
// a success.
func (b *Builder) Commit(ctx context.Context, opts *CommitOptions) (*CommitResult, error) {
	if len(opts.Message) == 0 {
		return nil, ErrEmptyMessage{}
	}
	ref, err := b.db.FindRef(ctx, opts.DatasetID, opts.TargetRef)
	if err != nil {
		return nil, err
	}
	parent := ref.CommitID
	commitID := deriveCommitID(opts.DatasetID, opts.AuthorID, parent, opts.Message, b.manifest)
	cc := &database.Commit{
		ID:          commitID,
		DatasetID:   opts.DatasetID,
		ParentID:    parent,
		Message:     opts.Message,
		AuthorID:    opts.AuthorID,
		CommittedAt: time.Now().UTC(),
	}
	err = b.db.WithTx(ctx, func(tx database.Tx) error {
		if err := tx.InsertCommit(ctx, cc); err != nil {
			return err
		}
		if err := tx.InsertManifest(ctx, commitID, b.manifest); err != nil {
			return err
		}
		return tx.InsertSchema(ctx, commitID, b.schema)
	})
	if err != nil && !database.IsErrExist(err) {
		return nil, err
	}
	if _, err := b.db.DoRefUpdate(ctx, &database.RefUpdate{
		DatasetID: opts.DatasetID,
		Name:      opts.TargetRef,
		OldRev:    parent,
		NewRev:    commitID,
	}); err != nil {
		if !database.IsErrAlreadyLocked(err) {
			return nil, err
		}
		// lost the race; a replay of this exact commit may already have
		// advanced the ref, which counts as success
		current, ferr := b.db.FindRef(ctx, opts.DatasetID, opts.TargetRef)
		if ferr != nil || current.CommitID != commitID {
			return nil, err
		}
	}
	return &CommitResult{Commit: cc, RowsImported: b.rowsTotal, Tables: b.tables}, nil
}

// deriveCommitID fingerprints the commit content: dataset, parent, sorted
// manifest pairs, message, author. Identical content always yields the same
// id, which is what makes import replays idempotent.
func deriveCommitID(datasetID, authorID int64, parent, message string, manifest []database.ManifestEntry) string {
	pairs := make([]database.ManifestEntry, len(manifest))
	copy(pairs, manifest)
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].LogicalRowID != pairs[j].LogicalRowID {
			return pairs[i].LogicalRowID < pairs[j].LogicalRowID
		}
		return pairs[i].RowHash < pairs[j].RowHash
	})
	entries := make([]canon.Value, 0, len(pairs))
	for _, p := range pairs {
		entries = append(entries, canon.ArrayValue([]canon.Value{
			canon.StringValue(p.LogicalRowID),
			canon.StringValue(p.RowHash),
		}))
	}
	parentValue := canon.NullValue()
	if len(parent) != 0 {
		parentValue = canon.StringValue(parent)
	}
	payload := canon.Encode(canon.ObjectValue(map[string]canon.Value{
		"dataset_id":       canon.IntValue(datasetID),
		"parent_commit_id": parentValue,
		"manifest":         canon.ArrayValue(entries),
		"message":          canon.StringValue(message),
		"author_id":        canon.IntValue(authorID),
	}))
	return plumbing.DigestBytes(payload).String()
}
