// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package repo

import (
	"context"
	"testing"

	"github.com/antgroup/tabula/pkg/serve/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureDataset(t *testing.T, d *database.MemDB) *database.Dataset {
	t.Helper()
	ds, err := d.NewDataset(context.Background(), &database.Dataset{Name: "fixture", CreatedBy: 1})
	require.NoError(t, err)
	return ds
}

func peopleRows() [][]map[string]any {
	return [][]map[string]any{{
		{"name": "ada", "age": int64(36)},
		{"name": "grace", "age": int64(85)},
		{"name": "edsger", "age": int64(72)},
	}}
}

func stagePeople(t *testing.T, b *Builder) {
	t.Helper()
	require.NoError(t, b.StageTable(context.Background(), "primary", newSliceRows([]string{"name", "age"}, peopleRows())))
}

func TestCommitDeterminism(t *testing.T) {
	ctx := context.Background()
	// identical content on two independent stores derives the same commit id
	var ids []string
	for i := 0; i < 2; i++ {
		d := database.NewMemDB()
		ds := fixtureDataset(t, d)
		b := NewBuilder(d)
		stagePeople(t, b)
		res, err := b.Commit(ctx, &CommitOptions{
			DatasetID: ds.ID,
			TargetRef: database.DefaultRef,
			Message:   "initial import",
			AuthorID:  1,
		})
		require.NoError(t, err)
		ids = append(ids, res.Commit.ID)
	}
	assert.Equal(t, ids[0], ids[1])
	assert.Len(t, ids[0], 64)
}

func TestCommitAdvancesRef(t *testing.T) {
	ctx := context.Background()
	d := database.NewMemDB()
	ds := fixtureDataset(t, d)
	b := NewBuilder(d)
	stagePeople(t, b)
	res, err := b.Commit(ctx, &CommitOptions{DatasetID: ds.ID, TargetRef: database.DefaultRef, Message: "m", AuthorID: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.RowsImported)
	assert.Equal(t, map[string]int64{"primary": 3}, res.Tables)
	assert.Empty(t, res.Commit.ParentID)

	ref, err := d.FindRef(ctx, ds.ID, database.DefaultRef)
	require.NoError(t, err)
	assert.Equal(t, res.Commit.ID, ref.CommitID)

	schema, err := d.FindSchema(ctx, res.Commit.ID)
	require.NoError(t, err)
	assert.Equal(t, database.RowIDFormatIntegerSuffix, schema.RowIDFormat)
}

func TestReimportDeduplicatesRows(t *testing.T) {
	ctx := context.Background()
	d := database.NewMemDB()
	ds := fixtureDataset(t, d)

	b1 := NewBuilder(d)
	stagePeople(t, b1)
	first, err := b1.Commit(ctx, &CommitOptions{DatasetID: ds.ID, TargetRef: database.DefaultRef, Message: "first", AuthorID: 1})
	require.NoError(t, err)
	stored := d.RowCount()

	// same rows again: no new blobs, but a new commit chained on the first
	b2 := NewBuilder(d)
	stagePeople(t, b2)
	second, err := b2.Commit(ctx, &CommitOptions{DatasetID: ds.ID, TargetRef: database.DefaultRef, Message: "again", AuthorID: 1})
	require.NoError(t, err)
	assert.Equal(t, stored, d.RowCount())
	assert.Equal(t, first.Commit.ID, second.Commit.ParentID)
	assert.NotEqual(t, first.Commit.ID, second.Commit.ID)
}

func TestStageRejections(t *testing.T) {
	ctx := context.Background()
	d := database.NewMemDB()
	b := NewBuilder(d)
	err := b.StageTable(ctx, "no spaces", newSliceRows([]string{"a"}, nil))
	assert.Error(t, err)

	require.NoError(t, b.StageTable(ctx, "primary", newSliceRows([]string{"a"}, nil)))
	err = b.StageTable(ctx, "primary", newSliceRows([]string{"a"}, nil))
	assert.True(t, IsErrDuplicateTable(err))
}

func TestCommitEmptyMessage(t *testing.T) {
	d := database.NewMemDB()
	ds := fixtureDataset(t, d)
	b := NewBuilder(d)
	_, err := b.Commit(context.Background(), &CommitOptions{DatasetID: ds.ID, TargetRef: database.DefaultRef, AuthorID: 1})
	assert.True(t, IsErrEmptyMessage(err))
}

func TestSchemaWidening(t *testing.T) {
	ctx := context.Background()
	d := database.NewMemDB()
	ds := fixtureDataset(t, d)
	b := NewBuilder(d)
	rows := newSliceRows([]string{"n", "mixed", "gap"}, [][]map[string]any{{
		{"n": int64(1), "mixed": int64(2), "gap": nil},
		{"n": 1.5, "mixed": "two", "gap": nil},
	}})
	require.NoError(t, b.StageTable(ctx, "primary", rows))
	res, err := b.Commit(ctx, &CommitOptions{DatasetID: ds.ID, TargetRef: database.DefaultRef, Message: "m", AuthorID: 1})
	require.NoError(t, err)

	schema, err := d.FindSchema(ctx, res.Commit.ID)
	require.NoError(t, err)
	cols := schema.Tables["primary"].Columns
	require.Len(t, cols, 3)
	assert.Equal(t, database.Column{Name: "n", Type: "float"}, cols[0])
	assert.Equal(t, database.Column{Name: "mixed", Type: "string"}, cols[1])
	assert.Equal(t, database.Column{Name: "gap", Type: "null"}, cols[2])
}

// staleRefDB hands out a pre-race snapshot of the ref once, so two builders
// observe the same parent the way racing workers would.
type staleRefDB struct {
	database.DB
	stale *database.Ref
	used  bool
}

func (d *staleRefDB) FindRef(ctx context.Context, datasetID int64, name string) (*database.Ref, error) {
	if !d.used {
		d.used = true
		return d.stale, nil
	}
	return d.DB.FindRef(ctx, datasetID, name)
}

func TestCommitReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	d := database.NewMemDB()
	ds := fixtureDataset(t, d)

	b1 := NewBuilder(d)
	stagePeople(t, b1)
	first, err := b1.Commit(ctx, &CommitOptions{DatasetID: ds.ID, TargetRef: database.DefaultRef, Message: "m", AuthorID: 1})
	require.NoError(t, err)

	// a replayed import sees the unborn ref, derives the identical id, loses
	// the insert and the swap, and still reports success
	race := &staleRefDB{DB: d, stale: &database.Ref{DatasetID: ds.ID, Name: database.DefaultRef}}
	b2 := NewBuilder(race)
	stagePeople(t, b2)
	second, err := b2.Commit(ctx, &CommitOptions{DatasetID: ds.ID, TargetRef: database.DefaultRef, Message: "m", AuthorID: 1})
	require.NoError(t, err)
	assert.Equal(t, first.Commit.ID, second.Commit.ID)
}

func TestCommitLostRaceDifferentContent(t *testing.T) {
	ctx := context.Background()
	d := database.NewMemDB()
	ds := fixtureDataset(t, d)

	b1 := NewBuilder(d)
	stagePeople(t, b1)
	_, err := b1.Commit(ctx, &CommitOptions{DatasetID: ds.ID, TargetRef: database.DefaultRef, Message: "m", AuthorID: 1})
	require.NoError(t, err)

	// a loser whose content differs must surface the conflict
	race := &staleRefDB{DB: d, stale: &database.Ref{DatasetID: ds.ID, Name: database.DefaultRef}}
	b2 := NewBuilder(race)
	require.NoError(t, b2.StageTable(ctx, "primary", newSliceRows([]string{"name"}, [][]map[string]any{{{"name": "other"}}})))
	_, err = b2.Commit(ctx, &CommitOptions{DatasetID: ds.ID, TargetRef: database.DefaultRef, Message: "m", AuthorID: 1})
	assert.True(t, database.IsErrAlreadyLocked(err))
}
