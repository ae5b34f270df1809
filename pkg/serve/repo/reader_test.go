// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package repo

import (
	"context"
	"fmt"
	"testing"

	"github.com/antgroup/tabula/modules/plumbing"
	"github.com/antgroup/tabula/pkg/serve/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCommit(t *testing.T, d *database.MemDB, n int) (int64, string) {
	t.Helper()
	ctx := context.Background()
	ds := fixtureDataset(t, d)
	rows := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, map[string]any{"i": int64(i), "name": fmt.Sprintf("row-%d", i)})
	}
	b := NewBuilder(d)
	require.NoError(t, b.StageTable(ctx, "primary", newSliceRows([]string{"i", "name"}, [][]map[string]any{rows})))
	res, err := b.Commit(ctx, &CommitOptions{DatasetID: ds.ID, TargetRef: database.DefaultRef, Message: "seed", AuthorID: 1})
	require.NoError(t, err)
	return ds.ID, res.Commit.ID
}

func TestReaderTableData(t *testing.T) {
	ctx := context.Background()
	d := database.NewMemDB()
	_, commitID := seedCommit(t, d, 12)
	r := NewReader(d, nil)

	rows, err := r.TableData(ctx, commitID, "primary", 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "primary:10", rows[0][LogicalRowIDField])
	assert.Equal(t, float64(10), rows[0]["i"]) // canonical row JSON decodes numbers as float64
	assert.Equal(t, "row-11", rows[1]["name"])

	// the default page size applies when the caller leaves limit unset
	rows, err = r.TableData(ctx, commitID, "primary", 0, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 12)

	n, err := r.CountRows(ctx, commitID, "primary")
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}

func TestReaderPageBounds(t *testing.T) {
	ctx := context.Background()
	d := database.NewMemDB()
	_, commitID := seedCommit(t, d, 1)
	r := NewReader(d, nil)

	_, err := r.TableData(ctx, commitID, "primary", -1, 10)
	assert.True(t, IsErrBadPage(err))
	_, err = r.TableData(ctx, commitID, "primary", 0, -1)
	assert.True(t, IsErrBadPage(err))
	_, err = r.TableData(ctx, commitID, "primary", 0, MaxPageLimit+1)
	assert.True(t, IsErrBadPage(err))

	_, err = r.TableData(ctx, commitID, "missing", 0, 10)
	assert.True(t, database.IsNotFound(err))
	_, err = r.TableData(ctx, plumbing.DigestBytes([]byte("nope")).String(), "primary", 0, 10)
	assert.True(t, database.IsNotFound(err))
}

func TestReaderStream(t *testing.T) {
	ctx := context.Background()
	d := database.NewMemDB()
	_, commitID := seedCommit(t, d, 25)
	r := NewReader(d, nil)

	var pages, total int
	err := r.Stream(ctx, commitID, "primary", 10, func(rows []map[string]any) error {
		pages++
		total += len(rows)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, pages)
	assert.Equal(t, 25, total)

	// early stop is not an error
	total = 0
	err = r.Stream(ctx, commitID, "primary", 10, func(rows []map[string]any) error {
		total += len(rows)
		return plumbing.ErrStop
	})
	require.NoError(t, err)
	assert.Equal(t, 10, total)
}

func TestReaderTablesAndSchema(t *testing.T) {
	ctx := context.Background()
	d := database.NewMemDB()
	_, commitID := seedCommit(t, d, 2)
	r := NewReader(d, nil)

	keys, err := r.ListTables(ctx, commitID)
	require.NoError(t, err)
	assert.Equal(t, []string{"primary"}, keys)

	ts, err := r.TableSchema(ctx, commitID, "primary")
	require.NoError(t, err)
	require.Len(t, ts.Columns, 2)
	assert.Equal(t, database.Column{Name: "i", Type: "integer"}, ts.Columns[0])

	_, err = r.TableSchema(ctx, commitID, "other")
	assert.True(t, database.IsNotFound(err))
}

func TestReaderOverview(t *testing.T) {
	ctx := context.Background()
	d := database.NewMemDB()
	_, c1 := seedCommit(t, d, 3)
	_, c2 := seedCommit(t, d, 5)
	r := NewReader(d, nil)

	meta, err := r.Overview(ctx, []string{c1, c2})
	require.NoError(t, err)
	require.Contains(t, meta, c1)
	require.Contains(t, meta, c2)
	assert.Equal(t, int64(3), meta[c1]["primary"].RowCount)
	assert.Equal(t, int64(5), meta[c2]["primary"].RowCount)
	assert.Equal(t, 2, meta[c2]["primary"].ColumnCount)
}
