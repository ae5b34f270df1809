// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type measurement struct {
	ID    int64   `parquet:"id"`
	Name  string  `parquet:"name"`
	Score float64 `parquet:"score"`
	OK    bool    `parquet:"ok"`
	When  int64   `parquet:"when,timestamp"`
}

func writeParquet(t *testing.T, rows []measurement) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "m.parquet")
	fd, err := os.Create(path)
	require.NoError(t, err)
	w := parquet.NewGenericWriter[measurement](fd)
	_, err = w.Write(rows)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, fd.Close())
	return path
}

func TestParseParquet(t *testing.T) {
	when := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	path := writeParquet(t, []measurement{
		{ID: 1, Name: "ada", Score: 9.5, OK: true, When: when.UnixMilli()},
		{ID: 2, Name: "grace", Score: 8, OK: false, When: when.Add(time.Hour).UnixMilli()},
	})
	p, err := NewParser("m.parquet")
	require.NoError(t, err)
	data, err := p.Parse(context.Background(), path, "m.parquet")
	require.NoError(t, err)
	defer data.Close() // nolint:errcheck
	assert.Equal(t, "parquet", data.FileType)
	require.Len(t, data.Tables, 1)
	table := data.Tables[0]
	assert.Equal(t, "primary", table.Key)
	assert.ElementsMatch(t, []string{"id", "name", "score", "ok", "when"}, table.Rows.Columns())

	rows, err := table.Rows.NextBatch(10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0]["id"])
	assert.Equal(t, "ada", rows[0]["name"])
	assert.Equal(t, 9.5, rows[0]["score"])
	assert.Equal(t, true, rows[0]["ok"])
	assert.Equal(t, when, rows[0]["when"])
	assert.Equal(t, false, rows[1]["ok"])

	_, err = table.Rows.NextBatch(10)
	assert.Equal(t, io.EOF, err)
}

func TestParseParquetBatching(t *testing.T) {
	rows := make([]measurement, 7)
	for i := range rows {
		rows[i] = measurement{ID: int64(i)}
	}
	path := writeParquet(t, rows)
	p, err := NewParser("m.parquet")
	require.NoError(t, err)
	data, err := p.Parse(context.Background(), path, "m.parquet")
	require.NoError(t, err)
	defer data.Close() // nolint:errcheck
	cursor := data.Tables[0].Rows
	var total int
	for {
		batch, err := cursor.NextBatch(3)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.LessOrEqual(t, len(batch), 3)
		total += len(batch)
	}
	assert.Equal(t, 7, total)
}

func TestParseParquetNotParquet(t *testing.T) {
	path := writeFile(t, "fake.parquet", "this is not parquet")
	p, err := NewParser("fake.parquet")
	require.NoError(t, err)
	_, err = p.Parse(context.Background(), path, "fake.parquet")
	assert.True(t, IsParserError(err))
}
