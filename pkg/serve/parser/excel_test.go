// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "people"))
	require.NoError(t, f.SetSheetRow("people", "A1", &[]any{"name", "age"}))
	require.NoError(t, f.SetSheetRow("people", "A2", &[]any{"ada", 36}))
	require.NoError(t, f.SetSheetRow("people", "A3", &[]any{"grace", 85}))
	// second sheet with a short row and an all-empty row
	_, err := f.NewSheet("notes")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("notes", "A1", &[]any{"id", "text"}))
	require.NoError(t, f.SetSheetRow("notes", "A2", &[]any{1}))
	require.NoError(t, f.SetSheetRow("notes", "A4", &[]any{2, "late"}))
	path := filepath.Join(t.TempDir(), "book.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
	return path
}

func TestParseExcel(t *testing.T) {
	path := writeWorkbook(t)
	p, err := NewParser("book.xlsx")
	require.NoError(t, err)
	data, err := p.Parse(context.Background(), path, "book.xlsx")
	require.NoError(t, err)
	defer data.Close() // nolint:errcheck
	assert.Equal(t, "excel", data.FileType)
	require.Len(t, data.Tables, 2)

	byKey := make(map[string]*Table)
	for _, table := range data.Tables {
		byKey[table.Key] = table
	}
	people := byKey["people"]
	require.NotNil(t, people)
	assert.Equal(t, []string{"name", "age"}, people.Rows.Columns())
	rows, err := people.Rows.NextBatch(10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ada", rows[0]["name"])
	assert.Equal(t, int64(36), rows[0]["age"])
	_, err = people.Rows.NextBatch(10)
	assert.Equal(t, io.EOF, err)

	notes := byKey["notes"]
	require.NotNil(t, notes)
	rows, err = notes.Rows.NextBatch(10)
	require.NoError(t, err)
	// the empty spreadsheet row is skipped, the short row padded with null
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0]["id"])
	assert.Nil(t, rows[0]["text"])
	assert.Equal(t, "late", rows[1]["text"])
}

func TestParseExcelBadSheetName(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "1bad"))
	require.NoError(t, f.SetSheetRow("1bad", "A1", &[]any{"a"}))
	path := filepath.Join(t.TempDir(), "bad.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	p, err := NewParser("bad.xlsx")
	require.NoError(t, err)
	_, err = p.Parse(context.Background(), path, "bad.xlsx")
	assert.True(t, IsParserError(err))
}
