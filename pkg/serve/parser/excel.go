// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"context"
	"io"

	"github.com/antgroup/tabula/modules/plumbing"
	"github.com/xuri/excelize/v2"
)

type excelParser struct{}

// Parse opens the workbook and exposes one table per non-empty sheet, keyed by
// sheet name. Row iterators stream from the shared workbook; ParsedData.Close
// releases them all.
func (p *excelParser) Parse(ctx context.Context, path, filename string) (*ParsedData, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, newParserError(filename, 0, "open workbook: %v", err)
	}
	data := &ParsedData{FileType: "excel", closers: []io.Closer{f}}
	for _, sheet := range f.GetSheetList() {
		if !plumbing.ValidateTableKey(sheet) {
			_ = data.Close()
			return nil, newParserError(filename, 0, "sheet name '%s' is not a valid table key", sheet)
		}
		rows, err := f.Rows(sheet)
		if err != nil {
			_ = data.Close()
			return nil, newParserError(filename, 0, "open sheet '%s': %v", sheet, err)
		}
		if !rows.Next() {
			// empty sheet, no header
			_ = rows.Close()
			continue
		}
		header, err := rows.Columns()
		if err != nil {
			_ = rows.Close()
			_ = data.Close()
			return nil, newParserError(filename, 0, "read header of sheet '%s': %v", sheet, err)
		}
		if len(header) == 0 {
			_ = rows.Close()
			continue
		}
		columns := make([]string, len(header))
		for i, name := range header {
			if len(name) == 0 {
				_ = rows.Close()
				_ = data.Close()
				return nil, newParserError(filename, 1, "sheet '%s': empty column name at position %d", sheet, i+1)
			}
			columns[i] = name
		}
		data.Tables = append(data.Tables, &Table{
			Key:  sheet,
			Rows: &excelRows{rows: rows, columns: columns, sheet: sheet, filename: filename},
		})
	}
	return data, nil
}

type excelRows struct {
	rows     *excelize.Rows
	columns  []string
	sheet    string
	filename string
	line     int64
	done     bool
}

func (r *excelRows) Columns() []string { return r.columns }

func (r *excelRows) NextBatch(n int) ([]map[string]any, error) {
	if r.done {
		return nil, io.EOF
	}
	batch := make([]map[string]any, 0, n)
	for len(batch) < n {
		if !r.rows.Next() {
			r.done = true
			if err := r.rows.Error(); err != nil {
				return nil, newParserError(r.filename, r.line+1, "sheet '%s': %v", r.sheet, err)
			}
			break
		}
		r.line++
		cells, err := r.rows.Columns()
		if err != nil {
			return nil, newParserError(r.filename, r.line+1, "sheet '%s': %v", r.sheet, err)
		}
		if empty(cells) {
			continue
		}
		row := make(map[string]any, len(r.columns))
		for i, name := range r.columns {
			// short rows are padded with the null sentinel, surplus cells dropped
			if i < len(cells) {
				row[name] = coerceString(cells[i])
				continue
			}
			row[name] = nil
		}
		batch = append(batch, row)
	}
	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

func empty(cells []string) bool {
	for _, c := range cells {
		if len(c) != 0 {
			return false
		}
	}
	return true
}

func (r *excelRows) Close() error {
	r.done = true
	return r.rows.Close()
}
