// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/antgroup/tabula/modules/plumbing"
	"github.com/parquet-go/parquet-go"
)

type parquetParser struct{}

// Parse maps a parquet file to a single "primary" table. Only flat schemas
// are supported; nested groups do not fit the column model of tabular
// commits.
func (p *parquetParser) Parse(ctx context.Context, path, filename string) (*ParsedData, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := fd.Stat()
	if err != nil {
		_ = fd.Close()
		return nil, err
	}
	pf, err := parquet.OpenFile(fd, st.Size())
	if err != nil {
		_ = fd.Close()
		return nil, newParserError(filename, 0, "open parquet: %v", err)
	}
	fields := pf.Schema().Fields()
	columns := make([]string, 0, len(fields))
	converters := make([]func(parquet.Value) any, 0, len(fields))
	for _, f := range fields {
		if !f.Leaf() {
			_ = fd.Close()
			return nil, newParserError(filename, 0, "nested parquet field '%s' is not supported", f.Name())
		}
		columns = append(columns, f.Name())
		converters = append(converters, converter(f))
	}
	rows := &parquetRows{
		file:       pf,
		columns:    columns,
		converters: converters,
		filename:   filename,
		buf:        make([]parquet.Row, 256),
	}
	return &ParsedData{
		FileType: "parquet",
		Tables:   []*Table{{Key: plumbing.PrimaryTable, Rows: rows}},
		closers:  []io.Closer{fd},
	}, nil
}

// converter builds the per-column physical→logical mapping once, so the row
// loop stays a plain switch-free call.
func converter(f parquet.Field) func(parquet.Value) any {
	logical := f.Type().LogicalType()
	if logical != nil {
		switch {
		case logical.Timestamp != nil:
			unit := logical.Timestamp.Unit
			return func(v parquet.Value) any {
				if v.IsNull() {
					return nil
				}
				ts := v.Int64()
				switch {
				case unit.Millis != nil:
					return time.UnixMilli(ts).UTC()
				case unit.Micros != nil:
					return time.UnixMicro(ts).UTC()
				default:
					return time.Unix(0, ts).UTC()
				}
			}
		case logical.Date != nil:
			return func(v parquet.Value) any {
				if v.IsNull() {
					return nil
				}
				return time.Unix(int64(v.Int32())*86400, 0).UTC()
			}
		}
	}
	return func(v parquet.Value) any {
		if v.IsNull() {
			return nil
		}
		switch v.Kind() {
		case parquet.Boolean:
			return v.Boolean()
		case parquet.Int32:
			return int64(v.Int32())
		case parquet.Int64:
			return v.Int64()
		case parquet.Float:
			return float64(v.Float())
		case parquet.Double:
			return v.Double()
		case parquet.ByteArray, parquet.FixedLenByteArray:
			return string(v.ByteArray())
		}
		return v.String()
	}
}

type parquetRows struct {
	file       *parquet.File
	columns    []string
	converters []func(parquet.Value) any
	filename   string
	buf        []parquet.Row
	group      int
	rows       parquet.Rows
	done       bool
}

func (r *parquetRows) Columns() []string { return r.columns }

func (r *parquetRows) NextBatch(n int) ([]map[string]any, error) {
	if r.done {
		return nil, io.EOF
	}
	batch := make([]map[string]any, 0, n)
	for len(batch) < n {
		if r.rows == nil {
			groups := r.file.RowGroups()
			if r.group >= len(groups) {
				r.done = true
				break
			}
			r.rows = groups[r.group].Rows()
			r.group++
		}
		want := min(n-len(batch), len(r.buf))
		m, err := r.rows.ReadRows(r.buf[:want])
		for _, raw := range r.buf[:m] {
			row := make(map[string]any, len(r.columns))
			for _, v := range raw {
				col := v.Column()
				if col < 0 || col >= len(r.columns) {
					return nil, newParserError(r.filename, 0, "row value outside schema (column %d)", col)
				}
				row[r.columns[col]] = r.converters[col](v)
			}
			batch = append(batch, row)
		}
		if errors.Is(err, io.EOF) {
			_ = r.rows.Close()
			r.rows = nil
			continue
		}
		if err != nil {
			return nil, newParserError(r.filename, 0, "read rows: %v", err)
		}
	}
	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

func (r *parquetRows) Close() error {
	r.done = true
	if r.rows != nil {
		err := r.rows.Close()
		r.rows = nil
		return err
	}
	return nil
}
