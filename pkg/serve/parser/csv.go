// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"

	"github.com/antgroup/tabula/modules/plumbing"
)

type csvParser struct {
	comma       rune
	fileType    string
	compression string
}

func (p *csvParser) Parse(ctx context.Context, path, filename string) (*ParsedData, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rc, err := wrapCompression(bufio.NewReaderSize(fd, 256<<10), p.compression)
	if err != nil {
		_ = fd.Close()
		return nil, newParserError(filename, 0, "open compressed stream: %v", err)
	}
	cr := csv.NewReader(rc)
	cr.Comma = p.comma
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		_ = rc.Close()
		_ = fd.Close()
		return nil, newParserError(filename, 0, "empty file")
	}
	if err != nil {
		_ = rc.Close()
		_ = fd.Close()
		return nil, newParserError(filename, 1, "read header: %v", err)
	}
	columns := make([]string, len(header))
	for i, name := range header {
		if len(name) == 0 {
			_ = rc.Close()
			_ = fd.Close()
			return nil, newParserError(filename, 1, "empty column name at position %d", i+1)
		}
		columns[i] = name
	}
	rows := &csvRows{cr: cr, columns: columns, filename: filename, line: 1}
	return &ParsedData{
		FileType: p.fileType,
		Tables:   []*Table{{Key: plumbing.PrimaryTable, Rows: rows}},
		closers:  []io.Closer{rc, fd},
	}, nil
}

type csvRows struct {
	cr       *csv.Reader
	columns  []string
	filename string
	line     int64
	done     bool
}

func (r *csvRows) Columns() []string { return r.columns }

func (r *csvRows) NextBatch(n int) ([]map[string]any, error) {
	if r.done {
		return nil, io.EOF
	}
	batch := make([]map[string]any, 0, n)
	for len(batch) < n {
		record, err := r.cr.Read()
		if errors.Is(err, io.EOF) {
			r.done = true
			break
		}
		if err != nil {
			return nil, newParserError(r.filename, r.line+1, "%v", err)
		}
		r.line++
		row := make(map[string]any, len(r.columns))
		for i, name := range r.columns {
			row[name] = coerceString(record[i])
		}
		batch = append(batch, row)
	}
	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

func (r *csvRows) Close() error {
	r.done = true
	return nil
}
