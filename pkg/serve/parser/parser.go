// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package parser maps uploaded file bytes to logical tables of rows. Parsers
// stream: they hand out rows in bounded batches so the commit builder never
// holds a whole file in memory.
package parser

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/antgroup/tabula/modules/streamio"
)

// RowReader is a cursor over one logical table. NextBatch returns up to n rows
// and io.EOF once the table is exhausted; a batch is fully consumed before the
// next one is requested.
type RowReader interface {
	Columns() []string
	NextBatch(n int) ([]map[string]any, error)
	Close() error
}

// Table is one logical table of an upload: "primary" for single-table sources,
// the sheet name for workbooks.
type Table struct {
	Key  string
	Rows RowReader
}

// ParsedData is the parse result: a file type tag plus one or more tables.
type ParsedData struct {
	FileType string
	Tables   []*Table
	closers  []io.Closer
}

// Close releases every reader and underlying file handle.
func (p *ParsedData) Close() error {
	var first error
	for _, t := range p.Tables {
		if err := t.Rows.Close(); err != nil && first == nil {
			first = err
		}
	}
	for _, c := range p.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type Parser interface {
	Parse(ctx context.Context, path, filename string) (*ParsedData, error)
}

type ErrUnsupportedFormat struct {
	Ext string
}

func (err *ErrUnsupportedFormat) Error() string {
	return fmt.Sprintf("unsupported file format: '%s'", err.Ext)
}

func IsErrUnsupportedFormat(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*ErrUnsupportedFormat)
	return ok
}

// ParserError marks file content that does not match its declared format.
// Terminal for the job; Offset carries a row/byte position when known.
type ParserError struct {
	Path   string
	Offset int64
	Reason string
}

func (err *ParserError) Error() string {
	if err.Offset > 0 {
		return fmt.Sprintf("parse '%s' at %d: %s", err.Path, err.Offset, err.Reason)
	}
	return fmt.Sprintf("parse '%s': %s", err.Path, err.Reason)
}

func IsParserError(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*ParserError)
	return ok
}

func newParserError(path string, offset int64, format string, a ...any) error {
	return &ParserError{Path: path, Offset: offset, Reason: fmt.Sprintf(format, a...)}
}

// splitExt returns the format extension and the compression suffix, both
// lowercase: "a.CSV.gz" yields (".csv", ".gz").
func splitExt(filename string) (ext, compression string) {
	ext = strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".gz", ".zst":
		compression = ext
		ext = strings.ToLower(filepath.Ext(strings.TrimSuffix(filename, filepath.Ext(filename))))
	}
	return ext, compression
}

// NewParser selects a parser by file extension, case-insensitively. CSV and
// TSV may carry a trailing .gz or .zst; the stream is decompressed
// transparently.
func NewParser(filename string) (Parser, error) {
	ext, compression := splitExt(filename)
	switch ext {
	case ".csv":
		return &csvParser{comma: ',', fileType: "csv", compression: compression}, nil
	case ".tsv":
		return &csvParser{comma: '\t', fileType: "tsv", compression: compression}, nil
	case ".xlsx", ".xlsm":
		if len(compression) != 0 {
			return nil, &ErrUnsupportedFormat{Ext: ext + compression}
		}
		return &excelParser{}, nil
	case ".parquet":
		if len(compression) != 0 {
			return nil, &ErrUnsupportedFormat{Ext: ext + compression}
		}
		return &parquetParser{}, nil
	}
	if len(compression) != 0 {
		ext += compression
	}
	return nil, &ErrUnsupportedFormat{Ext: ext}
}

func wrapCompression(r io.Reader, compression string) (io.ReadCloser, error) {
	switch compression {
	case ".gz":
		return streamio.NewGzipReader(r)
	case ".zst":
		return streamio.NewZstdReader(r)
	}
	return io.NopCloser(r), nil
}
