// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package repo

import "io"

type sliceRows struct {
	columns []string
	rows    []map[string]any
	pos     int
}

func newSliceRows(columns []string, batches [][]map[string]any) *sliceRows {
	s := &sliceRows{columns: columns}
	for _, batch := range batches {
		s.rows = append(s.rows, batch...)
	}
	return s
}

func (s *sliceRows) Columns() []string { return s.columns }

func (s *sliceRows) NextBatch(n int) ([]map[string]any, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	end := s.pos + n
	if end > len(s.rows) {
		end = len(s.rows)
	}
	batch := s.rows[s.pos:end]
	s.pos = end
	return batch, nil
}

func (s *sliceRows) Close() error { return nil }
