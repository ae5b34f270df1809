// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package database

import (
	"context"
	"encoding/json"
	"strings"
)

// upsertChunk bounds the placeholder count of one multi-row insert.
const upsertChunk = 500

// UpsertRows inserts content-addressed row blobs. Duplicate hashes are
// silently skipped, so concurrent writers never conflict and replays are
// no-ops.
func (d *database) UpsertRows(ctx context.Context, batch []RowBlob) error {
	for len(batch) > 0 {
		n := min(len(batch), upsertChunk)
		chunk := batch[:n]
		batch = batch[n:]

		var sb strings.Builder
		sb.WriteString("insert into rows(row_hash, data) values ")
		args := make([]any, 0, 2*n)
		for i, blob := range chunk {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString("(?,?)")
			args = append(args, blob.Hash, blob.Data)
		}
		sb.WriteString(" on duplicate key update row_hash = row_hash")
		if _, err := d.ExecContext(ctx, sb.String(), args...); err != nil {
			return err
		}
	}
	return nil
}

func (d *database) RowExists(ctx context.Context, rowHash string) (bool, error) {
	var one int
	err := d.QueryRowContext(ctx, "select 1 from rows where row_hash = ?", rowHash).Scan(&one)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (d *database) FetchRows(ctx context.Context, hashes []string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(hashes))
	for len(hashes) > 0 {
		n := min(len(hashes), upsertChunk)
		chunk := hashes[:n]
		hashes = hashes[n:]

		query := "select row_hash, data from rows where row_hash in (?" + strings.Repeat(",?", n-1) + ")"
		args := make([]any, 0, n)
		for _, h := range chunk {
			args = append(args, h)
		}
		rows, err := d.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var h string
			var data []byte
			if err := rows.Scan(&h, &data); err != nil {
				_ = rows.Close()
				return nil, err
			}
			out[h] = json.RawMessage(data)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, err
		}
		_ = rows.Close()
	}
	return out, nil
}
