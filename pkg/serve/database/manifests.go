// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package database

import (
	"context"
	"encoding/json"
	"strings"
)

// likeEscape neutralizes LIKE wildcards in a table key. '_' is a legal table
// key character and a single-char wildcard in MySQL.
func likeEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

// ListTableKeys returns the distinct logical row id prefixes of one commit.
// The schema record is the preferred source; this is the fallback the reader
// uses when a commit predates schema records.
func (d *database) ListTableKeys(ctx context.Context, commitID string) ([]string, error) {
	rows, err := d.QueryContext(ctx,
		"select distinct substring_index(logical_row_id, ':', 1) as table_key from commit_rows where commit_id = ? order by table_key",
		commitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (d *database) CountTableRows(ctx context.Context, commitID, tableKey string) (int64, error) {
	var count int64
	err := d.QueryRowContext(ctx,
		"select count(*) from commit_rows where commit_id = ? and logical_row_id like concat(?, ':%')",
		commitID, likeEscape(tableKey)).Scan(&count)
	return count, err
}

// GetTableRows returns manifest-joined rows ordered by the integer value of
// the row id suffix. Lexicographic ordering of unpadded ids would interleave
// "t:10" between "t:1" and "t:2".
func (d *database) GetTableRows(ctx context.Context, commitID, tableKey string, offset, limit int64) ([]*TableRow, error) {
	rows, err := d.QueryContext(ctx,
		`select cr.logical_row_id, r.data
from commit_rows cr join rows r on r.row_hash = cr.row_hash
where cr.commit_id = ? and cr.logical_row_id like concat(?, ':%')
order by cast(substring_index(cr.logical_row_id, ':', -1) as unsigned)
limit ? offset ?`,
		commitID, likeEscape(tableKey), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*TableRow
	for rows.Next() {
		var tr TableRow
		var data []byte
		if err := rows.Scan(&tr.LogicalRowID, &data); err != nil {
			return nil, err
		}
		tr.Data = json.RawMessage(data)
		out = append(out, &tr)
	}
	return out, rows.Err()
}

// BatchTableMetadata is the single-round-trip bulk fetch backing overview
// endpoints: per commit, per table, row and column counts.
func (d *database) BatchTableMetadata(ctx context.Context, commitIDs []string) (map[string]map[string]*TableMetadata, error) {
	out := make(map[string]map[string]*TableMetadata, len(commitIDs))
	if len(commitIDs) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(commitIDs))
	for _, id := range commitIDs {
		args = append(args, id)
	}
	placeholders := "?" + strings.Repeat(",?", len(commitIDs)-1)

	rows, err := d.QueryContext(ctx,
		"select commit_id, substring_index(logical_row_id, ':', 1) as table_key, count(*) from commit_rows where commit_id in ("+
			placeholders+") group by commit_id, table_key", args...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var commitID, tableKey string
		var count int64
		if err := rows.Scan(&commitID, &tableKey, &count); err != nil {
			_ = rows.Close()
			return nil, err
		}
		tables, ok := out[commitID]
		if !ok {
			tables = make(map[string]*TableMetadata)
			out[commitID] = tables
		}
		tables[tableKey] = &TableMetadata{RowCount: count}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	schemas, err := d.QueryContext(ctx,
		"select commit_id, schema_definition from commit_schemas where commit_id in ("+placeholders+")", args...)
	if err != nil {
		return nil, err
	}
	defer schemas.Close()
	for schemas.Next() {
		var commitID string
		var raw []byte
		if err := schemas.Scan(&commitID, &raw); err != nil {
			return nil, err
		}
		var def SchemaDefinition
		if err := json.Unmarshal(raw, &def); err != nil {
			return nil, err
		}
		tables := out[commitID]
		if tables == nil {
			continue
		}
		for key, ts := range def.Tables {
			if meta, ok := tables[key]; ok {
				meta.ColumnCount = len(ts.Columns)
			}
		}
	}
	return out, schemas.Err()
}
