// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

type sqlTx struct {
	tx *sql.Tx
}

var _ Tx = &sqlTx{}

// WithTx runs fn inside one connection and one transaction. Returning nil
// commits; returning an error (or panicking) rolls everything back.
func (d *database) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("new tx error: %v", err)
	}
	done := false
	defer func() {
		if !done {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&sqlTx{tx: tx}); err != nil {
		return err
	}
	done = true
	return tx.Commit()
}

// InsertCommit writes the commit record. A duplicate key is not a storage
// fault: commit ids are content-derived, so the row already holding this id is
// byte-identical to what we were about to write.
func (t *sqlTx) InsertCommit(ctx context.Context, c *Commit) error {
	_, err := t.tx.ExecContext(ctx,
		"insert into commits(commit_id, dataset_id, parent_commit_id, message, author_id, committed_at) values(?,?,?,?,?,?)",
		c.ID, c.DatasetID, nullableCommit(c.ParentID), c.Message, c.AuthorID, c.CommittedAt)
	if IsDupEntry(err) {
		return NewErrExist("commit '%s' already exists", c.ID)
	}
	return err
}

func (t *sqlTx) InsertManifest(ctx context.Context, commitID string, entries []ManifestEntry) error {
	for len(entries) > 0 {
		n := min(len(entries), upsertChunk)
		chunk := entries[:n]
		entries = entries[n:]

		var sb strings.Builder
		sb.WriteString("insert into commit_rows(commit_id, logical_row_id, row_hash) values ")
		args := make([]any, 0, 3*n)
		for i, e := range chunk {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString("(?,?,?)")
			args = append(args, commitID, e.LogicalRowID, e.RowHash)
		}
		if _, err := t.tx.ExecContext(ctx, sb.String(), args...); err != nil {
			if IsDupEntry(err) {
				return NewErrExist("manifest for commit '%s' already exists", commitID)
			}
			return err
		}
	}
	return nil
}

func (t *sqlTx) InsertSchema(ctx context.Context, commitID string, def *SchemaDefinition) error {
	raw, err := json.Marshal(def)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		"insert into commit_schemas(commit_id, schema_definition) values(?,?)", commitID, raw)
	if IsDupEntry(err) {
		return NewErrExist("schema for commit '%s' already exists", commitID)
	}
	return err
}
