// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/antgroup/tabula/modules/plumbing"
)

func scanCommit(scan func(dest ...any) error) (*Commit, error) {
	var c Commit
	var parent sql.NullString
	if err := scan(&c.ID, &c.DatasetID, &parent, &c.Message, &c.AuthorID, &c.CommittedAt); err != nil {
		return nil, err
	}
	if parent.Valid {
		c.ParentID = parent.String
	}
	return &c, nil
}

func (d *database) FindCommit(ctx context.Context, commitID string) (*Commit, error) {
	row := d.QueryRowContext(ctx,
		"select commit_id, dataset_id, parent_commit_id, message, author_id, committed_at from commits where commit_id = ?",
		commitID)
	c, err := scanCommit(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, plumbing.NoSuchCommit(commitID)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCommits walks the parent chain starting at from. The chain is acyclic by
// construction, so the walk terminates at the root or at limit.
func (d *database) ListCommits(ctx context.Context, datasetID int64, from string, limit int) ([]*Commit, error) {
	if limit <= 0 {
		limit = 50
	}
	commits := make([]*Commit, 0, limit)
	cursor := from
	for len(cursor) != 0 && len(commits) < limit {
		c, err := d.FindCommit(ctx, cursor)
		if err != nil {
			return nil, err
		}
		if c.DatasetID != datasetID {
			return nil, NewErrNotFound("commit", "%s", cursor)
		}
		commits = append(commits, c)
		cursor = c.ParentID
	}
	return commits, nil
}

func (d *database) FindSchema(ctx context.Context, commitID string) (*SchemaDefinition, error) {
	var raw []byte
	err := d.QueryRowContext(ctx,
		"select schema_definition from commit_schemas where commit_id = ?", commitID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewErrNotFound("commit schema", "%s", commitID)
	}
	if err != nil {
		return nil, err
	}
	var def SchemaDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, err
	}
	return &def, nil
}
