// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/antgroup/tabula/modules/plumbing"
)

func scanRef(scan func(dest ...any) error) (*Ref, error) {
	var ref Ref
	var commitID sql.NullString
	if err := scan(&ref.ID, &ref.DatasetID, &ref.Name, &commitID, &ref.CreatedAt, &ref.UpdatedAt); err != nil {
		return nil, err
	}
	if commitID.Valid {
		ref.CommitID = commitID.String
	}
	return &ref, nil
}

func nullableCommit(commitID string) any {
	if len(commitID) == 0 {
		return nil
	}
	return commitID
}

func (d *database) NewRef(ctx context.Context, datasetID int64, name, commitID string) (*Ref, error) {
	if !plumbing.ValidateRefName(name) {
		return nil, &ErrNamingRule{name: name}
	}
	now := time.Now()
	result, err := d.ExecContext(ctx,
		"insert into refs(dataset_id, name, commit_id, created_at, updated_at) values(?,?,?,?,?)",
		datasetID, name, nullableCommit(commitID), now, now)
	if IsDupEntry(err) {
		return nil, NewErrExist("ref '%s' already exists", name)
	}
	if err != nil {
		return nil, err
	}
	id, _ := result.LastInsertId()
	return &Ref{ID: id, DatasetID: datasetID, Name: name, CommitID: commitID, CreatedAt: now, UpdatedAt: now}, nil
}

func (d *database) FindRef(ctx context.Context, datasetID int64, name string) (*Ref, error) {
	row := d.QueryRowContext(ctx,
		"select id, dataset_id, name, commit_id, created_at, updated_at from refs where dataset_id = ? and name = ?",
		datasetID, name)
	ref, err := scanRef(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewErrNotFound("ref", "%d/%s", datasetID, name)
	}
	if err != nil {
		return nil, err
	}
	return ref, nil
}

func (d *database) ListRefs(ctx context.Context, datasetID int64) ([]*Ref, error) {
	rows, err := d.QueryContext(ctx,
		"select id, dataset_id, name, commit_id, created_at, updated_at from refs where dataset_id = ? order by name",
		datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []*Ref
	for rows.Next() {
		ref, err := scanRef(rows.Scan)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (d *database) RemoveRef(ctx context.Context, datasetID int64, name string) (*Ref, error) {
	if name == DefaultRef {
		return nil, ErrDefaultRefProtected
	}
	ref, err := d.FindRef(ctx, datasetID, name)
	if err != nil {
		return nil, err
	}
	result, err := d.ExecContext(ctx, "delete from refs where dataset_id = ? and name = ?", datasetID, name)
	if err != nil {
		return nil, err
	}
	a, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if a == 0 {
		return nil, NewErrNotFound("ref", "%d/%s", datasetID, name)
	}
	return ref, nil
}

// DoRefUpdate advances one ref by compare-and-swap. The guarded update only
// applies when the stored commit still equals cmd.OldRev (both may be the
// unborn null); the loser of a race observes ErrAlreadyLocked and must
// re-resolve the ref before retrying.
//
// The connection is opened with ClientFoundRows so a no-op update (OldRev ==
// NewRev) still reports a matched row instead of a spurious CAS failure.
func (d *database) DoRefUpdate(ctx context.Context, cmd *RefUpdate) (*Ref, error) {
	if len(cmd.NewRev) == 0 {
		return nil, fmt.Errorf("ref update for '%s': new revision not given", cmd.Name)
	}
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("new tx error: %v", err)
	}
	var oldRev sql.NullString
	if err := tx.QueryRowContext(ctx, "select commit_id from refs where dataset_id = ? and name = ?",
		cmd.DatasetID, cmd.Name).Scan(&oldRev); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewErrNotFound("ref", "%d/%s", cmd.DatasetID, cmd.Name)
		}
		return nil, err
	}
	if oldRev.String != cmd.OldRev {
		_ = tx.Rollback()
		return nil, &ErrAlreadyLocked{Reference: cmd.Name}
	}
	result, err := tx.ExecContext(ctx,
		"update refs set commit_id = ?, updated_at = ? where dataset_id = ? and name = ? and commit_id <=> ?",
		cmd.NewRev, time.Now(), cmd.DatasetID, cmd.Name, nullableCommit(cmd.OldRev))
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	a, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if a == 0 {
		_ = tx.Rollback()
		return nil, &ErrAlreadyLocked{Reference: cmd.Name}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return d.FindRef(ctx, cmd.DatasetID, cmd.Name)
}
