// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const jobColumns = "job_id, run_type, status, dataset_id, user_id, source_commit_id, run_parameters, output_summary, error_message, created_at, completed_at"

func scanJob(scan func(dest ...any) error) (*Job, error) {
	var j Job
	var sourceCommit sql.NullString
	var summary, params []byte
	var errorMessage sql.NullString
	var completedAt sql.NullTime
	if err := scan(&j.ID, &j.RunType, &j.Status, &j.DatasetID, &j.UserID, &sourceCommit,
		&params, &summary, &errorMessage, &j.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	j.SourceCommitID = sourceCommit.String
	j.RunParameters = json.RawMessage(params)
	if len(summary) != 0 {
		j.OutputSummary = json.RawMessage(summary)
	}
	j.ErrorMessage = errorMessage.String
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

// NewJob enqueues j with status pending and a fresh uuid.
func (d *database) NewJob(ctx context.Context, j *Job) (*Job, error) {
	if len(j.ID) == 0 {
		j.ID = uuid.NewString()
	}
	if len(j.RunType) == 0 {
		return nil, fmt.Errorf("job '%s': run type not given", j.ID)
	}
	if j.RunParameters == nil {
		j.RunParameters = json.RawMessage("{}")
	}
	j.Status = JobPending
	j.CreatedAt = time.Now()
	_, err := d.ExecContext(ctx,
		"insert into jobs(job_id, run_type, status, dataset_id, user_id, source_commit_id, run_parameters, created_at) values(?,?,?,?,?,?,?,?)",
		j.ID, j.RunType, j.Status, j.DatasetID, j.UserID, nullableCommit(j.SourceCommitID), []byte(j.RunParameters), j.CreatedAt)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (d *database) FindJob(ctx context.Context, jobID string) (*Job, error) {
	row := d.QueryRowContext(ctx, "select "+jobColumns+" from jobs where job_id = ?", jobID)
	j, err := scanJob(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewErrNotFound("job", "%s", jobID)
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (d *database) ListJobs(ctx context.Context, datasetID int64, status JobStatus, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}
	query := "select " + jobColumns + " from jobs where dataset_id = ?"
	args := []any{datasetID}
	if len(status) != 0 {
		query += " and status = ?"
		args = append(args, status)
	}
	query += " order by created_at desc limit ?"
	args = append(args, limit)
	rows, err := d.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// AcquireNextPending atomically claims the oldest pending job, optionally
// filtered by run type. SKIP LOCKED keeps N workers from ever selecting the
// same row; the winner flips it to running inside the same transaction.
// Returns (nil, nil) when the queue is empty.
func (d *database) AcquireNextPending(ctx context.Context, runType RunType) (*Job, error) {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("new tx error: %v", err)
	}
	query := "select " + jobColumns + " from jobs where status = ?"
	args := []any{JobPending}
	if len(runType) != 0 {
		query += " and run_type = ?"
		args = append(args, runType)
	}
	query += " order by created_at limit 1 for update skip locked"
	j, err := scanJob(tx.QueryRowContext(ctx, query, args...).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return nil, nil
	}
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "update jobs set status = ? where job_id = ?", JobRunning, j.ID); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	j.Status = JobRunning
	return j, nil
}

// UpdateJobStatus finishes a running job. The guarded update enforces the
// transition table: only running jobs may complete or fail, and terminal
// states never change again.
func (d *database) UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, summary json.RawMessage, errorMessage string) error {
	if status != JobCompleted && status != JobFailed {
		return &ErrJobTransition{JobID: jobID, To: status}
	}
	var summaryArg any
	if summary != nil {
		summaryArg = []byte(summary)
	}
	var errorArg any
	if len(errorMessage) != 0 {
		errorArg = errorMessage
	}
	result, err := d.ExecContext(ctx,
		"update jobs set status = ?, output_summary = ?, error_message = ?, completed_at = ? where job_id = ? and status = ?",
		status, summaryArg, errorArg, time.Now(), jobID, JobRunning)
	if err != nil {
		return err
	}
	a, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if a == 0 {
		if _, err := d.FindJob(ctx, jobID); err != nil {
			return err
		}
		return &ErrJobTransition{JobID: jobID, To: status}
	}
	return nil
}

// FailOrphanedJobs marks every running job failed and returns them. Workers
// call this once on startup: a job left running by a crashed worker is failed
// with a diagnostic rather than silently resumed, and re-submission is safe
// because commit ids are content-derived. The returned jobs carry their
// run_parameters so the caller can release whatever the crashed run held.
func (d *database) FailOrphanedJobs(ctx context.Context, diagnostic string) ([]*Job, error) {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("new tx error: %v", err)
	}
	done := false
	defer func() {
		if !done {
			_ = tx.Rollback()
		}
	}()
	rows, err := tx.QueryContext(ctx,
		"select "+jobColumns+" from jobs where status = ? for update", JobRunning)
	if err != nil {
		return nil, err
	}
	var orphans []*Job
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		orphans = append(orphans, j)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	now := time.Now()
	if len(orphans) != 0 {
		if _, err := tx.ExecContext(ctx,
			"update jobs set status = ?, error_message = ?, completed_at = ? where status = ?",
			JobFailed, diagnostic, now, JobRunning); err != nil {
			return nil, err
		}
	}
	done = true
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	for _, j := range orphans {
		j.Status = JobFailed
		j.ErrorMessage = diagnostic
		t := now
		j.CompletedAt = &t
	}
	return orphans, nil
}
