// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Tx groups the writes that publish a commit into one all-or-nothing unit.
// The builder inserts the commit row, the manifest, and the schema inside a
// single scope; any failure rolls the whole scope back.
type Tx interface {
	InsertCommit(ctx context.Context, c *Commit) error
	InsertManifest(ctx context.Context, commitID string, entries []ManifestEntry) error
	InsertSchema(ctx context.Context, commitID string, def *SchemaDefinition) error
}

type DB interface {
	Database() *sql.DB
	Close() error
	EnsureSchema(ctx context.Context) error
	// datasets
	NewDataset(ctx context.Context, d *Dataset) (*Dataset, error)
	FindDataset(ctx context.Context, id int64) (*Dataset, error)
	ListDatasets(ctx context.Context) ([]*Dataset, error)
	RemoveDataset(ctx context.Context, id int64) error
	// content-addressed rows
	UpsertRows(ctx context.Context, batch []RowBlob) error
	RowExists(ctx context.Context, rowHash string) (bool, error)
	FetchRows(ctx context.Context, hashes []string) (map[string]json.RawMessage, error)
	// commits
	FindCommit(ctx context.Context, commitID string) (*Commit, error)
	ListCommits(ctx context.Context, datasetID int64, from string, limit int) ([]*Commit, error)
	FindSchema(ctx context.Context, commitID string) (*SchemaDefinition, error)
	// manifests (read side)
	ListTableKeys(ctx context.Context, commitID string) ([]string, error)
	CountTableRows(ctx context.Context, commitID, tableKey string) (int64, error)
	GetTableRows(ctx context.Context, commitID, tableKey string, offset, limit int64) ([]*TableRow, error)
	BatchTableMetadata(ctx context.Context, commitIDs []string) (map[string]map[string]*TableMetadata, error)
	// refs
	NewRef(ctx context.Context, datasetID int64, name, commitID string) (*Ref, error)
	FindRef(ctx context.Context, datasetID int64, name string) (*Ref, error)
	ListRefs(ctx context.Context, datasetID int64) ([]*Ref, error)
	RemoveRef(ctx context.Context, datasetID int64, name string) (*Ref, error)
	DoRefUpdate(ctx context.Context, cmd *RefUpdate) (*Ref, error)
	// jobs
	NewJob(ctx context.Context, j *Job) (*Job, error)
	FindJob(ctx context.Context, jobID string) (*Job, error)
	ListJobs(ctx context.Context, datasetID int64, status JobStatus, limit int) ([]*Job, error)
	AcquireNextPending(ctx context.Context, runType RunType) (*Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, summary json.RawMessage, errorMessage string) error
	FailOrphanedJobs(ctx context.Context, diagnostic string) ([]*Job, error)
	// transaction scope
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

type database struct {
	*sql.DB
}

func (d *database) Database() *sql.DB {
	return d.DB
}

func (d *database) Close() error {
	return d.DB.Close()
}

var (
	_ DB = &database{}
)

func NewDB(cfg *mysql.Config) (DB, error) {
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("new connector: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxIdleConns(25)
	db.SetMaxOpenConns(50)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &database{DB: db}, nil
}
