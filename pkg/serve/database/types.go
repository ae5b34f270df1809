// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package database

import (
	"encoding/json"
	"time"
)

const (
	// DefaultRef is the branch every dataset is born with. It cannot be deleted.
	DefaultRef = "main"

	// RowIDFormatIntegerSuffix is the persisted marker for the logical row id
	// ordering rule: ids are "{table}:{index}" with an unpadded decimal index,
	// ordered by the integer value of the suffix. A repository never mixes
	// formats.
	RowIDFormatIntegerSuffix = "integer-suffix"
)

type Dataset struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   int64     `json:"created_by"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Commit struct {
	ID          string    `json:"commit_id"`
	DatasetID   int64     `json:"dataset_id"`
	ParentID    string    `json:"parent_commit_id,omitempty"` // empty for the root commit
	Message     string    `json:"message"`
	AuthorID    int64     `json:"author_id"`
	CommittedAt time.Time `json:"committed_at"`
}

// ManifestEntry binds one row hash to its table position inside a commit.
type ManifestEntry struct {
	LogicalRowID string `json:"logical_row_id"`
	RowHash      string `json:"row_hash"`
}

// RowBlob is one content-addressed row payload.
type RowBlob struct {
	Hash string
	Data []byte // canonical key-ordered JSON
}

// TableRow is one manifest-joined row returned by the read path.
type TableRow struct {
	LogicalRowID string
	Data         json.RawMessage
}

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type TableSchema struct {
	Columns []Column `json:"columns"`
}

// SchemaDefinition is the one schema record each commit carries.
type SchemaDefinition struct {
	RowIDFormat string                  `json:"row_id_format"`
	Tables      map[string]*TableSchema `json:"tables"`
}

type TableMetadata struct {
	RowCount    int64 `json:"row_count"`
	ColumnCount int   `json:"column_count"`
}

type Ref struct {
	ID        int64     `json:"id"`
	DatasetID int64     `json:"dataset_id"`
	Name      string    `json:"name"`
	CommitID  string    `json:"commit_id,omitempty"` // empty until the first import lands
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RefUpdate is a compare-and-swap command against one ref. OldRev is the commit
// the caller observed; empty means the ref is expected to be unborn. Exactly
// one of two racing updates from the same OldRev wins.
type RefUpdate struct {
	DatasetID int64  `json:"dataset_id"`
	Name      string `json:"name"`
	OldRev    string `json:"old_rev"`
	NewRev    string `json:"new_rev"`
}

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

type RunType string

const (
	RunImport   RunType = "import"
	RunSampling RunType = "sampling"
)

type Job struct {
	ID             string          `json:"job_id"`
	RunType        RunType         `json:"run_type"`
	Status         JobStatus       `json:"status"`
	DatasetID      int64           `json:"dataset_id"`
	UserID         int64           `json:"user_id"`
	SourceCommitID string          `json:"source_commit_id,omitempty"`
	RunParameters  json.RawMessage `json:"run_parameters,omitempty"`
	OutputSummary  json.RawMessage `json:"output_summary,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}
