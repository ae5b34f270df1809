// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package database

import (
	"context"
	"fmt"
)

// The persisted layout is a cross-tool contract: independent readers join
// commit_rows against rows and agree on ordering via the integer row id
// suffix. Columns and keys here must not drift from that contract.
var ddl = []string{
	`CREATE TABLE IF NOT EXISTS datasets (
	id          BIGINT NOT NULL AUTO_INCREMENT,
	name        VARCHAR(255) NOT NULL,
	description TEXT NOT NULL,
	created_by  BIGINT NOT NULL,
	tags        JSON NOT NULL,
	created_at  DATETIME(6) NOT NULL,
	updated_at  DATETIME(6) NOT NULL,
	PRIMARY KEY (id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS rows (
	row_hash CHAR(64) NOT NULL,
	data     JSON NOT NULL,
	PRIMARY KEY (row_hash)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS commits (
	commit_id        CHAR(64) NOT NULL,
	dataset_id       BIGINT NOT NULL,
	parent_commit_id CHAR(64) NULL,
	message          TEXT NOT NULL,
	author_id        BIGINT NOT NULL,
	committed_at     DATETIME(6) NOT NULL,
	PRIMARY KEY (commit_id),
	KEY idx_commits_dataset (dataset_id, committed_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS commit_rows (
	commit_id      CHAR(64) NOT NULL,
	logical_row_id VARCHAR(96) NOT NULL,
	row_hash       CHAR(64) NOT NULL,
	PRIMARY KEY (commit_id, logical_row_id),
	KEY idx_commit_rows_commit (commit_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS commit_schemas (
	commit_id         CHAR(64) NOT NULL,
	schema_definition JSON NOT NULL,
	PRIMARY KEY (commit_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS refs (
	id         BIGINT NOT NULL AUTO_INCREMENT,
	dataset_id BIGINT NOT NULL,
	name       VARCHAR(255) NOT NULL,
	commit_id  CHAR(64) NULL,
	created_at DATETIME(6) NOT NULL,
	updated_at DATETIME(6) NOT NULL,
	PRIMARY KEY (id),
	UNIQUE KEY uniq_refs_dataset_name (dataset_id, name)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS jobs (
	job_id           CHAR(36) NOT NULL,
	run_type         VARCHAR(32) NOT NULL,
	status           VARCHAR(16) NOT NULL,
	dataset_id       BIGINT NOT NULL,
	user_id          BIGINT NOT NULL,
	source_commit_id CHAR(64) NULL,
	run_parameters   JSON NOT NULL,
	output_summary   JSON NULL,
	error_message    TEXT NULL,
	created_at       DATETIME(6) NOT NULL,
	completed_at     DATETIME(6) NULL,
	PRIMARY KEY (job_id),
	KEY idx_jobs_status_created (status, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates any missing tables. Statements are idempotent so this
// is safe to run on every startup.
func (d *database) EnsureSchema(ctx context.Context) error {
	for _, stmt := range ddl {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
