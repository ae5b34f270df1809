// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"time"
)

var (
	datasetNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 ._-]{0,254}$`)
)

func (d *Dataset) Validate() error {
	if !datasetNameRegex.MatchString(d.Name) {
		return &ErrNamingRule{name: d.Name}
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}
	return nil
}

func (d *database) NewDataset(ctx context.Context, ds *Dataset) (*Dataset, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	tags, err := json.Marshal(ds.Tags)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	result, err := d.ExecContext(ctx,
		"insert into datasets(name, description, created_by, tags, created_at, updated_at) values(?,?,?,?,?,?)",
		ds.Name, ds.Description, ds.CreatedBy, string(tags), now, now)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	ds.ID = id
	ds.CreatedAt = now
	ds.UpdatedAt = now
	// every dataset is born with an unborn default ref
	if _, err := d.NewRef(ctx, id, DefaultRef, ""); err != nil {
		return nil, err
	}
	return ds, nil
}

func scanDataset(scan func(dest ...any) error) (*Dataset, error) {
	var ds Dataset
	var tags []byte
	if err := scan(&ds.ID, &ds.Name, &ds.Description, &ds.CreatedBy, &tags, &ds.CreatedAt, &ds.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tags, &ds.Tags); err != nil {
		return nil, err
	}
	return &ds, nil
}

func (d *database) FindDataset(ctx context.Context, id int64) (*Dataset, error) {
	row := d.QueryRowContext(ctx,
		"select id, name, description, created_by, tags, created_at, updated_at from datasets where id = ?", id)
	ds, err := scanDataset(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewErrNotFound("dataset", "%d", id)
	}
	if err != nil {
		return nil, err
	}
	return ds, nil
}

func (d *database) ListDatasets(ctx context.Context) ([]*Dataset, error) {
	rows, err := d.QueryContext(ctx,
		"select id, name, description, created_by, tags, created_at, updated_at from datasets order by id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var datasets []*Dataset
	for rows.Next() {
		ds, err := scanDataset(rows.Scan)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, ds)
	}
	return datasets, rows.Err()
}

// RemoveDataset deletes the dataset record and its refs. Commits and rows are
// retained: rows are shared content and history is never rewritten.
func (d *database) RemoveDataset(ctx context.Context, id int64) error {
	result, err := d.ExecContext(ctx, "delete from datasets where id = ?", id)
	if err != nil {
		return err
	}
	a, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if a == 0 {
		return NewErrNotFound("dataset", "%d", id)
	}
	_, err = d.ExecContext(ctx, "delete from refs where dataset_id = ?", id)
	return err
}
