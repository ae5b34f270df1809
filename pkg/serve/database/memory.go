// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/antgroup/tabula/modules/plumbing"
	"github.com/google/uuid"
)

// MemDB is an in-process DB with the same semantics as the MySQL
// implementation: idempotent row upserts, guarded ref compare-and-swap,
// exactly-once job acquisition, and an all-or-nothing commit publish scope.
// The worker and reader tests run against it; it is also handy for local
// development without a database.
type MemDB struct {
	mu         sync.Mutex
	datasetSeq int64
	refSeq     int64
	datasets   map[int64]*Dataset
	rows       map[string][]byte
	commits    map[string]*Commit
	manifests  map[string][]ManifestEntry
	schemas    map[string]*SchemaDefinition
	refs       map[string]*Ref // key "{dataset}/{name}"
	jobs       map[string]*Job
}

var _ DB = &MemDB{}

func NewMemDB() *MemDB {
	return &MemDB{
		datasets:  make(map[int64]*Dataset),
		rows:      make(map[string][]byte),
		commits:   make(map[string]*Commit),
		manifests: make(map[string][]ManifestEntry),
		schemas:   make(map[string]*SchemaDefinition),
		refs:      make(map[string]*Ref),
		jobs:      make(map[string]*Job),
	}
}

func (d *MemDB) Database() *sql.DB { return nil }

func (d *MemDB) Close() error { return nil }

func (d *MemDB) EnsureSchema(ctx context.Context) error { return nil }

func refKey(datasetID int64, name string) string {
	return fmt.Sprintf("%d/%s", datasetID, name)
}

func (d *MemDB) NewDataset(ctx context.Context, ds *Dataset) (*Dataset, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.datasetSeq++
	now := time.Now()
	ds.ID = d.datasetSeq
	ds.CreatedAt = now
	ds.UpdatedAt = now
	d.datasets[ds.ID] = ds
	d.refSeq++
	d.refs[refKey(ds.ID, DefaultRef)] = &Ref{ID: d.refSeq, DatasetID: ds.ID, Name: DefaultRef, CreatedAt: now, UpdatedAt: now}
	return ds, nil
}

func (d *MemDB) FindDataset(ctx context.Context, id int64) (*Dataset, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ds, ok := d.datasets[id]
	if !ok {
		return nil, NewErrNotFound("dataset", "%d", id)
	}
	return ds, nil
}

func (d *MemDB) ListDatasets(ctx context.Context) ([]*Dataset, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Dataset, 0, len(d.datasets))
	for _, ds := range d.datasets {
		out = append(out, ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *MemDB) RemoveDataset(ctx context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.datasets[id]; !ok {
		return NewErrNotFound("dataset", "%d", id)
	}
	delete(d.datasets, id)
	for k, ref := range d.refs {
		if ref.DatasetID == id {
			delete(d.refs, k)
		}
	}
	return nil
}

func (d *MemDB) UpsertRows(ctx context.Context, batch []RowBlob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, blob := range batch {
		if _, ok := d.rows[blob.Hash]; !ok {
			d.rows[blob.Hash] = blob.Data
		}
	}
	return nil
}

func (d *MemDB) RowExists(ctx context.Context, rowHash string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.rows[rowHash]
	return ok, nil
}

func (d *MemDB) FetchRows(ctx context.Context, hashes []string) (map[string]json.RawMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]json.RawMessage, len(hashes))
	for _, h := range hashes {
		if data, ok := d.rows[h]; ok {
			out[h] = json.RawMessage(data)
		}
	}
	return out, nil
}

// RowCount reports the number of stored row blobs. Test-only observability
// for the row reuse invariant.
func (d *MemDB) RowCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rows)
}

func (d *MemDB) FindCommit(ctx context.Context, commitID string) (*Commit, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.commits[commitID]
	if !ok {
		return nil, plumbing.NoSuchCommit(commitID)
	}
	return c, nil
}

func (d *MemDB) ListCommits(ctx context.Context, datasetID int64, from string, limit int) ([]*Commit, error) {
	if limit <= 0 {
		limit = 50
	}
	var commits []*Commit
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

func (d *MemDB) FindSchema(ctx context.Context, commitID string) (*SchemaDefinition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	def, ok := d.schemas[commitID]
	if !ok {
		return nil, NewErrNotFound("commit schema", "%s", commitID)
	}
	return def, nil
}

func (d *MemDB) tableEntries(commitID, tableKey string) []ManifestEntry {
	prefix := tableKey + plumbing.RowIDSeparator
	var out []ManifestEntry
	for _, e := range d.manifests[commitID] {
		if strings.HasPrefix(e.LogicalRowID, prefix) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		_, a, _ := plumbing.SplitRowID(out[i].LogicalRowID)
		_, b, _ := plumbing.SplitRowID(out[j].LogicalRowID)
		return a < b
	})
	return out
}

func (d *MemDB) ListTableKeys(ctx context.Context, commitID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	seen := make(map[string]bool)
	var keys []string
	for _, e := range d.manifests[commitID] {
		key, _, err := plumbing.SplitRowID(e.LogicalRowID)
		if err != nil {
			return nil, err
		}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (d *MemDB) CountTableRows(ctx context.Context, commitID, tableKey string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.tableEntries(commitID, tableKey))), nil
}

func (d *MemDB) GetTableRows(ctx context.Context, commitID, tableKey string, offset, limit int64) ([]*TableRow, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := d.tableEntries(commitID, tableKey)
	if offset >= int64(len(entries)) {
		return nil, nil
	}
	entries = entries[offset:]
	if limit < int64(len(entries)) {
		entries = entries[:limit]
	}
	out := make([]*TableRow, 0, len(entries))
	for _, e := range entries {
		out = append(out, &TableRow{LogicalRowID: e.LogicalRowID, Data: json.RawMessage(d.rows[e.RowHash])})
	}
	return out, nil
}

func (d *MemDB) BatchTableMetadata(ctx context.Context, commitIDs []string) (map[string]map[string]*TableMetadata, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]map[string]*TableMetadata, len(commitIDs))
	for _, commitID := range commitIDs {
		tables := make(map[string]*TableMetadata)
		for _, e := range d.manifests[commitID] {
			key, _, err := plumbing.SplitRowID(e.LogicalRowID)
			if err != nil {
				return nil, err
			}
			meta, ok := tables[key]
			if !ok {
				meta = &TableMetadata{}
				tables[key] = meta
			}
			meta.RowCount++
		}
		if def, ok := d.schemas[commitID]; ok {
			for key, ts := range def.Tables {
				if meta, ok := tables[key]; ok {
					meta.ColumnCount = len(ts.Columns)
				}
			}
		}
		if len(tables) != 0 {
			out[commitID] = tables
		}
	}
	return out, nil
}

func (d *MemDB) NewRef(ctx context.Context, datasetID int64, name, commitID string) (*Ref, error) {
	if !plumbing.ValidateRefName(name) {
		return nil, &ErrNamingRule{name: name}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	key := refKey(datasetID, name)
	if _, ok := d.refs[key]; ok {
		return nil, NewErrExist("ref '%s' already exists", name)
	}
	d.refSeq++
	now := time.Now()
	ref := &Ref{ID: d.refSeq, DatasetID: datasetID, Name: name, CommitID: commitID, CreatedAt: now, UpdatedAt: now}
	d.refs[key] = ref
	return ref, nil
}

func (d *MemDB) FindRef(ctx context.Context, datasetID int64, name string) (*Ref, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ref, ok := d.refs[refKey(datasetID, name)]
	if !ok {
		return nil, NewErrNotFound("ref", "%d/%s", datasetID, name)
	}
	cp := *ref
	return &cp, nil
}

func (d *MemDB) ListRefs(ctx context.Context, datasetID int64) ([]*Ref, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var refs []*Ref
	for _, ref := range d.refs {
		if ref.DatasetID == datasetID {
			cp := *ref
			refs = append(refs, &cp)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

func (d *MemDB) RemoveRef(ctx context.Context, datasetID int64, name string) (*Ref, error) {
	if name == DefaultRef {
		return nil, ErrDefaultRefProtected
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	key := refKey(datasetID, name)
	ref, ok := d.refs[key]
	if !ok {
		return nil, NewErrNotFound("ref", "%d/%s", datasetID, name)
	}
	delete(d.refs, key)
	return ref, nil
}

func (d *MemDB) DoRefUpdate(ctx context.Context, cmd *RefUpdate) (*Ref, error) {
	if len(cmd.NewRev) == 0 {
		return nil, fmt.Errorf("ref update for '%s': new revision not given", cmd.Name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	ref, ok := d.refs[refKey(cmd.DatasetID, cmd.Name)]
	if !ok {
		return nil, NewErrNotFound("ref", "%d/%s", cmd.DatasetID, cmd.Name)
	}
	if ref.CommitID != cmd.OldRev {
		return nil, &ErrAlreadyLocked{Reference: cmd.Name}
	}
	ref.CommitID = cmd.NewRev
	ref.UpdatedAt = time.Now()
	cp := *ref
	return &cp, nil
}

func (d *MemDB) NewJob(ctx context.Context, j *Job) (*Job, error) {
	if len(j.ID) == 0 {
		j.ID = uuid.NewString()
	}
	if len(j.RunType) == 0 {
		return nil, fmt.Errorf("job '%s': run type not given", j.ID)
	}
	if j.RunParameters == nil {
		j.RunParameters = json.RawMessage("{}")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	j.Status = JobPending
	j.CreatedAt = time.Now()
	d.jobs[j.ID] = j
	return j, nil
}

func (d *MemDB) FindJob(ctx context.Context, jobID string) (*Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	j, ok := d.jobs[jobID]
	if !ok {
		return nil, NewErrNotFound("job", "%s", jobID)
	}
	cp := *j
	return &cp, nil
}

func (d *MemDB) ListJobs(ctx context.Context, datasetID int64, status JobStatus, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var jobs []*Job
	for _, j := range d.jobs {
		if j.DatasetID != datasetID {
			continue
		}
		if len(status) != 0 && j.Status != status {
			continue
		}
		cp := *j
		jobs = append(jobs, &cp)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (d *MemDB) AcquireNextPending(ctx context.Context, runType RunType) (*Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var oldest *Job
	for _, j := range d.jobs {
		if j.Status != JobPending {
			continue
		}
		if len(runType) != 0 && j.RunType != runType {
			continue
		}
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, nil
	}
	oldest.Status = JobRunning
	cp := *oldest
	return &cp, nil
}

func (d *MemDB) UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, summary json.RawMessage, errorMessage string) error {
	if status != JobCompleted && status != JobFailed {
		return &ErrJobTransition{JobID: jobID, To: status}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	j, ok := d.jobs[jobID]
	if !ok {
		return NewErrNotFound("job", "%s", jobID)
	}
	if j.Status != JobRunning {
		return &ErrJobTransition{JobID: jobID, To: status}
	}
	j.Status = status
	j.OutputSummary = summary
	j.ErrorMessage = errorMessage
	now := time.Now()
	j.CompletedAt = &now
	return nil
}

func (d *MemDB) FailOrphanedJobs(ctx context.Context, diagnostic string) ([]*Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var orphans []*Job
	now := time.Now()
	for _, j := range d.jobs {
		if j.Status == JobRunning {
			j.Status = JobFailed
			j.ErrorMessage = diagnostic
			j.CompletedAt = &now
			jc := *j
			orphans = append(orphans, &jc)
		}
	}
	return orphans, nil
}

type memTx struct {
	db        *MemDB
	commits   []*Commit
	manifests map[string][]ManifestEntry
	schemas   map[string]*SchemaDefinition
}

var _ Tx = &memTx{}

func (t *memTx) InsertCommit(ctx context.Context, c *Commit) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if _, ok := t.db.commits[c.ID]; ok {
		return NewErrExist("commit '%s' already exists", c.ID)
	}
	for _, staged := range t.commits {
		if staged.ID == c.ID {
			return NewErrExist("commit '%s' already exists", c.ID)
		}
	}
	cp := *c
	t.commits = append(t.commits, &cp)
	return nil
}

func (t *memTx) InsertManifest(ctx context.Context, commitID string, entries []ManifestEntry) error {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.LogicalRowID] {
			return NewErrExist("manifest for commit '%s' already exists", commitID)
		}
		seen[e.LogicalRowID] = true
	}
	t.manifests[commitID] = append(t.manifests[commitID], entries...)
	return nil
}

func (t *memTx) InsertSchema(ctx context.Context, commitID string, def *SchemaDefinition) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if _, ok := t.db.schemas[commitID]; ok {
		return NewErrExist("schema for commit '%s' already exists", commitID)
	}
	t.schemas[commitID] = def
	return nil
}

// WithTx stages writes and applies them only when fn succeeds; the staged
// writes vanish on error, matching the SQL rollback behavior.
func (d *MemDB) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	t := &memTx{
		db:        d,
		manifests: make(map[string][]ManifestEntry),
		schemas:   make(map[string]*SchemaDefinition),
	}
	if err := fn(t); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range t.commits {
		d.commits[c.ID] = c
	}
	for commitID, entries := range t.manifests {
		d.manifests[commitID] = append(d.manifests[commitID], entries...)
	}
	for commitID, def := range t.schemas {
		d.schemas[commitID] = def
	}
	return nil
}
