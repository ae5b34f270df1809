// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/antgroup/tabula/pkg/serve/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
)

func spoolFile(t *testing.T, name, content string) (string, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	sum := blake3.Sum256([]byte(content))
	return path, hex.EncodeToString(sum[:])
}

func enqueueImport(t *testing.T, d *database.MemDB, params *ImportParams) *database.Job {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	j, err := d.NewJob(context.Background(), &database.Job{
		RunType:       database.RunImport,
		DatasetID:     params.DatasetID,
		UserID:        params.UserID,
		RunParameters: raw,
	})
	require.NoError(t, err)
	return j
}

func TestWorkerImportsCSV(t *testing.T) {
	ctx := context.Background()
	d := database.NewMemDB()
	ds, err := d.NewDataset(ctx, &database.Dataset{Name: "fixture", CreatedBy: 1})
	require.NoError(t, err)

	content := "name,age\nada,36\ngrace,85\n"
	path, checksum := spoolFile(t, "people.csv", content)
	j := enqueueImport(t, d, &ImportParams{
		DatasetID:     ds.ID,
		TargetRef:     database.DefaultRef,
		TempFilePath:  path,
		Filename:      "people.csv",
		CommitMessage: "import people",
		UserID:        7,
		FileSize:      int64(len(content)),
		SpoolChecksum: checksum,
	})

	w := NewWorker(d, time.Minute)
	w.Register(database.RunImport, NewImporter(d).Execute)
	require.NoError(t, w.drain(ctx))

	done, err := d.FindJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, database.JobCompleted, done.Status)

	var summary struct {
		CommitID     string           `json:"commit_id"`
		RowsImported int64            `json:"rows_imported"`
		Tables       map[string]int64 `json:"tables"`
		FileType     string           `json:"file_type"`
	}
	require.NoError(t, json.Unmarshal(done.OutputSummary, &summary))
	assert.Len(t, summary.CommitID, 64)
	assert.Equal(t, int64(2), summary.RowsImported)
	assert.Equal(t, map[string]int64{"primary": 2}, summary.Tables)
	assert.Equal(t, "csv", summary.FileType)

	ref, err := d.FindRef(ctx, ds.ID, database.DefaultRef)
	require.NoError(t, err)
	assert.Equal(t, summary.CommitID, ref.CommitID)

	// the spool is cleaned up after the run
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestWorkerRecordsFailure(t *testing.T) {
	ctx := context.Background()
	d := database.NewMemDB()
	ds, err := d.NewDataset(ctx, &database.Dataset{Name: "fixture", CreatedBy: 1})
	require.NoError(t, err)

	path, _ := spoolFile(t, "notes.txt", "not tabular")
	j := enqueueImport(t, d, &ImportParams{
		DatasetID:     ds.ID,
		TargetRef:     database.DefaultRef,
		TempFilePath:  path,
		Filename:      "notes.txt",
		CommitMessage: "m",
	})

	w := NewWorker(d, time.Minute)
	w.Register(database.RunImport, NewImporter(d).Execute)
	require.NoError(t, w.drain(ctx))

	done, err := d.FindJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, database.JobFailed, done.Status)
	assert.Contains(t, done.ErrorMessage, "unsupported")

	ref, err := d.FindRef(ctx, ds.ID, database.DefaultRef)
	require.NoError(t, err)
	assert.Empty(t, ref.CommitID)
}

func TestImporterChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	d := database.NewMemDB()
	ds, err := d.NewDataset(ctx, &database.Dataset{Name: "fixture", CreatedBy: 1})
	require.NoError(t, err)

	path, _ := spoolFile(t, "a.csv", "k\n1\n")
	j := enqueueImport(t, d, &ImportParams{
		DatasetID:     ds.ID,
		TargetRef:     database.DefaultRef,
		TempFilePath:  path,
		Filename:      "a.csv",
		CommitMessage: "m",
		SpoolChecksum: "deadbeef",
	})
	_, err = NewImporter(d).Execute(ctx, j)
	assert.True(t, IsErrSpoolCorrupt(err))
	// a corrupt spool is still removed
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestImporterSizeMismatch(t *testing.T) {
	ctx := context.Background()
	path, checksum := spoolFile(t, "a.csv", "k\n1\n")
	j := &database.Job{ID: "j1"}
	raw, err := json.Marshal(&ImportParams{
		DatasetID:     1,
		TargetRef:     database.DefaultRef,
		TempFilePath:  path,
		Filename:      "a.csv",
		CommitMessage: "m",
		FileSize:      999,
		SpoolChecksum: checksum,
	})
	require.NoError(t, err)
	j.RunParameters = raw
	_, err = NewImporter(database.NewMemDB()).Execute(ctx, j)
	assert.True(t, IsErrSpoolCorrupt(err))
}

func TestWorkerFailsOrphansOnStartup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := database.NewMemDB()
	ds, err := d.NewDataset(ctx, &database.Dataset{Name: "fixture", CreatedBy: 1})
	require.NoError(t, err)
	path, checksum := spoolFile(t, "orphan.csv", "k\n1\n")
	j := enqueueImport(t, d, &ImportParams{
		DatasetID:     ds.ID,
		TargetRef:     database.DefaultRef,
		TempFilePath:  path,
		Filename:      "orphan.csv",
		CommitMessage: "m",
		SpoolChecksum: checksum,
	})
	_, err = d.AcquireNextPending(ctx, database.RunImport)
	require.NoError(t, err)

	w := NewWorker(d, 10*time.Millisecond)
	cancel()
	err = w.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	orphan, err := d.FindJob(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, database.JobFailed, orphan.Status)
	assert.Contains(t, orphan.ErrorMessage, "restarted")

	// the crashed run's spool is released during fix-up
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestWorkerReimportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	d := database.NewMemDB()
	ds, err := d.NewDataset(ctx, &database.Dataset{Name: "fixture", CreatedBy: 1})
	require.NoError(t, err)

	w := NewWorker(d, time.Minute)
	w.Register(database.RunImport, NewImporter(d).Execute)

	content := "k,v\na,1\n"
	for i := 0; i < 2; i++ {
		path, checksum := spoolFile(t, "kv.csv", content)
		enqueueImport(t, d, &ImportParams{
			DatasetID:     ds.ID,
			TargetRef:     database.DefaultRef,
			TempFilePath:  path,
			Filename:      "kv.csv",
			CommitMessage: "same import",
			SpoolChecksum: checksum,
		})
		require.NoError(t, w.drain(ctx))
	}

	// identical content stores one row blob; the second run chains a commit
	// whose manifest matches the first
	assert.Equal(t, 1, d.RowCount())
	jobs, err := d.ListJobs(ctx, ds.ID, database.JobCompleted, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}
