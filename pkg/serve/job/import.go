// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/antgroup/tabula/pkg/serve/database"
	"github.com/antgroup/tabula/pkg/serve/parser"
	"github.com/antgroup/tabula/pkg/serve/repo"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

// ImportParams is the run_parameters payload of an import job, written by the
// upload endpoint and consumed here.
type ImportParams struct {
	DatasetID     int64  `json:"dataset_id"`
	TargetRef     string `json:"target_ref"`
	TempFilePath  string `json:"temp_file_path"`
	Filename      string `json:"filename"`
	CommitMessage string `json:"commit_message"`
	UserID        int64  `json:"user_id"`
	FileSize      int64  `json:"file_size"`
	SpoolChecksum string `json:"spool_checksum"` // BLAKE3 of the spooled bytes
}

type ErrSpoolCorrupt struct {
	Path   string
	Reason string
}

func (err *ErrSpoolCorrupt) Error() string {
	return fmt.Sprintf("spool '%s' corrupt: %s", err.Path, err.Reason)
}

func IsErrSpoolCorrupt(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*ErrSpoolCorrupt)
	return ok
}

// Importer turns one spooled upload into one commit on the target ref.
type Importer struct {
	db database.DB
}

func NewImporter(db database.DB) *Importer {
	return &Importer{db: db}
}

// Execute parses the spool, stages every table through the commit builder,
// and publishes the commit. The temp file is removed on every path.
func (im *Importer) Execute(ctx context.Context, j *database.Job) (json.RawMessage, error) {
	var params ImportParams
	if err := json.Unmarshal(j.RunParameters, &params); err != nil {
		return nil, fmt.Errorf("decode run parameters: %w", err)
	}
	defer func() {
		if err := os.Remove(params.TempFilePath); err != nil && !os.IsNotExist(err) {
			logrus.Warnf("job %s: remove spool '%s': %v", j.ID, params.TempFilePath, err)
		}
	}()
	if err := verifySpool(&params); err != nil {
		return nil, err
	}
	p, err := parser.NewParser(params.Filename)
	if err != nil {
		return nil, err
	}
	data, err := p.Parse(ctx, params.TempFilePath, params.Filename)
	if err != nil {
		return nil, err
	}
	defer data.Close() // nolint:errcheck
	builder := repo.NewBuilder(im.db)
	for _, table := range data.Tables {
		if err := builder.StageTable(ctx, table.Key, table.Rows); err != nil {
			return nil, err
		}
	}
	result, err := builder.Commit(ctx, &repo.CommitOptions{
		DatasetID: params.DatasetID,
		TargetRef: params.TargetRef,
		Message:   params.CommitMessage,
		AuthorID:  params.UserID,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		CommitID     string           `json:"commit_id"`
		RowsImported int64            `json:"rows_imported"`
		Tables       map[string]int64 `json:"tables"`
		FileType     string           `json:"file_type"`
	}{
		CommitID:     result.Commit.ID,
		RowsImported: result.RowsImported,
		Tables:       result.Tables,
		FileType:     data.FileType,
	})
}

// verifySpool re-hashes the spooled file and compares size and BLAKE3 digest
// against what the upload endpoint recorded.
func verifySpool(params *ImportParams) error {
	if len(params.SpoolChecksum) == 0 {
		return nil
	}
	fd, err := os.Open(params.TempFilePath)
	if err != nil {
		return err
	}
	defer fd.Close() // nolint:errcheck
	st, err := fd.Stat()
	if err != nil {
		return err
	}
	if params.FileSize != 0 && st.Size() != params.FileSize {
		return &ErrSpoolCorrupt{
			Path:   params.TempFilePath,
			Reason: fmt.Sprintf("size %d, want %d", st.Size(), params.FileSize),
		}
	}
	h := blake3.New()
	if _, err := io.Copy(h, fd); err != nil {
		return err
	}
	if sum := hex.EncodeToString(h.Sum(nil)); sum != params.SpoolChecksum {
		return &ErrSpoolCorrupt{
			Path:   params.TempFilePath,
			Reason: fmt.Sprintf("checksum %s, want %s", sum, params.SpoolChecksum),
		}
	}
	return nil
}
