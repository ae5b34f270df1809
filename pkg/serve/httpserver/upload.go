// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package httpserver

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/antgroup/tabula/modules/strengthen"
	"github.com/antgroup/tabula/pkg/serve/database"
	"github.com/antgroup/tabula/pkg/serve/job"
	"github.com/antgroup/tabula/pkg/serve/parser"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

const (
	spoolChunkSize = 1 << 20
	maxFieldSize   = 4 << 10
)

type ErrFileTooLarge struct {
	Limit int64
}

func (err *ErrFileTooLarge) Error() string {
	return fmt.Sprintf("upload exceeds the limit of %s", strengthen.FormatSize(err.Limit))
}

func IsErrFileTooLarge(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*ErrFileTooLarge)
	return ok
}

type spool struct {
	path     string
	filename string
	size     int64
	checksum string
}

// spoolUpload streams the file part to disk in bounded chunks, hashing as it
// goes. The size limit is enforced incrementally so an oversized upload is
// rejected without ever being fully received.
func (s *Server) spoolUpload(part *multipart.Part) (*spool, error) {
	fd, err := os.CreateTemp(s.SpoolDir, "tabula-upload-*")
	if err != nil {
		return nil, err
	}
	defer fd.Close() // nolint:errcheck
	h := blake3.New()
	buf := make([]byte, spoolChunkSize)
	var size int64
	for {
		n, rerr := part.Read(buf)
		if n > 0 {
			if size += int64(n); size > s.MaxUploadSize.Bytes {
				_ = os.Remove(fd.Name())
				return nil, &ErrFileTooLarge{Limit: s.MaxUploadSize.Bytes}
			}
			if _, werr := fd.Write(buf[:n]); werr != nil {
				_ = os.Remove(fd.Name())
				return nil, werr
			}
			_, _ = h.Write(buf[:n])
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			_ = os.Remove(fd.Name())
			return nil, rerr
		}
	}
	return &spool{
		path:     fd.Name(),
		filename: part.FileName(),
		size:     size,
		checksum: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// NewImport accepts a multipart upload (fields: ref, message; file part:
// file), spools the bytes to disk, and enqueues an import job. The response
// is 202 with the job; the commit happens asynchronously.
func (s *Server) NewImport(w http.ResponseWriter, r *Request) {
	id, _ := datasetID(r)
	if _, err := s.db.FindDataset(r.Context(), id); err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	mr, err := r.MultipartReader()
	if err != nil {
		renderFailureFormat(w, r.Request, http.StatusBadRequest, "multipart body required: %v", err)
		return
	}
	targetRef := database.DefaultRef
	var message string
	var sp *spool
	defer func() {
		// spool removal on every non-enqueued path
		if sp != nil {
			_ = os.Remove(sp.path)
		}
	}()
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			renderFailureFormat(w, r.Request, http.StatusBadRequest, "read multipart: %v", err)
			return
		}
		switch part.FormName() {
		case "ref":
			v, err := io.ReadAll(io.LimitReader(part, maxFieldSize))
			if err != nil {
				renderFailureFormat(w, r.Request, http.StatusBadRequest, "read field 'ref': %v", err)
				return
			}
			targetRef = string(v)
		case "message":
			v, err := io.ReadAll(io.LimitReader(part, maxFieldSize))
			if err != nil {
				renderFailureFormat(w, r.Request, http.StatusBadRequest, "read field 'message': %v", err)
				return
			}
			message = string(v)
		case "file":
			if sp != nil {
				renderFailure(w, r.Request, http.StatusBadRequest, "multiple file parts")
				return
			}
			if sp, err = s.spoolUpload(part); err != nil {
				s.renderError(w, r.Request, err)
				return
			}
		}
		_ = part.Close()
	}
	if sp == nil {
		renderFailure(w, r.Request, http.StatusBadRequest, "missing file part")
		return
	}
	if len(message) == 0 {
		renderFailure(w, r.Request, http.StatusBadRequest, "commit message is empty")
		return
	}
	// fail fast on formats the worker could never parse
	if _, err := parser.NewParser(sp.filename); err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	if _, err := s.db.FindRef(r.Context(), id, targetRef); err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	params, err := json.Marshal(&job.ImportParams{
		DatasetID:     id,
		TargetRef:     targetRef,
		TempFilePath:  sp.path,
		Filename:      sp.filename,
		CommitMessage: message,
		UserID:        r.UID,
		FileSize:      sp.size,
		SpoolChecksum: sp.checksum,
	})
	if err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	j, err := s.db.NewJob(r.Context(), &database.Job{
		RunType:       database.RunImport,
		DatasetID:     id,
		UserID:        r.UID,
		RunParameters: params,
	})
	if err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	logrus.Infof("import job %s enqueued, dataset: %d ref: %s file: %s (%s)", j.ID, id, targetRef, sp.filename, strengthen.FormatSize(sp.size))
	sp = nil // ownership moved to the worker
	JsonEncodeStatus(w, http.StatusAccepted, j)
}
