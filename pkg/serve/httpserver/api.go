// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/antgroup/tabula/modules/plumbing"
	"github.com/antgroup/tabula/pkg/serve/database"
	"github.com/gorilla/mux"
)

func (s *Server) APIRouter(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/datasets", s.OnFunc(s.NewDataset)).Methods("POST")
	api.HandleFunc("/datasets", s.OnFunc(s.ListDatasets)).Methods("GET")
	api.HandleFunc("/datasets/{dataset:[0-9]+}", s.OnFunc(s.GetDataset)).Methods("GET")
	api.HandleFunc("/datasets/{dataset:[0-9]+}", s.OnFunc(s.DeleteDataset)).Methods("DELETE")
	api.HandleFunc("/datasets/{dataset:[0-9]+}/refs", s.OnFunc(s.ListRefs)).Methods("GET")
	api.HandleFunc("/datasets/{dataset:[0-9]+}/refs", s.OnFunc(s.NewRef)).Methods("POST")
	api.HandleFunc("/datasets/{dataset:[0-9]+}/refs/{refname:.+}", s.OnFunc(s.GetRef)).Methods("GET")
	api.HandleFunc("/datasets/{dataset:[0-9]+}/refs/{refname:.+}", s.OnFunc(s.DeleteRef)).Methods("DELETE")
	api.HandleFunc("/datasets/{dataset:[0-9]+}/import", s.OnFunc(s.NewImport)).Methods("POST")
	api.HandleFunc("/datasets/{dataset:[0-9]+}/jobs", s.OnFunc(s.ListJobs)).Methods("GET")
	api.HandleFunc("/datasets/{dataset:[0-9]+}/commits", s.OnFunc(s.ListCommits)).Methods("GET")
	api.HandleFunc("/datasets/{dataset:[0-9]+}/overview", s.OnFunc(s.Overview)).Methods("GET")
	api.HandleFunc("/jobs/{job}", s.OnFunc(s.GetJob)).Methods("GET")
	api.HandleFunc("/commits/{commit:[0-9a-f]{64}}", s.OnFunc(s.GetCommit)).Methods("GET")
	api.HandleFunc("/commits/{commit:[0-9a-f]{64}}/tables", s.OnFunc(s.ListTables)).Methods("GET")
	api.HandleFunc("/commits/{commit:[0-9a-f]{64}}/tables/{table}/rows", s.OnFunc(s.GetTableRows)).Methods("GET")
	api.HandleFunc("/commits/{commit:[0-9a-f]{64}}/tables/{table}/schema", s.OnFunc(s.GetTableSchema)).Methods("GET")
}

type NewDatasetRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

func (s *Server) NewDataset(w http.ResponseWriter, r *Request) {
	var nd NewDatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&nd); err != nil {
		renderFailureFormat(w, r.Request, http.StatusBadRequest, "input body error: %v", err)
		return
	}
	ds, err := s.db.NewDataset(r.Context(), &database.Dataset{
		Name:        nd.Name,
		Description: nd.Description,
		Tags:        nd.Tags,
		CreatedBy:   r.UID,
	})
	if err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	JsonEncode(w, ds)
}

func (s *Server) ListDatasets(w http.ResponseWriter, r *Request) {
	dss, err := s.db.ListDatasets(r.Context())
	if err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	JsonEncode(w, dss)
}

func (s *Server) GetDataset(w http.ResponseWriter, r *Request) {
	id, _ := datasetID(r)
	ds, err := s.db.FindDataset(r.Context(), id)
	if err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	JsonEncode(w, ds)
}

func (s *Server) DeleteDataset(w http.ResponseWriter, r *Request) {
	id, _ := datasetID(r)
	if err := s.db.RemoveDataset(r.Context(), id); err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ListRefs(w http.ResponseWriter, r *Request) {
	id, _ := datasetID(r)
	refs, err := s.db.ListRefs(r.Context(), id)
	if err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	JsonEncode(w, refs)
}

type NewRefRequest struct {
	Name     string `json:"name"`
	CommitID string `json:"commit_id,omitempty"`
}

func (s *Server) NewRef(w http.ResponseWriter, r *Request) {
	id, _ := datasetID(r)
	var nr NewRefRequest
	if err := json.NewDecoder(r.Body).Decode(&nr); err != nil {
		renderFailureFormat(w, r.Request, http.StatusBadRequest, "input body error: %v", err)
		return
	}
	if len(nr.CommitID) != 0 {
		// a ref may only be born on an existing commit of this dataset
		c, err := s.reader.Commit(r.Context(), nr.CommitID)
		if err != nil {
			s.renderError(w, r.Request, err)
			return
		}
		if c.DatasetID != id {
			renderFailureFormat(w, r.Request, http.StatusNotFound, "commit '%s' not found", nr.CommitID)
			return
		}
	}
	ref, err := s.db.NewRef(r.Context(), id, nr.Name, nr.CommitID)
	if err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	JsonEncode(w, ref)
}

func (s *Server) GetRef(w http.ResponseWriter, r *Request) {
	id, _ := datasetID(r)
	ref, err := s.db.FindRef(r.Context(), id, mux.Vars(r.Request)["refname"])
	if err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	JsonEncode(w, ref)
}

func (s *Server) DeleteRef(w http.ResponseWriter, r *Request) {
	id, _ := datasetID(r)
	if _, err := s.db.RemoveRef(r.Context(), id, mux.Vars(r.Request)["refname"]); err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) GetJob(w http.ResponseWriter, r *Request) {
	j, err := s.db.FindJob(r.Context(), mux.Vars(r.Request)["job"])
	if err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	JsonEncode(w, j)
}

func (s *Server) ListJobs(w http.ResponseWriter, r *Request) {
	id, _ := datasetID(r)
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		renderFailureFormat(w, r.Request, http.StatusBadRequest, "bad limit: %v", err)
		return
	}
	jobs, err := s.db.ListJobs(r.Context(), id, database.JobStatus(r.URL.Query().Get("status")), int(limit))
	if err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	JsonEncode(w, jobs)
}

// ListCommits walks history from an explicit commit (?from=) or from a ref
// head (?ref=, defaulting to the default branch).
func (s *Server) ListCommits(w http.ResponseWriter, r *Request) {
	id, _ := datasetID(r)
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		renderFailureFormat(w, r.Request, http.StatusBadRequest, "bad limit: %v", err)
		return
	}
	from := r.URL.Query().Get("from")
	if len(from) == 0 {
		name := r.URL.Query().Get("ref")
		if len(name) == 0 {
			name = database.DefaultRef
		}
		ref, err := s.db.FindRef(r.Context(), id, name)
		if err != nil {
			s.renderError(w, r.Request, err)
			return
		}
		from = ref.CommitID
	} else if !plumbing.ValidateHashHex(from) {
		renderFailureFormat(w, r.Request, http.StatusBadRequest, "bad commit id '%s'", from)
		return
	}
	commits, err := s.db.ListCommits(r.Context(), id, from, int(limit))
	if err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	JsonEncode(w, commits)
}

type CheckoutResponse struct {
	Commit *database.Commit           `json:"commit"`
	Schema *database.SchemaDefinition `json:"schema"`
	Tables []string                   `json:"tables"`
}

// GetCommit is checkout: the commit, its schema, and its table keys in one
// response.
func (s *Server) GetCommit(w http.ResponseWriter, r *Request) {
	commitID := mux.Vars(r.Request)["commit"]
	c, err := s.reader.Commit(r.Context(), commitID)
	if err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	schema, err := s.reader.Schema(r.Context(), commitID)
	if err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	tables, err := s.reader.ListTables(r.Context(), commitID)
	if err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	JsonEncode(w, &CheckoutResponse{Commit: c, Schema: schema, Tables: tables})
}

func (s *Server) ListTables(w http.ResponseWriter, r *Request) {
	tables, err := s.reader.ListTables(r.Context(), mux.Vars(r.Request)["commit"])
	if err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	JsonEncode(w, tables)
}

type TableRowsResponse struct {
	Rows   []map[string]any `json:"rows"`
	Offset int64            `json:"offset"`
	Limit  int64            `json:"limit"`
	Total  int64            `json:"total"`
}

func (s *Server) GetTableRows(w http.ResponseWriter, r *Request) {
	mv := mux.Vars(r.Request)
	commitID, tableKey := mv["commit"], mv["table"]
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		renderFailureFormat(w, r.Request, http.StatusBadRequest, "bad offset: %v", err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		renderFailureFormat(w, r.Request, http.StatusBadRequest, "bad limit: %v", err)
		return
	}
	rows, err := s.reader.TableData(r.Context(), commitID, tableKey, offset, limit)
	if err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	total, err := s.reader.CountRows(r.Context(), commitID, tableKey)
	if err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	if limit == 0 {
		limit = int64(len(rows))
	}
	JsonEncode(w, &TableRowsResponse{Rows: rows, Offset: offset, Limit: limit, Total: total})
}

func (s *Server) GetTableSchema(w http.ResponseWriter, r *Request) {
	mv := mux.Vars(r.Request)
	ts, err := s.reader.TableSchema(r.Context(), mv["commit"], mv["table"])
	if err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	JsonEncode(w, ts)
}

type RefOverview struct {
	Ref      *database.Ref                      `json:"ref"`
	CommitID string                             `json:"commit_id,omitempty"`
	Tables   map[string]*database.TableMetadata `json:"tables,omitempty"`
}

// Overview reports every ref head of the dataset with per-table row and
// column counts, resolved in one batched metadata query.
func (s *Server) Overview(w http.ResponseWriter, r *Request) {
	id, _ := datasetID(r)
	if _, err := s.db.FindDataset(r.Context(), id); err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	refs, err := s.db.ListRefs(r.Context(), id)
	if err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	heads := make([]string, 0, len(refs))
	for _, ref := range refs {
		if len(ref.CommitID) != 0 {
			heads = append(heads, ref.CommitID)
		}
	}
	meta, err := s.reader.Overview(r.Context(), heads)
	if err != nil {
		s.renderError(w, r.Request, err)
		return
	}
	overview := make([]*RefOverview, 0, len(refs))
	for _, ref := range refs {
		overview = append(overview, &RefOverview{Ref: ref, CommitID: ref.CommitID, Tables: meta[ref.CommitID]})
	}
	JsonEncode(w, overview)
}
