// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package httpserver

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

type Request struct {
	*http.Request
	UID int64 // authenticated principal, 0 when auth is disabled
}

// datasetID pulls the {dataset} path variable; gorilla guarantees the digit
// pattern so a parse failure here is a routing bug.
func datasetID(r *Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r.Request)["dataset"], 10, 64)
	return id, err == nil
}

func queryInt(r *Request, key string, fallback int64) (int64, error) {
	raw := r.URL.Query().Get(key)
	if len(raw) == 0 {
		return fallback, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
