package opsapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// newAdminMux builds a small read-only router mounted under /admin-console
// by the gin engine (via gin.WrapH). It exists alongside the gin-routed
// /admin API so a plain curl against a path-parameterized URL works without
// a JSON body.
func newAdminMux(s *Server) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/admin-console/executions/{id}/progress", func(w http.ResponseWriter, req *http.Request) {
		id := mux.Vars(req)["id"]
		record, found := s.progress.GetProgress(id)
		w.Header().Set("Content-Type", "application/json")
		if !found {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "no progress record for execution id"})
			return
		}
		json.NewEncoder(w).Encode(record)
	}).Methods(http.MethodGet)

	return r
}
