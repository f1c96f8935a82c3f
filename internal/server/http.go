package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/alfredjeanlab/jkh/internal/model"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 8 << 20

// streamPath is exempt from the handler concurrency limit.
const streamPath = "/api/store/stream"

// NewHTTPHandler returns an http.Handler with all routes registered.
func (s *KVServer) NewHTTPHandler() http.Handler {
	routes := []struct {
		method, path string
		handler      http.Handler
	}{
		{"GET", "/health", http.HandlerFunc(s.handleHealth)},
		{"GET", "/api/health", http.HandlerFunc(s.handleAPIHealth)},
		{"GET", "/api/config", http.HandlerFunc(s.handleConfig)},
		{"POST", "/api/admin/initdb", http.HandlerFunc(s.handleInitDB)},
		{"GET", "/api/store_keys", http.HandlerFunc(s.handleListKeys)},
		{"GET", "/api/store", http.HandlerFunc(s.handleGet)},
		{"POST", "/api/store", http.HandlerFunc(s.handleSet)},
		{"DELETE", "/api/store", http.HandlerFunc(s.handleDelete)},
		{"GET", streamPath, http.HandlerFunc(s.handleStream)},
		{"GET", "/metrics", s.metrics.Handler()},
	}

	mux := http.NewServeMux()
	allowed := make(map[string][]string)
	for _, rt := range routes {
		mux.Handle(rt.method+" "+rt.path, rt.handler)
		allowed[rt.path] = append(allowed[rt.path], rt.method)
	}
	mux.Handle("GET /", s.assets)
	mux.Handle("/", unmatchedMethod(allowed))

	var h http.Handler = mux
	h = LimitConcurrency(s.info.Threads, streamPath, h)
	h = LimitBody(maxBodyBytes, h)
	h = Recover(h)
	h = Observe(s.metrics, h)
	return h
}

// unmatchedMethod answers requests whose method has no route. Known API
// paths get 405 with an Allow header; every other path is not found, like
// the static handler.
func unmatchedMethod(allowed map[string][]string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods, ok := allowed[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		allow := slices.Clone(methods)
		if slices.Contains(allow, http.MethodGet) {
			allow = append(allow, http.MethodHead)
		}
		w.Header().Set("Allow", strings.Join(allow, ", "))
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes the {ok:false,error:code} envelope.
func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": code})
}

// writeStoreError maps an error from input validation or the store onto
// the response envelope. Anything unrecognised is a logged 500.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var inputErr *model.InputError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &inputErr):
		writeError(w, http.StatusBadRequest, inputErr.Code)
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, model.CodePayloadTooLarge)
	case isNotFound(err):
		writeError(w, http.StatusNotFound, model.CodeNotFound)
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestIDFrom(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, model.CodeInternal)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
