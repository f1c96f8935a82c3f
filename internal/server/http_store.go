package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/alfredjeanlab/jkh/internal/events"
	"github.com/alfredjeanlab/jkh/internal/model"
)

// handleListKeys handles GET /api/store_keys?owner=.
func (s *KVServer) handleListKeys(w http.ResponseWriter, r *http.Request) {
	owner, err := model.ValidateOwner(r.URL.Query().Get("owner"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	keys, err := s.store.ListKeys(r.Context(), owner)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "keys": keys})
}

// handleGet handles GET /api/store?owner=&key=.
func (s *KVServer) handleGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	owner, key, err := model.ValidateRef(q.Get("owner"), q.Get("key"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	rec, err := s.store.Get(r.Context(), owner, key)
	if err != nil {
		if isNotFound(err) {
			writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": model.CodeNotFound, "value": nil})
			return
		}
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "value": rec.Value})
}

// handleSet handles POST /api/store with body {owner, key, value}.
func (s *KVServer) handleSet(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	owner, key, err := model.ValidateRef(body.str("owner"), body.str("key"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	value, err := body.value()
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	rec := &model.Record{Owner: owner, Key: key, Value: value}
	if err := s.store.Set(r.Context(), rec); err != nil {
		writeStoreError(w, r, err)
		return
	}

	s.publish(r.Context(), events.TopicRecordSet, events.RecordSet{Record: rec})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleDelete handles DELETE /api/store with body {owner, key}. Query
// parameters are accepted for clients that cannot send a DELETE body.
func (s *KVServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	q := r.URL.Query()
	owner, key := body.str("owner"), body.str("key")
	if owner == "" {
		owner = q.Get("owner")
	}
	if key == "" {
		key = q.Get("key")
	}
	owner, key, err = model.ValidateRef(owner, key)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	deleted, err := s.store.Delete(r.Context(), owner, key)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	if deleted {
		s.publish(r.Context(), events.TopicRecordDeleted, events.RecordDeleted{
			Owner:     owner,
			Key:       key,
			DeletedAt: time.Now().UTC(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted": deleted})
}

// requestBody keeps raw fields so absent, null and non-string values can be
// told apart.
type requestBody map[string]json.RawMessage

// readBody decodes a JSON object body. A body that is empty, malformed or
// not an object decodes as {}; only an oversized body is an error.
func readBody(r *http.Request) (requestBody, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return requestBody{}, nil
	}
	var body requestBody
	if err := json.Unmarshal(data, &body); err != nil || body == nil {
		return requestBody{}, nil
	}
	return body, nil
}

// str returns the field as a string, or "" when absent, null or not a string.
func (b requestBody) str(field string) string {
	raw, ok := b[field]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// value extracts the "value" field. Absent and null are both value_required.
func (b requestBody) value() (string, error) {
	raw, ok := b["value"]
	if !ok || string(raw) == "null" {
		return "", &model.InputError{Code: model.CodeValueRequired}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &model.InputError{Code: model.CodeValueMustBeString}
	}
	return s, nil
}
