package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// healthPingTimeout bounds the store ping made by /api/health.
const healthPingTimeout = 2 * time.Second

// handleHealth handles GET /health. It reports liveness only.
func (s *KVServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// healthReport is the extended diagnostic object served on /api/health.
type healthReport struct {
	Status        string  `json:"status"`
	App           string  `json:"app"`
	Port          int     `json:"port"`
	Root          string  `json:"root"`
	WebDir        string  `json:"web_dir"`
	IndexExists   bool    `json:"index_exists"`
	Packaged      bool    `json:"packaged"`
	BundleDir     *string `json:"bundle_dir"`
	Store         string  `json:"store"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	RSSBytes      uint64  `json:"rss_bytes"`
}

// handleAPIHealth handles GET /api/health. A failing store ping turns the
// report to "degraded" and the status code to 503.
func (s *KVServer) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	report := healthReport{
		Status:   "ok",
		App:      s.info.AppName,
		Port:     s.info.Port,
		Root:     s.info.Root,
		Packaged: s.info.BundleDir != "",
		Store:    "ok",
	}
	if s.info.BundleDir != "" {
		dir := s.info.BundleDir
		report.BundleDir = &dir
	}
	if s.assets != nil {
		report.WebDir = s.assets.Dir()
		report.IndexExists = s.assets.IndexExists()
	}

	stats := sampleProcess(ctx, s.startedAt)
	report.UptimeSeconds = stats.Uptime.Seconds()
	report.RSSBytes = stats.RSS

	code := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		slog.Warn("health: store ping failed", "error", err)
		report.Status = "degraded"
		report.Store = "error"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}

// handleConfig handles GET /api/config.
func (s *KVServer) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"app_name":  s.info.AppName,
		"host":      s.info.Host,
		"port":      s.info.Port,
		"web_index": s.info.WebIndex,
	})
}

// handleInitDB handles POST /api/admin/initdb.
func (s *KVServer) handleInitDB(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Init(r.Context()); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "kv_store ready"})
}
