// Package client talks to a running jkh server over its HTTP/JSON API.
package client

import (
	"context"
	"errors"
	"net/http"
)

// KVClient is the operation set exposed to the CLI.
type KVClient interface {
	ListKeys(ctx context.Context, owner string) ([]string, error)
	Get(ctx context.Context, owner, key string) (string, error)
	Set(ctx context.Context, owner, key, value string) error
	Delete(ctx context.Context, owner, key string) (bool, error)

	Health(ctx context.Context) (*HealthReport, error)
	Config(ctx context.Context) (*AppConfig, error)
	InitDB(ctx context.Context) (string, error)
	Probe(ctx context.Context, path string) error

	Close() error
}

var _ KVClient = (*HTTPClient)(nil)

// HealthReport mirrors the /api/health response.
type HealthReport struct {
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

// AppConfig mirrors the /api/config response.
type AppConfig struct {
	AppName  string `json:"app_name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	WebIndex string `json:"web_index"`
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
