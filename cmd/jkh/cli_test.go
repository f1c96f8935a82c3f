package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alfredjeanlab/jkh/internal/config"
	"github.com/alfredjeanlab/jkh/internal/metrics"
	"github.com/alfredjeanlab/jkh/internal/model"
	"github.com/alfredjeanlab/jkh/internal/server"
	"github.com/alfredjeanlab/jkh/internal/store/sqlite"
	"github.com/alfredjeanlab/jkh/internal/ui"
)

// runCLI executes rootCmd with args and stdin, returning stdout and stderr.
// Flag-bound globals are reset first since rootCmd is shared between runs.
func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	rootFlag, jsonOutput, noColor = "", false, false
	serverURL, kvOwner, backupOutput, configFormat = "", "", "", "json"
	ui.ForceNoColor()

	var out, errOut bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

// newTestAPI serves the KV API over a SQLite store in a temp dir.
func newTestAPI(t *testing.T) string {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	kv := server.NewKVServer(st, nil, metrics.New("test"), server.ResolveAssets("index.html", nil), server.Info{
		AppName:  "JKH Desktop",
		Host:     "127.0.0.1",
		Port:     8765,
		WebIndex: "index.html",
		Root:     t.TempDir(),
		Threads:  4,
	})
	srv := httptest.NewServer(kv.NewHTTPHandler())
	t.Cleanup(srv.Close)
	return srv.URL
}

// newTestRoot returns an installation root with the standard layout.
func newTestRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := config.EnsureLayout(root); err != nil {
		t.Fatalf("EnsureLayout: %v", err)
	}
	return root
}

func seedRoot(t *testing.T, root string, recs ...*model.Record) {
	t.Helper()
	st, err := sqlite.New(filepath.Join(root, config.DefaultDatabasePath))
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	defer st.Close()
	for _, rec := range recs {
		if err := st.Set(context.Background(), rec); err != nil {
			t.Fatalf("Set(%s/%s): %v", rec.Owner, rec.Key, err)
		}
	}
}

func TestKVCommands(t *testing.T) {
	url := newTestAPI(t)

	for _, tc := range []struct {
		name    string
		stdin   string
		args    []string
		want    string
		wantErr string
	}{
		{name: "SetArg", args: []string{"kv", "set", "theme", "dark"}, want: "set theme (4 B)"},
		{name: "SetStdin", stdin: "line one\nline two\n", args: []string{"kv", "set", "notes", "-"}, want: "set notes (18 B)"},
		{name: "GetArg", args: []string{"kv", "get", "theme"}, want: "dark\n"},
		{name: "GetStdinValue", args: []string{"kv", "get", "notes"}, want: "line one\nline two\n\n"},
		{name: "GetJSON", args: []string{"kv", "get", "theme", "--json"}, want: `"value": "dark"`},
		{name: "Keys", args: []string{"kv", "keys"}, want: "notes\ntheme\n"},
		{name: "Delete", args: []string{"kv", "delete", "theme"}, want: "deleted theme"},
		{name: "DeleteAbsent", args: []string{"kv", "delete", "theme"}, want: "absent theme"},
		{name: "GetMissing", args: []string{"kv", "get", "theme"}, wantErr: `key "theme" not found for owner "alice"`},
		{name: "BlankKey", args: []string{"kv", "get", " "}, wantErr: model.CodeKeyRequired},
	} {
		t.Run(tc.name, func(t *testing.T) {
			args := append(tc.args, "--owner", "alice", "--url", url)
			out, _, err := runCLI(t, tc.stdin, args...)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("run %v: %v", tc.args, err)
			}
			if !strings.Contains(out, tc.want) {
				t.Fatalf("output = %q, want containing %q", out, tc.want)
			}
		})
	}
}

func TestKVCommands_OwnerRequired(t *testing.T) {
	url := newTestAPI(t)
	if _, _, err := runCLI(t, "", "kv", "keys", "--owner", " ", "--url", url); err == nil ||
		!strings.Contains(err.Error(), model.CodeOwnerRequired) {
		t.Fatalf("err = %v, want %s", err, model.CodeOwnerRequired)
	}
}

func TestHealthAndInitDBCommands(t *testing.T) {
	url := newTestAPI(t)

	out, _, err := runCLI(t, "", "health", "--url", url)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	for _, want := range []string{"Health:      ok", "App:         JKH Desktop", "Store:       ok"} {
		if !strings.Contains(out, want) {
			t.Errorf("health output missing %q:\n%s", want, out)
		}
	}

	out, _, err = runCLI(t, "", "initdb", "--url", url)
	if err != nil {
		t.Fatalf("initdb: %v", err)
	}
	if out != "kv_store ready\n" {
		t.Fatalf("initdb output = %q", out)
	}
}

func TestBackupNowAndRestore(t *testing.T) {
	src := newTestRoot(t)
	seedRoot(t, src,
		&model.Record{Owner: "alice", Key: "a", Value: "1"},
		&model.Record{Owner: "bob", Key: "b", Value: "two"},
	)

	snapshot := filepath.Join(t.TempDir(), "snap.jsonl")
	_, errOut, err := runCLI(t, "", "backup", "now", "-o", snapshot, "--root", src)
	if err != nil {
		t.Fatalf("backup now -o: %v", err)
	}
	if !strings.Contains(errOut, "exported 2 records") {
		t.Fatalf("stderr = %q", errOut)
	}

	out, _, err := runCLI(t, "", "backup", "now", "--root", src)
	if err != nil {
		t.Fatalf("backup now: %v", err)
	}
	if !strings.Contains(out, "snapshot written to 1 destination(s)") {
		t.Fatalf("output = %q", out)
	}
	out, _, err = runCLI(t, "", "backup", "list", "--root", src)
	if err != nil {
		t.Fatalf("backup list: %v", err)
	}
	if !strings.Contains(out, "1 snapshots in") || !strings.Contains(out, "kv-") {
		t.Fatalf("list output = %q", out)
	}

	dst := newTestRoot(t)
	out, _, err = runCLI(t, "", "backup", "restore", snapshot, "--root", dst)
	if err != nil {
		t.Fatalf("backup restore: %v", err)
	}
	if !strings.Contains(out, "restored 2 records") {
		t.Fatalf("restore output = %q", out)
	}

	st, err := sqlite.New(filepath.Join(dst, config.DefaultDatabasePath))
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	defer st.Close()
	rec, err := st.Get(context.Background(), "bob", "b")
	if err != nil {
		t.Fatalf("Get after restore: %v", err)
	}
	if rec.Value != "two" {
		t.Fatalf("restored value = %q, want %q", rec.Value, "two")
	}
}

func TestBackupRestore_BadSnapshot(t *testing.T) {
	root := newTestRoot(t)
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	if err := os.WriteFile(path, []byte("not a snapshot\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := runCLI(t, "", "backup", "restore", path, "--root", root); err == nil {
		t.Fatal("expected restore of a malformed snapshot to fail")
	}
}

func TestConfigCommand(t *testing.T) {
	root := newTestRoot(t)
	if err := os.WriteFile(filepath.Join(root, "config", "app.json"), []byte(`{"port": 9100, "app_name": "Test App"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, "", "config", "--root", root)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("config JSON: %v\n%s", err, out)
	}
	if got["port"] != float64(9100) || got["app_name"] != "Test App" {
		t.Fatalf("config = %v", got)
	}

	out, _, err = runCLI(t, "", "config", "--format", "toml", "--root", root)
	if err != nil {
		t.Fatalf("config --format toml: %v", err)
	}
	for _, want := range []string{`app_name = "Test App"`, "port = 9100", `host = "127.0.0.1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("TOML output missing %q:\n%s", want, out)
		}
	}

	if _, _, err := runCLI(t, "", "config", "--format", "yaml", "--root", root); err == nil {
		t.Fatal("expected unknown format to fail")
	}
}

func TestOpenStore(t *testing.T) {
	root := t.TempDir()

	st, err := openStore(&config.Config{Root: root, DatabasePath: "data/kv.db"})
	if err != nil {
		t.Fatalf("openStore sqlite: %v", err)
	}
	defer st.Close()
	sq, ok := st.(*sqlite.SQLiteStore)
	if !ok {
		t.Fatalf("store type = %T, want *sqlite.SQLiteStore", st)
	}
	if want := filepath.Join(root, "data", "kv.db"); sq.Path() != want {
		t.Fatalf("Path() = %q, want %q", sq.Path(), want)
	}

	// database_url selects PostgreSQL; nothing listens on port 1.
	_, err = openStore(&config.Config{
		Root:        root,
		DatabaseURL: "postgres://jkh@127.0.0.1:1/jkh?sslmode=disable&connect_timeout=1",
	})
	if err == nil || !strings.Contains(err.Error(), "open postgres store") {
		t.Fatalf("err = %v, want postgres open failure", err)
	}
}
