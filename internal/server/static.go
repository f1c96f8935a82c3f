package server

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Candidate inspects one possible web root and reports whether it qualifies.
type Candidate func(index string) (dir string, ok bool)

// WithIndex qualifies dir when it contains the entry-point file.
func WithIndex(dir string) Candidate {
	return func(index string) (string, bool) {
		if dir == "" {
			return "", false
		}
		info, err := os.Stat(filepath.Join(dir, index))
		return dir, err == nil && !info.IsDir()
	}
}

// Existing qualifies dir when it is a directory, index or not.
func Existing(dir string) Candidate {
	return func(string) (string, bool) {
		if dir == "" {
			return "", false
		}
		info, err := os.Stat(dir)
		return dir, err == nil && info.IsDir()
	}
}

// WebDirs lists the web roots in priority order: next to the installation
// root, inside the packaging-runtime bundle, then "web" in the working dir.
func WebDirs(root, bundleDir string) []string {
	dirs := []string{filepath.Join(root, "web")}
	if bundleDir != "" {
		dirs = append(dirs, filepath.Join(bundleDir, "web"))
	}
	return append(dirs, "web")
}

// Assets serves the prebuilt frontend from a resolved directory.
type Assets struct {
	dir   string
	index string
}

// ResolveAssets picks the first directory holding index, else the first
// existing directory, else the first entry of dirs so a missing bundle
// still reports a meaningful path.
func ResolveAssets(index string, dirs []string) *Assets {
	var candidates []Candidate
	for _, d := range dirs {
		candidates = append(candidates, WithIndex(d))
	}
	for _, d := range dirs {
		candidates = append(candidates, Existing(d))
	}

	a := &Assets{index: index}
	for _, c := range candidates {
		if dir, ok := c(index); ok {
			a.dir = dir
			break
		}
	}
	if a.dir == "" && len(dirs) > 0 {
		a.dir = dirs[0]
	}
	if abs, err := filepath.Abs(a.dir); err == nil {
		a.dir = abs
	}
	return a
}

// Dir returns the resolved web root.
func (a *Assets) Dir() string { return a.dir }

// IndexExists reports whether the entry-point file is present right now.
func (a *Assets) IndexExists() bool {
	info, err := os.Stat(filepath.Join(a.dir, a.index))
	return err == nil && !info.IsDir()
}

// ServeHTTP serves the entry point for "/" and for directories, and any
// other existing file under the root verbatim. Everything else, including
// paths that would escape the root, is a plain 404.
func (a *Assets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	full, ok := a.resolve(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	info, err := os.Stat(full)
	if err == nil && info.IsDir() {
		full = filepath.Join(full, a.index)
		info, err = os.Stat(full)
	}
	if err != nil || info.IsDir() {
		if r.URL.Path == "/" {
			http.Error(w, "web_index not found", http.StatusNotFound)
			return
		}
		http.NotFound(w, r)
		return
	}

	f, err := os.Open(full)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// resolve maps a URL path onto a file path inside the root.
func (a *Assets) resolve(urlPath string) (string, bool) {
	if strings.Contains(urlPath, "\x00") || strings.Contains(urlPath, "\\") {
		return "", false
	}
	for _, seg := range strings.Split(urlPath, "/") {
		if seg == ".." {
			return "", false
		}
	}
	clean := path.Clean("/" + urlPath)
	full := filepath.Join(a.dir, filepath.FromSlash(clean))

	rel, err := filepath.Rel(a.dir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}
