package template

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
)

// Registry holds the loaded template set. Reload replaces the whole set
// atomically; concurrent readers always see either the old or the new set,
// never a partial one.
type Registry struct {
	dir       string
	logger    *slog.Logger
	templates atomic.Pointer[[]*Template]
}

// NewRegistry loads all template definitions from dir. A directory with no
// valid templates is allowed; matching then always falls back to generic
// extraction.
func NewRegistry(dir string, logger *slog.Logger) (*Registry, error) {
	r := &Registry{dir: dir, logger: logger}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Templates returns the current immutable template set, sorted by name.
func (r *Registry) Templates() []*Template {
	p := r.templates.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Reload re-reads every definition file and swaps the set in one step.
// A file that fails to parse is skipped with a warning; the reload itself
// only fails when the directory cannot be read.
func (r *Registry) Reload() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("template: read dir %s: %w", r.dir, err)
	}

	var loaded []*Template
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(r.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			r.logger.Warn("template definition unreadable, skipping", "path", path, "error", err)
			continue
		}
		t, err := Parse(data)
		if err != nil {
			r.logger.Warn("template definition invalid, skipping", "path", path, "error", err)
			continue
		}
		loaded = append(loaded, t)
	}

	sort.Slice(loaded, func(i, j int) bool { return loaded[i].Name < loaded[j].Name })
	r.templates.Store(&loaded)
	r.logger.Info("template registry loaded", "dir", r.dir, "templates", len(loaded))
	return nil
}
