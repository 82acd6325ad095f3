package lora

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Registry indexes the LoRA files under a models directory.  Paths handed
// out are relative to the root, with forward slashes, which is the form
// loader nodes expect.
type Registry struct {
	root string

	mu    sync.RWMutex
	files []string
}

func NewRegistry(root string) *Registry {
	return &Registry{root: root}
}

// Refresh rescans the directory tree.  Unreadable subdirectories are
// skipped, not fatal.
func (r *Registry) Refresh() error {
	var files []string
	err := filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("skipping unreadable path during lora scan", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, known := range Extensions {
			if ext == known {
				rel, relErr := filepath.Rel(r.root, path)
				if relErr != nil {
					return relErr
				}
				files = append(files, filepath.ToSlash(rel))
				break
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(files)

	r.mu.Lock()
	r.files = files
	r.mu.Unlock()
	slog.Debug("lora registry refreshed", "root", r.root, "count", len(files))
	return nil
}

// Files returns the indexed relative paths.
func (r *Registry) Files() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.files))
	copy(out, r.files)
	return out
}

// Resolve maps a bare LoRA name to a registry path, trying a
// case-insensitive exact match on the stripped basename before falling back
// to fuzzy matching.
func (r *Registry) Resolve(name string) (string, bool) {
	files := r.Files()
	lower := strings.ToLower(name)
	for _, f := range files {
		if strings.ToLower(StripExtension(BaseName(f))) == lower {
			return f, true
		}
	}
	return FuzzyMatch(name, files)
}

// ResolvePath maps a stack entry's path, which may have been recorded on
// another machine, to a local registry path.  The exact relative path wins;
// otherwise resolution falls back to the basename.
func (r *Registry) ResolvePath(path string) (string, bool) {
	files := r.Files()
	for _, f := range files {
		if f == path {
			return f, true
		}
	}
	return r.Resolve(StripExtension(BaseName(path)))
}
