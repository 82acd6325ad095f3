// Package library persists named prompt presets grouped into categories.
// Two stores share one file layout: Store keeps plain text prompts, and
// AdvancedStore keeps prompts with LoRA stacks, trigger words and
// thumbnails.  Files are sorted case-insensitively so diffs stay stable
// across edits from the UI.
package library

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Store is the plain prompt library: category -> prompt name -> text.
type Store struct {
	path string

	mu   sync.Mutex
	data map[string]map[string]string
}

// DefaultPrompts seeds a fresh library so the picker is never empty.
var DefaultPrompts = map[string]map[string]string{
	"Character": {
		"Fantasy Warrior": "a fantasy warrior, detailed armor, epic pose, dramatic lighting",
	},
	"Style": {
		"Cinematic": "cinematic lighting, dramatic atmosphere, film grain, depth of field",
	},
}

// Open loads the library at path, seeding defaults when no usable file
// exists.  A corrupt file is replaced with defaults rather than failing.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	raw, err := os.ReadFile(path)
	if err == nil {
		if jsonErr := json.Unmarshal(raw, &s.data); jsonErr == nil && s.data != nil {
			return s, nil
		}
		slog.Warn("prompt library unreadable, reseeding defaults", "path", path)
	}

	s.data = map[string]map[string]string{}
	for cat, prompts := range DefaultPrompts {
		s.data[cat] = map[string]string{}
		for name, text := range prompts {
			s.data[cat][name] = text
		}
	}
	if err := s.save(); err != nil {
		return nil, err
	}
	return s, nil
}

// All returns a deep copy of the library.
func (s *Store) All() map[string]map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]map[string]string, len(s.data))
	for cat, prompts := range s.data {
		cp := make(map[string]string, len(prompts))
		for name, text := range prompts {
			cp[name] = text
		}
		out[cat] = cp
	}
	return out
}

// AddCategory creates an empty category.  The check is case-insensitive and
// the error names the existing casing.
func (s *Store) AddCategory(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("category name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := findKeyFold(s.data, name); ok {
		return fmt.Errorf("category already exists as %q", existing)
	}
	s.data[name] = map[string]string{}
	return s.save()
}

// SavePrompt stores text under category/name, creating the category when
// needed.  Saving under a different casing of an existing name replaces it.
func (s *Store) SavePrompt(category, name, text string) error {
	category, name, text = strings.TrimSpace(category), strings.TrimSpace(name), strings.TrimSpace(text)
	if category == "" || name == "" || text == "" {
		return fmt.Errorf("category, name and text are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[category] == nil {
		s.data[category] = map[string]string{}
	}
	if old, ok := findKeyFold(s.data[category], name); ok && old != name {
		delete(s.data[category], old)
	}
	s.data[category][name] = text
	return s.save()
}

func (s *Store) DeleteCategory(category string) error {
	category = strings.TrimSpace(category)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[category]; !ok {
		return fmt.Errorf("category not found")
	}
	delete(s.data, category)
	return s.save()
}

func (s *Store) DeletePrompt(category, name string) error {
	category, name = strings.TrimSpace(category), strings.TrimSpace(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	prompts, ok := s.data[category]
	if !ok {
		return fmt.Errorf("prompt not found")
	}
	if _, ok := prompts[name]; !ok {
		return fmt.Errorf("prompt not found")
	}
	delete(prompts, name)
	return s.save()
}

func (s *Store) save() error {
	return writeSortedJSON(s.path, func(buf *bytes.Buffer) error {
		return encodeNested(buf, s.data, func(buf *bytes.Buffer, v string) error {
			return encodeValue(buf, v)
		})
	})
}

// findKeyFold returns the stored key equal to name under case folding.
func findKeyFold[V any](m map[string]V, name string) (string, bool) {
	for k := range m {
		if strings.EqualFold(k, name) {
			return k, true
		}
	}
	return "", false
}

// encodeNested writes a two-level map with both key levels sorted
// case-insensitively.  encoding/json orders map keys bytewise, which puts
// "Zebra" before "apple"; the UI expects dictionary order.
func encodeNested[V any](buf *bytes.Buffer, data map[string]map[string]V, encode func(*bytes.Buffer, V) error) error {
	buf.WriteByte('{')
	for i, cat := range sortedKeysFold(data) {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeValue(buf, cat); err != nil {
			return err
		}
		buf.WriteByte(':')
		buf.WriteByte('{')
		for j, name := range sortedKeysFold(data[cat]) {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, name); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encode(buf, data[cat][name]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return nil
}

func encodeValue(buf *bytes.Buffer, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

func sortedKeysFold[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return strings.ToLower(keys[i]) < strings.ToLower(keys[j])
	})
	return keys
}

// writeSortedJSON writes atomically: encode to a temp file in the target
// directory, then rename over the destination.
func writeSortedJSON(path string, encode func(*bytes.Buffer) error) error {
	var buf bytes.Buffer
	if err := encode(&buf); err != nil {
		return err
	}
	var indented bytes.Buffer
	if err := json.Indent(&indented, buf.Bytes(), "", "  "); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".library-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(indented.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
