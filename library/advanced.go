package library

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LoraSetting is a saved LoRA reference.  Paths are not stored; they are
// resolved against the local registry at use time so presets stay portable
// between machines.
type LoraSetting struct {
	Name         string  `json:"name"`
	Strength     float64 `json:"strength"`
	ClipStrength float64 `json:"clip_strength"`
	Active       bool    `json:"active"`
}

// UnmarshalJSON accepts the editor's loose form, where strength may appear
// as model_strength and omitted fields take defaults.
func (l *LoraSetting) UnmarshalJSON(b []byte) error {
	var raw struct {
		Name          string   `json:"name"`
		Strength      *float64 `json:"strength"`
		ModelStrength *float64 `json:"model_strength"`
		ClipStrength  *float64 `json:"clip_strength"`
		Active        *bool    `json:"active"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	l.Name = raw.Name
	l.Strength = 1.0
	if raw.Strength != nil {
		l.Strength = *raw.Strength
	} else if raw.ModelStrength != nil {
		l.Strength = *raw.ModelStrength
	}
	l.ClipStrength = l.Strength
	if raw.ClipStrength != nil {
		l.ClipStrength = *raw.ClipStrength
	}
	l.Active = true
	if raw.Active != nil {
		l.Active = *raw.Active
	}
	return nil
}

// TriggerWord is one saved trigger word and its toggle state.
type TriggerWord struct {
	Text   string `json:"text"`
	Active bool   `json:"active"`
}

// UnmarshalJSON accepts either a bare string or the object form.
func (t *TriggerWord) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		t.Text = strings.TrimSpace(s)
		t.Active = true
		return nil
	}
	var raw struct {
		Text   string `json:"text"`
		Active *bool  `json:"active"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	t.Text = strings.TrimSpace(raw.Text)
	t.Active = true
	if raw.Active != nil {
		t.Active = *raw.Active
	}
	return nil
}

// Entry is one advanced preset.
type Entry struct {
	Prompt       string        `json:"prompt"`
	LorasA       []LoraSetting `json:"loras_a"`
	LorasB       []LoraSetting `json:"loras_b"`
	TriggerWords []TriggerWord `json:"trigger_words"`
	Thumbnail    string        `json:"thumbnail,omitempty"`
}

// AdvancedStore is the preset library with LoRA stacks attached:
// category -> preset name -> Entry.
type AdvancedStore struct {
	path string

	mu   sync.Mutex
	data map[string]map[string]*Entry
}

// OpenAdvanced loads the advanced library at path, starting empty when no
// usable file exists.
func OpenAdvanced(path string) (*AdvancedStore, error) {
	s := &AdvancedStore{path: path}

	raw, err := os.ReadFile(path)
	if err == nil {
		if jsonErr := json.Unmarshal(raw, &s.data); jsonErr == nil && s.data != nil {
			return s, nil
		}
		slog.Warn("advanced prompt library unreadable, starting empty", "path", path)
	}

	s.data = map[string]map[string]*Entry{}
	if err := s.save(); err != nil {
		return nil, err
	}
	return s, nil
}

// All returns a deep copy of the library.
func (s *AdvancedStore) All() map[string]map[string]*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyAll()
}

func (s *AdvancedStore) copyAll() map[string]map[string]*Entry {
	out := make(map[string]map[string]*Entry, len(s.data))
	for cat, entries := range s.data {
		cp := make(map[string]*Entry, len(entries))
		for name, e := range entries {
			dup := *e
			cp[name] = &dup
		}
		out[cat] = cp
	}
	return out
}

// Get returns a copy of one entry.
func (s *AdvancedStore) Get(category, name string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.data[strings.TrimSpace(category)]
	if !ok {
		return nil, false
	}
	e, ok := entries[strings.TrimSpace(name)]
	if !ok {
		return nil, false
	}
	dup := *e
	return &dup, true
}

func (s *AdvancedStore) AddCategory(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("category name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := findKeyFold(s.data, name); ok {
		return fmt.Errorf("category already exists as %q", existing)
	}
	s.data[name] = map[string]*Entry{}
	return s.save()
}

// SavePrompt stores an entry, normalizing its LoRA and trigger word lists.
// An empty thumbnail keeps any thumbnail already saved under the name.
func (s *AdvancedStore) SavePrompt(category, name string, entry Entry) error {
	category, name = strings.TrimSpace(category), strings.TrimSpace(name)
	if category == "" || name == "" {
		return fmt.Errorf("category and name are required")
	}
	entry.Prompt = strings.TrimSpace(entry.Prompt)
	entry.LorasA = normalizeLoras(entry.LorasA)
	entry.LorasB = normalizeLoras(entry.LorasB)
	entry.TriggerWords = dedupeTriggerWords(entry.TriggerWords)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[category] == nil {
		s.data[category] = map[string]*Entry{}
	}
	if old, ok := findKeyFold(s.data[category], name); ok && old != name {
		delete(s.data[category], old)
	}
	if entry.Thumbnail == "" {
		if prev, ok := s.data[category][name]; ok {
			entry.Thumbnail = prev.Thumbnail
		}
	}
	s.data[category][name] = &entry
	return s.save()
}

func (s *AdvancedStore) DeleteCategory(category string) error {
	category = strings.TrimSpace(category)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[category]; !ok {
		return fmt.Errorf("category not found")
	}
	delete(s.data, category)
	return s.save()
}

func (s *AdvancedStore) DeletePrompt(category, name string) error {
	category, name = strings.TrimSpace(category), strings.TrimSpace(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.data[category]
	if !ok {
		return fmt.Errorf("prompt not found")
	}
	if _, ok := entries[name]; !ok {
		return fmt.Errorf("prompt not found")
	}
	delete(entries, name)
	return s.save()
}

// SetThumbnail stores or, with an empty value, removes a thumbnail.
func (s *AdvancedStore) SetThumbnail(category, name, thumbnail string) error {
	category, name = strings.TrimSpace(category), strings.TrimSpace(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.data[category]
	if !ok {
		return fmt.Errorf("prompt not found")
	}
	e, ok := entries[name]
	if !ok {
		return fmt.Errorf("prompt not found")
	}
	e.Thumbnail = thumbnail
	return s.save()
}

// ImportMode selects how imported data combines with the current library.
type ImportMode string

const (
	ImportMerge   ImportMode = "merge"
	ImportReplace ImportMode = "replace"
)

// Import adds the given categories, either merged over the current data or
// replacing it wholesale.
func (s *AdvancedStore) Import(data map[string]map[string]*Entry, mode ImportMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode == ImportReplace {
		s.data = map[string]map[string]*Entry{}
	}
	for cat, entries := range data {
		if s.data[cat] == nil {
			s.data[cat] = map[string]*Entry{}
		}
		for name, e := range entries {
			if e == nil {
				continue
			}
			dup := *e
			dup.LorasA = normalizeLoras(dup.LorasA)
			dup.LorasB = normalizeLoras(dup.LorasB)
			dup.TriggerWords = dedupeTriggerWords(dup.TriggerWords)
			s.data[cat][name] = &dup
		}
	}
	return s.save()
}

func normalizeLoras(loras []LoraSetting) []LoraSetting {
	out := make([]LoraSetting, 0, len(loras))
	for _, l := range loras {
		if l.Name == "" {
			continue
		}
		out = append(out, l)
	}
	return out
}

func dedupeTriggerWords(words []TriggerWord) []TriggerWord {
	out := make([]TriggerWord, 0, len(words))
	seen := map[string]bool{}
	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" || seen[strings.ToLower(text)] {
			continue
		}
		seen[strings.ToLower(text)] = true
		out = append(out, TriggerWord{Text: text, Active: w.Active})
	}
	return out
}

func (s *AdvancedStore) save() error {
	return writeSortedJSON(s.path, func(buf *bytes.Buffer) error {
		return encodeNested(buf, s.data, func(buf *bytes.Buffer, e *Entry) error {
			return encodeValue(buf, e)
		})
	})
}
