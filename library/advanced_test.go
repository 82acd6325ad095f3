package library

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func openAdvanced(t *testing.T) *AdvancedStore {
	t.Helper()
	s, err := OpenAdvanced(filepath.Join(t.TempDir(), "advanced.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func TestAdvancedSaveAndGet(t *testing.T) {
	s := openAdvanced(t)

	entry := Entry{
		Prompt: "  a knight in silver armor  ",
		LorasA: []LoraSetting{
			{Name: "armor_detail", Strength: 0.8, ClipStrength: 0.8, Active: true},
			{Name: "", Strength: 1, ClipStrength: 1, Active: true},
		},
		TriggerWords: []TriggerWord{
			{Text: " shiny ", Active: true},
			{Text: "Shiny", Active: false},
		},
	}
	if err := s.SavePrompt("Character", "Knight", entry); err != nil {
		t.Fatal(err)
	}

	got, ok := s.Get("Character", "Knight")
	if !ok {
		t.Fatal("entry not found")
	}
	if got.Prompt != "a knight in silver armor" {
		t.Errorf("prompt = %q", got.Prompt)
	}
	if len(got.LorasA) != 1 {
		t.Errorf("nameless lora kept: %+v", got.LorasA)
	}
	if len(got.TriggerWords) != 1 || got.TriggerWords[0].Text != "shiny" {
		t.Errorf("trigger words = %+v", got.TriggerWords)
	}
}

func TestAdvancedThumbnailPreserved(t *testing.T) {
	s := openAdvanced(t)

	if err := s.SavePrompt("C", "P", Entry{Prompt: "x", Thumbnail: "data:image/jpeg;base64,AAAA"}); err != nil {
		t.Fatal(err)
	}
	// Re-save without thumbnail: the existing one stays.
	if err := s.SavePrompt("C", "P", Entry{Prompt: "y"}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get("C", "P")
	if got.Thumbnail != "data:image/jpeg;base64,AAAA" {
		t.Errorf("thumbnail = %q", got.Thumbnail)
	}

	if err := s.SetThumbnail("C", "P", ""); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Get("C", "P")
	if got.Thumbnail != "" {
		t.Error("thumbnail should be removed")
	}
}

func TestAdvancedImportMergeAndReplace(t *testing.T) {
	s := openAdvanced(t)
	if err := s.SavePrompt("Old", "Keep", Entry{Prompt: "keep me"}); err != nil {
		t.Fatal(err)
	}

	imported := map[string]map[string]*Entry{
		"New": {"Added": &Entry{Prompt: "added"}},
	}
	if err := s.Import(imported, ImportMerge); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get("Old", "Keep"); !ok {
		t.Error("merge should keep existing entries")
	}
	if _, ok := s.Get("New", "Added"); !ok {
		t.Error("merge should add imported entries")
	}

	if err := s.Import(imported, ImportReplace); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get("Old", "Keep"); ok {
		t.Error("replace should drop existing entries")
	}
}

func TestLoraSettingLooseDecoding(t *testing.T) {
	var l LoraSetting
	if err := json.Unmarshal([]byte(`{"name":"glow","model_strength":0.5}`), &l); err != nil {
		t.Fatal(err)
	}
	if l.Strength != 0.5 || l.ClipStrength != 0.5 || !l.Active {
		t.Errorf("decoded = %+v", l)
	}

	if err := json.Unmarshal([]byte(`{"name":"glow","strength":0.7,"clip_strength":0.2,"active":false}`), &l); err != nil {
		t.Fatal(err)
	}
	if l.Strength != 0.7 || l.ClipStrength != 0.2 || l.Active {
		t.Errorf("decoded = %+v", l)
	}
}

func TestTriggerWordStringForm(t *testing.T) {
	var words []TriggerWord
	if err := json.Unmarshal([]byte(`["plain word", {"text":"toggled","active":false}]`), &words); err != nil {
		t.Fatal(err)
	}
	if len(words) != 2 || words[0].Text != "plain word" || !words[0].Active {
		t.Fatalf("words = %+v", words)
	}
	if words[1].Text != "toggled" || words[1].Active {
		t.Fatalf("words[1] = %+v", words[1])
	}
}

func TestAdvancedCasingReplacement(t *testing.T) {
	s := openAdvanced(t)
	if err := s.SavePrompt("C", "my preset", Entry{Prompt: "one"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SavePrompt("C", "My Preset", Entry{Prompt: "two"}); err != nil {
		t.Fatal(err)
	}
	all := s.All()["C"]
	if len(all) != 1 {
		t.Fatalf("entries = %+v", all)
	}
	if all["My Preset"].Prompt != "two" {
		t.Error("new casing should win")
	}
}
