package server

import (
	"net/http"
	"sort"

	"github.com/promptforge/promptforge/library"
	"github.com/promptforge/promptforge/lora"
)

// Advanced library routes: presets carrying LoRA stacks, trigger words and
// thumbnails.

func (s *Server) handleAdvancedGetPrompts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.cfg.Advanced.All())
}

func (s *Server) handleAdvancedSaveCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CategoryName string `json:"category_name"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.cfg.Advanced.AddCategory(req.CategoryName); err != nil {
		writeError(w, err)
		return
	}
	s.advancedChanged(w)
}

func (s *Server) handleAdvancedSavePrompt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category     string                `json:"category"`
		Name         string                `json:"name"`
		Text         string                `json:"text"`
		LorasA       []library.LoraSetting `json:"loras_a"`
		LorasB       []library.LoraSetting `json:"loras_b"`
		TriggerWords []library.TriggerWord `json:"trigger_words"`
		Thumbnail    string                `json:"thumbnail"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	entry := library.Entry{
		Prompt:       req.Text,
		LorasA:       req.LorasA,
		LorasB:       req.LorasB,
		TriggerWords: req.TriggerWords,
		Thumbnail:    req.Thumbnail,
	}
	if err := s.cfg.Advanced.SavePrompt(req.Category, req.Name, entry); err != nil {
		writeError(w, err)
		return
	}
	s.advancedChanged(w)
}

func (s *Server) handleAdvancedDeleteCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.cfg.Advanced.DeleteCategory(req.Category); err != nil {
		writeError(w, err)
		return
	}
	s.advancedChanged(w)
}

func (s *Server) handleAdvancedDeletePrompt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
		Name     string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.cfg.Advanced.DeletePrompt(req.Category, req.Name); err != nil {
		writeError(w, err)
		return
	}
	s.advancedChanged(w)
}

func (s *Server) handleCheckLoras(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LoraNames []string `json:"lora_names"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	results := make(map[string]bool, len(req.LoraNames))
	for _, name := range req.LoraNames {
		_, found := s.cfg.Registry.Resolve(name)
		results[name] = found
	}
	writeJSON(w, map[string]interface{}{"success": true, "results": results})
}

func (s *Server) handleAvailableLoras(w http.ResponseWriter, r *http.Request) {
	seen := map[string]bool{}
	var names []string
	for _, f := range s.cfg.Registry.Files() {
		name := lora.StripExtension(lora.BaseName(f))
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	writeJSON(w, map[string]interface{}{"success": true, "loras": names})
}

func (s *Server) handleGetPromptData(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
		Name     string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	entry, ok := s.cfg.Advanced.Get(req.Category, req.Name)
	if !ok {
		writeJSON(w, map[string]interface{}{"success": false, "error": "prompt not found"})
		return
	}

	type loraWithAvailability struct {
		library.LoraSetting
		Available bool `json:"available"`
	}
	annotate := func(loras []library.LoraSetting) []loraWithAvailability {
		out := make([]loraWithAvailability, 0, len(loras))
		for _, l := range loras {
			_, found := s.cfg.Registry.Resolve(l.Name)
			out = append(out, loraWithAvailability{LoraSetting: l, Available: found})
		}
		return out
	}

	writeJSON(w, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"prompt":        entry.Prompt,
			"loras_a":       annotate(entry.LorasA),
			"loras_b":       annotate(entry.LorasB),
			"trigger_words": entry.TriggerWords,
		},
	})
}

func (s *Server) handleImportPrompts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data map[string]map[string]*library.Entry `json:"data"`
		Mode string                               `json:"mode"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	mode := library.ImportMerge
	if req.Mode == string(library.ImportReplace) {
		mode = library.ImportReplace
	}
	if err := s.cfg.Advanced.Import(req.Data, mode); err != nil {
		writeError(w, err)
		return
	}
	s.advancedChanged(w)
}

func (s *Server) handleSaveThumbnail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category  string `json:"category"`
		Name      string `json:"name"`
		Thumbnail string `json:"thumbnail"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.cfg.Advanced.SetThumbnail(req.Category, req.Name, req.Thumbnail); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"success": true})
}

func (s *Server) advancedChanged(w http.ResponseWriter) {
	prompts := s.cfg.Advanced.All()
	s.hub.BroadcastEvent("prompt-manager-advanced-update", prompts)
	writeJSON(w, map[string]interface{}{"success": true, "prompts": prompts})
}
