package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/promptforge/promptforge/metadata"
	"github.com/promptforge/promptforge/workflow"
)

var supportedExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true,
	".json": true, ".mp4": true, ".webm": true, ".mov": true, ".avi": true,
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.cfg.InputDir)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{"files": []string{}, "error": err.Error()})
		return
	}
	files := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if supportedExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	writeJSON(w, map[string]interface{}{"files": files})
}

// handleCacheFileMetadata stores metadata the frontend already parsed, so a
// later extract call can skip reading the file.
func (s *Server) handleCacheFileMetadata(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename string          `json:"filename"`
		Metadata json.RawMessage `json:"metadata"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Filename == "" {
		writeError(w, fmt.Errorf("missing filename"))
		return
	}
	if len(req.Metadata) > 0 && string(req.Metadata) != "null" {
		s.cacheMu.Lock()
		s.metadataCache[req.Filename] = req.Metadata
		s.cacheMu.Unlock()
	}
	writeJSON(w, map[string]interface{}{"success": true})
}

// handleExtract runs the metadata core over a file in the input directory
// and parses the harvested documents for prompts and LoRA stacks.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename string `json:"filename"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Filename == "" || req.Filename != filepath.Base(req.Filename) {
		writeError(w, fmt.Errorf("invalid filename"))
		return
	}

	meta := s.cachedMetadata(req.Filename)
	if meta == nil {
		data, err := os.ReadFile(filepath.Join(s.cfg.InputDir, req.Filename))
		if err != nil {
			writeError(w, err)
			return
		}
		meta = metadata.Extract(data, metadata.KindForPath(req.Filename), s.scanOptions()...)
	}
	if meta == nil {
		writeJSON(w, map[string]interface{}{"success": false, "error": "no metadata found"})
		return
	}

	result := workflow.ParseRaw(meta.Prompt, meta.Workflow)
	if meta.ParsedParameters != nil && result.PositivePrompt == "" {
		result.PositivePrompt = meta.ParsedParameters.Prompt
		result.NegativePrompt = meta.ParsedParameters.NegativePrompt
		for _, l := range meta.ParsedParameters.Loras {
			result.LorasA = append(result.LorasA, workflow.Lora{
				Name:          l.Name,
				ModelStrength: l.ModelStrength,
				ClipStrength:  l.ClipStrength,
				Active:        true,
			})
		}
	}

	writeJSON(w, map[string]interface{}{
		"success":  true,
		"metadata": meta,
		"result":   result,
	})
}

// cachedMetadata returns frontend-cached metadata for a filename, if any.
func (s *Server) cachedMetadata(filename string) *metadata.Metadata {
	s.cacheMu.Lock()
	raw, ok := s.metadataCache[filename]
	s.cacheMu.Unlock()
	if !ok {
		return nil
	}
	var meta metadata.Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil
	}
	if len(meta.Prompt) == 0 && len(meta.Workflow) == 0 && meta.Parameters == "" {
		return nil
	}
	if meta.Parameters != "" && meta.ParsedParameters == nil {
		meta.ParsedParameters = metadata.ParseParameters(meta.Parameters)
	}
	return &meta
}
