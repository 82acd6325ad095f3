package server

import "net/http"

// Basic prompt library routes: plain category/name/text presets.

func (s *Server) handleGetPrompts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.cfg.Store.All())
}

func (s *Server) handleSaveCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CategoryName string `json:"category_name"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.cfg.Store.AddCategory(req.CategoryName); err != nil {
		writeError(w, err)
		return
	}
	s.promptsChanged(w)
}

func (s *Server) handleSavePrompt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
		Name     string `json:"name"`
		Text     string `json:"text"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.cfg.Store.SavePrompt(req.Category, req.Name, req.Text); err != nil {
		writeError(w, err)
		return
	}
	s.promptsChanged(w)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.cfg.Store.DeleteCategory(req.Category); err != nil {
		writeError(w, err)
		return
	}
	s.promptsChanged(w)
}

func (s *Server) handleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
		Name     string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.cfg.Store.DeletePrompt(req.Category, req.Name); err != nil {
		writeError(w, err)
		return
	}
	s.promptsChanged(w)
}

// promptsChanged answers with the updated tree and notifies subscribers.
func (s *Server) promptsChanged(w http.ResponseWriter) {
	prompts := s.cfg.Store.All()
	s.hub.BroadcastEvent("prompt-manager-update-text", prompts)
	writeJSON(w, map[string]interface{}{"success": true, "prompts": prompts})
}
