// Package server exposes the prompt libraries, the LoRA registry and the
// metadata extractor over HTTP, plus a websocket feed for library updates
// and latent preview frames.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/promptforge/promptforge/library"
	"github.com/promptforge/promptforge/lora"
	"github.com/promptforge/promptforge/metadata"
)

// Config wires the server's collaborators and directories.
type Config struct {
	Addr     string
	Store    *library.Store
	Advanced *library.AdvancedStore
	Registry *lora.Registry
	// InputDir is the directory listed and read by the extractor routes.
	InputDir string
	// Lenient selects the keep-going scan mode for video containers.
	Lenient bool
}

// Server routes API requests and fans events out to websocket clients.
type Server struct {
	cfg Config
	hub *Hub

	cacheMu sync.Mutex
	// metadata cached by the frontend per filename, consulted before the
	// server parses the file itself
	metadataCache map[string]json.RawMessage
}

func New(cfg Config) *Server {
	return &Server{
		cfg:           cfg,
		hub:           newHub(),
		metadataCache: map[string]json.RawMessage{},
	}
}

// Hub returns the websocket hub, used by the preview streamer.
func (s *Server) Hub() *Hub { return s.hub }

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/prompt-manager/get-prompts", s.handleGetPrompts).Methods(http.MethodGet)
	r.HandleFunc("/prompt-manager/save-category", s.handleSaveCategory).Methods(http.MethodPost)
	r.HandleFunc("/prompt-manager/save-prompt", s.handleSavePrompt).Methods(http.MethodPost)
	r.HandleFunc("/prompt-manager/delete-category", s.handleDeleteCategory).Methods(http.MethodPost)
	r.HandleFunc("/prompt-manager/delete-prompt", s.handleDeletePrompt).Methods(http.MethodPost)

	r.HandleFunc("/prompt-manager-advanced/get-prompts", s.handleAdvancedGetPrompts).Methods(http.MethodGet)
	r.HandleFunc("/prompt-manager-advanced/save-category", s.handleAdvancedSaveCategory).Methods(http.MethodPost)
	r.HandleFunc("/prompt-manager-advanced/save-prompt", s.handleAdvancedSavePrompt).Methods(http.MethodPost)
	r.HandleFunc("/prompt-manager-advanced/delete-category", s.handleAdvancedDeleteCategory).Methods(http.MethodPost)
	r.HandleFunc("/prompt-manager-advanced/delete-prompt", s.handleAdvancedDeletePrompt).Methods(http.MethodPost)
	r.HandleFunc("/prompt-manager-advanced/check-loras", s.handleCheckLoras).Methods(http.MethodPost)
	r.HandleFunc("/prompt-manager-advanced/available-loras", s.handleAvailableLoras).Methods(http.MethodGet)
	r.HandleFunc("/prompt-manager-advanced/get-prompt-data", s.handleGetPromptData).Methods(http.MethodPost)
	r.HandleFunc("/prompt-manager-advanced/import-prompts", s.handleImportPrompts).Methods(http.MethodPost)
	r.HandleFunc("/prompt-manager-advanced/save-thumbnail", s.handleSaveThumbnail).Methods(http.MethodPost)

	r.HandleFunc("/prompt-extractor/list-files", s.handleListFiles).Methods(http.MethodGet)
	r.HandleFunc("/prompt-extractor/cache-file-metadata", s.handleCacheFileMetadata).Methods(http.MethodPost)
	r.HandleFunc("/prompt-extractor/extract", s.handleExtract).Methods(http.MethodPost)

	r.HandleFunc("/ws", s.hub.handleWS).Methods(http.MethodGet)
	return r
}

// ListenAndServe runs until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", s.cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		return err
	}
}

func (s *Server) scanOptions() []metadata.Option {
	if s.cfg.Lenient {
		return []metadata.Option{metadata.WithScanMode(metadata.ScanKeepGoing)}
	}
	return nil
}

// writeJSON writes a 200 response; API failures are reported in-band.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, map[string]interface{}{"success": false, "error": err.Error()})
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
