package server

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/promptforge/promptforge/library"
	"github.com/promptforge/promptforge/lora"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()

	store, err := library.Open(filepath.Join(dir, "prompts.json"))
	if err != nil {
		t.Fatal(err)
	}
	advanced, err := library.OpenAdvanced(filepath.Join(dir, "advanced.json"))
	if err != nil {
		t.Fatal(err)
	}

	loraDir := filepath.Join(dir, "loras")
	if err := os.MkdirAll(loraDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(loraDir, "glow.safetensors"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	reg := lora.NewRegistry(loraDir)
	if err := reg.Refresh(); err != nil {
		t.Fatal(err)
	}

	inputDir := filepath.Join(dir, "input")
	if err := os.MkdirAll(inputDir, 0o755); err != nil {
		t.Fatal(err)
	}

	srv := New(Config{
		Store:    store,
		Advanced: advanced,
		Registry: reg,
		InputDir: inputDir,
	})
	return srv, inputDir
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) map[string]interface{} {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: invalid response %q: %v", method, path, rec.Body.String(), err)
	}
	return out
}

func TestSaveAndGetPrompts(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	out := doJSON(t, router, http.MethodPost, "/prompt-manager/save-prompt", map[string]string{
		"category": "Scenes", "name": "Harbor", "text": "a misty harbor at dawn",
	})
	if out["success"] != true {
		t.Fatalf("save failed: %v", out)
	}

	prompts := doJSON(t, router, http.MethodGet, "/prompt-manager/get-prompts", nil)
	scenes, ok := prompts["Scenes"].(map[string]interface{})
	if !ok || scenes["Harbor"] != "a misty harbor at dawn" {
		t.Fatalf("get-prompts = %v", prompts)
	}
}

func TestSaveCategoryDuplicate(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	out := doJSON(t, router, http.MethodPost, "/prompt-manager/save-category", map[string]string{"category_name": "Moods"})
	if out["success"] != true {
		t.Fatalf("first save: %v", out)
	}
	out = doJSON(t, router, http.MethodPost, "/prompt-manager/save-category", map[string]string{"category_name": "moods"})
	if out["success"] != false {
		t.Fatal("duplicate category should fail")
	}
	if !strings.Contains(out["error"].(string), "Moods") {
		t.Errorf("error should name existing casing: %v", out["error"])
	}
}

func TestDeleteMissingPrompt(t *testing.T) {
	srv, _ := newTestServer(t)
	out := doJSON(t, srv.Router(), http.MethodPost, "/prompt-manager/delete-prompt", map[string]string{
		"category": "Nope", "name": "Nothing",
	})
	if out["success"] != false {
		t.Fatalf("expected failure: %v", out)
	}
}

func TestCheckLoras(t *testing.T) {
	srv, _ := newTestServer(t)
	out := doJSON(t, srv.Router(), http.MethodPost, "/prompt-manager-advanced/check-loras", map[string]interface{}{
		"lora_names": []string{"glow", "missing"},
	})
	results := out["results"].(map[string]interface{})
	if results["glow"] != true || results["missing"] != false {
		t.Fatalf("results = %v", results)
	}
}

func TestAvailableLoras(t *testing.T) {
	srv, _ := newTestServer(t)
	out := doJSON(t, srv.Router(), http.MethodGet, "/prompt-manager-advanced/available-loras", nil)
	loras := out["loras"].([]interface{})
	if len(loras) != 1 || loras[0] != "glow" {
		t.Fatalf("loras = %v", loras)
	}
}

func TestGetPromptDataAnnotatesAvailability(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	doJSON(t, router, http.MethodPost, "/prompt-manager-advanced/save-prompt", map[string]interface{}{
		"category": "C", "name": "P", "text": "prompt text",
		"loras_a": []map[string]interface{}{
			{"name": "glow", "strength": 0.8},
			{"name": "missing", "strength": 1.0},
		},
	})

	out := doJSON(t, router, http.MethodPost, "/prompt-manager-advanced/get-prompt-data", map[string]string{
		"category": "C", "name": "P",
	})
	if out["success"] != true {
		t.Fatalf("get-prompt-data: %v", out)
	}
	data := out["data"].(map[string]interface{})
	lorasA := data["loras_a"].([]interface{})
	if len(lorasA) != 2 {
		t.Fatalf("loras_a = %v", lorasA)
	}
	first := lorasA[0].(map[string]interface{})
	second := lorasA[1].(map[string]interface{})
	if first["available"] != true || second["available"] != false {
		t.Errorf("availability = %v / %v", first["available"], second["available"])
	}
}

func TestImportPromptsReplace(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	doJSON(t, router, http.MethodPost, "/prompt-manager-advanced/save-prompt", map[string]interface{}{
		"category": "Old", "name": "Keep", "text": "x",
	})
	out := doJSON(t, router, http.MethodPost, "/prompt-manager-advanced/import-prompts", map[string]interface{}{
		"mode": "replace",
		"data": map[string]interface{}{
			"New": map[string]interface{}{"Added": map[string]interface{}{"prompt": "added"}},
		},
	})
	if out["success"] != true {
		t.Fatalf("import: %v", out)
	}
	prompts := out["prompts"].(map[string]interface{})
	if _, ok := prompts["Old"]; ok {
		t.Error("replace should drop old categories")
	}
	if _, ok := prompts["New"]; !ok {
		t.Error("imported category missing")
	}
}

func pngWithPrompt(prompt string) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})

	writeChunk := func(typ string, data []byte) {
		var length [4]byte
		binary.BigEndian.PutUint32(length[:], uint32(len(data)))
		buf.Write(length[:])
		buf.WriteString(typ)
		buf.Write(data)
		buf.Write([]byte{0, 0, 0, 0}) // crc unchecked
	}
	writeChunk("tEXt", append([]byte("prompt\x00"), prompt...))
	writeChunk("IEND", nil)
	return buf.Bytes()
}

func TestListAndExtract(t *testing.T) {
	srv, inputDir := newTestServer(t)
	router := srv.Router()

	promptDoc := `{"1":{"class_type":"CLIPTextEncode","inputs":{"text":"a watchtower on a cliff at sunset"}}}`
	if err := os.WriteFile(filepath.Join(inputDir, "gen.png"), pngWithPrompt(promptDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(inputDir, "notes.txt"), []byte("skip"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := doJSON(t, router, http.MethodGet, "/prompt-extractor/list-files", nil)
	files := out["files"].([]interface{})
	if len(files) != 1 || files[0] != "gen.png" {
		t.Fatalf("files = %v", files)
	}

	out = doJSON(t, router, http.MethodPost, "/prompt-extractor/extract", map[string]string{"filename": "gen.png"})
	if out["success"] != true {
		t.Fatalf("extract: %v", out)
	}
	result := out["result"].(map[string]interface{})
	if result["positive_prompt"] != "a watchtower on a cliff at sunset" {
		t.Errorf("positive = %v", result["positive_prompt"])
	}
}

func TestExtractUsesCachedMetadata(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	// No file on disk: only the cache can serve this name.
	out := doJSON(t, router, http.MethodPost, "/prompt-extractor/cache-file-metadata", map[string]interface{}{
		"filename": "remote.webm",
		"metadata": map[string]interface{}{
			"prompt": map[string]interface{}{
				"9": map[string]interface{}{
					"class_type": "CLIPTextEncode",
					"inputs":     map[string]interface{}{"text": "an orchard in heavy snowfall"},
				},
			},
		},
	})
	if out["success"] != true {
		t.Fatalf("cache: %v", out)
	}

	out = doJSON(t, router, http.MethodPost, "/prompt-extractor/extract", map[string]string{"filename": "remote.webm"})
	if out["success"] != true {
		t.Fatalf("extract: %v", out)
	}
	result := out["result"].(map[string]interface{})
	if result["positive_prompt"] != "an orchard in heavy snowfall" {
		t.Errorf("positive = %v", result["positive_prompt"])
	}
}

func TestExtractRejectsPathTraversal(t *testing.T) {
	srv, _ := newTestServer(t)
	out := doJSON(t, srv.Router(), http.MethodPost, "/prompt-extractor/extract", map[string]string{
		"filename": "../secret.png",
	})
	if out["success"] != false {
		t.Fatal("path traversal should be rejected")
	}
}

func TestExtractNoMetadata(t *testing.T) {
	srv, inputDir := newTestServer(t)
	if err := os.WriteFile(filepath.Join(inputDir, "plain.png"), []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := doJSON(t, srv.Router(), http.MethodPost, "/prompt-extractor/extract", map[string]string{"filename": "plain.png"})
	if out["success"] != false {
		t.Fatalf("expected failure: %v", out)
	}
}
