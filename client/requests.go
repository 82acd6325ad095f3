package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

/*
GET  /prompt-manager/get-prompts
POST /prompt-manager/save-category
POST /prompt-manager/save-prompt
POST /prompt-manager/delete-category
POST /prompt-manager/delete-prompt

GET  /prompt-manager-advanced/get-prompts
POST /prompt-manager-advanced/save-prompt
POST /prompt-manager-advanced/check-loras
GET  /prompt-manager-advanced/available-loras
POST /prompt-manager-advanced/get-prompt-data
POST /prompt-manager-advanced/import-prompts
POST /prompt-manager-advanced/save-thumbnail

GET  /prompt-extractor/list-files
POST /prompt-extractor/cache-file-metadata
POST /prompt-extractor/extract
*/

// apiResult is the server's in-band status envelope.
type apiResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (c *Client) getJSON(path string, out interface{}) error {
	resp, err := c.httpclient.Get(fmt.Sprintf("http://%s%s", c.serverBaseAddress, path))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// postJSON posts a request body and decodes the response, surfacing the
// in-band error convention as a Go error.
func (c *Client) postJSON(path string, in, out interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	resp, err := c.httpclient.Post(fmt.Sprintf("http://%s%s", c.serverBaseAddress, path), "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var status apiResult
	if err := json.Unmarshal(body, &status); err == nil && !status.Success && status.Error != "" {
		return errors.New(status.Error)
	}
	if out != nil {
		return json.Unmarshal(body, out)
	}
	return nil
}

// GetPrompts returns the basic prompt library.
func (c *Client) GetPrompts() (map[string]map[string]string, error) {
	var prompts map[string]map[string]string
	if err := c.getJSON("/prompt-manager/get-prompts", &prompts); err != nil {
		return nil, err
	}
	return prompts, nil
}

func (c *Client) SaveCategory(name string) error {
	return c.postJSON("/prompt-manager/save-category", map[string]string{"category_name": name}, nil)
}

func (c *Client) SavePrompt(category, name, text string) error {
	return c.postJSON("/prompt-manager/save-prompt", map[string]string{
		"category": category, "name": name, "text": text,
	}, nil)
}

func (c *Client) DeleteCategory(category string) error {
	return c.postJSON("/prompt-manager/delete-category", map[string]string{"category": category}, nil)
}

func (c *Client) DeletePrompt(category, name string) error {
	return c.postJSON("/prompt-manager/delete-prompt", map[string]string{
		"category": category, "name": name,
	}, nil)
}

// GetAdvancedPrompts returns the advanced library as raw JSON, leaving the
// entry layout to the caller.
func (c *Client) GetAdvancedPrompts() (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.getJSON("/prompt-manager-advanced/get-prompts", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) SaveAdvancedCategory(name string) error {
	return c.postJSON("/prompt-manager-advanced/save-category", map[string]string{"category_name": name}, nil)
}

// AdvancedPrompt carries the fields of an advanced preset save.
type AdvancedPrompt struct {
	Category     string        `json:"category"`
	Name         string        `json:"name"`
	Text         string        `json:"text"`
	LorasA       []LoraSetting `json:"loras_a"`
	LorasB       []LoraSetting `json:"loras_b"`
	TriggerWords []TriggerWord `json:"trigger_words"`
	Thumbnail    string        `json:"thumbnail,omitempty"`
}

// LoraSetting is one LoRA row of an advanced preset.
type LoraSetting struct {
	Name         string  `json:"name"`
	Strength     float64 `json:"strength"`
	ClipStrength float64 `json:"clip_strength"`
	Active       bool    `json:"active"`
}

// TriggerWord is one trigger word of an advanced preset.
type TriggerWord struct {
	Text   string `json:"text"`
	Active bool   `json:"active"`
}

func (c *Client) SaveAdvancedPrompt(p AdvancedPrompt) error {
	return c.postJSON("/prompt-manager-advanced/save-prompt", p, nil)
}

func (c *Client) DeleteAdvancedCategory(category string) error {
	return c.postJSON("/prompt-manager-advanced/delete-category", map[string]string{"category": category}, nil)
}

func (c *Client) DeleteAdvancedPrompt(category, name string) error {
	return c.postJSON("/prompt-manager-advanced/delete-prompt", map[string]string{
		"category": category, "name": name,
	}, nil)
}

// PromptData is the annotated payload of a single advanced preset.
type PromptData struct {
	Prompt       string          `json:"prompt"`
	LorasA       json.RawMessage `json:"loras_a"`
	LorasB       json.RawMessage `json:"loras_b"`
	TriggerWords []TriggerWord   `json:"trigger_words"`
}

// GetPromptData fetches one advanced preset with per-LoRA availability.
func (c *Client) GetPromptData(category, name string) (*PromptData, error) {
	var out struct {
		apiResult
		Data PromptData `json:"data"`
	}
	if err := c.postJSON("/prompt-manager-advanced/get-prompt-data", map[string]string{
		"category": category, "name": name,
	}, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// ImportPrompts uploads an advanced library export. Mode is "merge" or
// "replace".
func (c *Client) ImportPrompts(data json.RawMessage, mode string) error {
	return c.postJSON("/prompt-manager-advanced/import-prompts", map[string]interface{}{
		"data": data, "mode": mode,
	}, nil)
}

// CheckLoras asks which of the given LoRA names resolve on the server.
func (c *Client) CheckLoras(names []string) (map[string]bool, error) {
	var out struct {
		apiResult
		Results map[string]bool `json:"results"`
	}
	if err := c.postJSON("/prompt-manager-advanced/check-loras", map[string]interface{}{"lora_names": names}, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// AvailableLoras lists the LoRA names the server's registry knows.
func (c *Client) AvailableLoras() ([]string, error) {
	var out struct {
		apiResult
		Loras []string `json:"loras"`
	}
	if err := c.getJSON("/prompt-manager-advanced/available-loras", &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, errors.New(out.Error)
	}
	return out.Loras, nil
}

// ListInputFiles lists the server's input directory, filtered to the
// formats the extractor understands.
func (c *Client) ListInputFiles() ([]string, error) {
	var out struct {
		Files []string `json:"files"`
		Error string   `json:"error"`
	}
	if err := c.getJSON("/prompt-extractor/list-files", &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, errors.New(out.Error)
	}
	return out.Files, nil
}

// CacheFileMetadata uploads locally extracted metadata so the server can
// answer a later extract call without reading the file.
func (c *Client) CacheFileMetadata(filename string, meta interface{}) error {
	return c.postJSON("/prompt-extractor/cache-file-metadata", map[string]interface{}{
		"filename": filename,
		"metadata": meta,
	}, nil)
}

// ExtractResult is the server's answer to an extract request.
type ExtractResult struct {
	Metadata json.RawMessage `json:"metadata"`
	Result   struct {
		PositivePrompt string          `json:"positive_prompt"`
		NegativePrompt string          `json:"negative_prompt"`
		LorasA         json.RawMessage `json:"loras_a"`
		LorasB         json.RawMessage `json:"loras_b"`
	} `json:"result"`
}

// Extract asks the server to extract and parse a file from its input
// directory.
func (c *Client) Extract(filename string) (*ExtractResult, error) {
	var out struct {
		apiResult
		ExtractResult
	}
	if err := c.postJSON("/prompt-extractor/extract", map[string]string{"filename": filename}, &out); err != nil {
		return nil, err
	}
	return &out.ExtractResult, nil
}

// SaveThumbnail stores (or with empty data removes) a preset thumbnail.
func (c *Client) SaveThumbnail(category, name, thumbnail string) error {
	return c.postJSON("/prompt-manager-advanced/save-thumbnail", map[string]string{
		"category": category, "name": name, "thumbnail": thumbnail,
	}, nil)
}
