package client

import (
	"encoding/binary"
	"encoding/json"
	"log/slog"

	"github.com/gorilla/websocket"
)

// wsEvent is the JSON envelope the server sends for text messages.
type wsEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// OnMessage dispatches each websocket message to the matching callback.
func (c *Client) OnMessage(messageType int, data []byte) {
	switch messageType {
	case websocket.TextMessage:
		c.onEvent(data)
	case websocket.BinaryMessage:
		c.onBinary(data)
	}
}

func (c *Client) onEvent(data []byte) {
	var ev wsEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		slog.Error("deserializing event", "error", err)
		return
	}

	switch ev.Type {
	case "prompt-manager-update-text":
		if c.callbacks != nil && c.callbacks.PromptsChanged != nil {
			var prompts map[string]map[string]string
			if err := json.Unmarshal(ev.Data, &prompts); err != nil {
				slog.Error("deserializing prompt tree", "error", err)
				return
			}
			c.callbacks.PromptsChanged(c, prompts)
		}
	case "prompt-manager-advanced-update":
		if c.callbacks != nil && c.callbacks.AdvancedPromptsChanged != nil {
			c.callbacks.AdvancedPromptsChanged(c)
		}
	case "PM_latentpreview":
		if c.callbacks != nil && c.callbacks.PreviewStarted != nil {
			var start PreviewStart
			if err := json.Unmarshal(ev.Data, &start); err != nil {
				slog.Error("deserializing preview start", "error", err)
				return
			}
			c.callbacks.PreviewStarted(c, start)
		}
	default:
		slog.Warn("Unhandled message type: ", "type", ev.Type)
	}
}

// onBinary decodes a preview frame: two 4-byte type words, the frame
// index, a 16-byte Pascal-string node id, then the JPEG payload.
func (c *Client) onBinary(data []byte) {
	frame, ok := decodePreviewFrame(data)
	if !ok {
		slog.Warn("short binary message", "len", len(data))
		return
	}
	if c.callbacks != nil && c.callbacks.PreviewFrame != nil {
		c.callbacks.PreviewFrame(c, frame)
	}
}

func decodePreviewFrame(data []byte) (PreviewFrame, bool) {
	const header = 12 + 16
	if len(data) < header {
		return PreviewFrame{}, false
	}
	idLen := int(data[12])
	if idLen > 15 {
		idLen = 15
	}
	return PreviewFrame{
		Index:  int(binary.BigEndian.Uint32(data[8:12])),
		NodeID: string(data[13 : 13+idLen]),
		JPEG:   data[header:],
	}, true
}
