package client

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/gorilla/websocket"
)

func previewFrameBytes(index uint32, nodeID string, jpeg []byte) []byte {
	buf := make([]byte, 0, 28+len(jpeg))
	word := make([]byte, 4)
	binary.BigEndian.PutUint32(word, 1)
	buf = append(buf, word...)
	buf = append(buf, word...)
	binary.BigEndian.PutUint32(word, index)
	buf = append(buf, word...)
	id := make([]byte, 16)
	id[0] = byte(len(nodeID))
	copy(id[1:], nodeID)
	buf = append(buf, id...)
	return append(buf, jpeg...)
}

func TestDecodePreviewFrame(t *testing.T) {
	jpeg := []byte{0xff, 0xd8, 0xff, 0xd9}
	frame, ok := decodePreviewFrame(previewFrameBytes(7, "42", jpeg))
	if !ok {
		t.Fatal("decode failed")
	}
	if frame.Index != 7 {
		t.Errorf("index = %d, want 7", frame.Index)
	}
	if frame.NodeID != "42" {
		t.Errorf("node id = %q, want %q", frame.NodeID, "42")
	}
	if !bytes.Equal(frame.JPEG, jpeg) {
		t.Errorf("jpeg = %v", frame.JPEG)
	}
}

func TestDecodePreviewFrameShort(t *testing.T) {
	if _, ok := decodePreviewFrame(make([]byte, 27)); ok {
		t.Error("decoded a truncated frame")
	}
}

func TestOnMessageDispatchesEvents(t *testing.T) {
	var gotPrompts map[string]map[string]string
	advanced := false
	var gotStart PreviewStart
	var gotFrame PreviewFrame

	c := &Client{callbacks: &Callbacks{
		PromptsChanged: func(_ *Client, p map[string]map[string]string) {
			gotPrompts = p
		},
		AdvancedPromptsChanged: func(*Client) { advanced = true },
		PreviewStarted: func(_ *Client, s PreviewStart) {
			gotStart = s
		},
		PreviewFrame: func(_ *Client, f PreviewFrame) {
			gotFrame = f
		},
	}}

	c.OnMessage(websocket.TextMessage, []byte(`{"type":"prompt-manager-update-text","data":{"Style":{"Noir":"rain"}}}`))
	if gotPrompts["Style"]["Noir"] != "rain" {
		t.Errorf("prompts = %v", gotPrompts)
	}

	c.OnMessage(websocket.TextMessage, []byte(`{"type":"prompt-manager-advanced-update","data":{}}`))
	if !advanced {
		t.Error("advanced callback not fired")
	}

	c.OnMessage(websocket.TextMessage, []byte(`{"type":"PM_latentpreview","data":{"length":12,"rate":8,"id":"31"}}`))
	if gotStart.Length != 12 || gotStart.Rate != 8 || gotStart.NodeID != "31" {
		t.Errorf("preview start = %+v", gotStart)
	}

	c.OnMessage(websocket.BinaryMessage, previewFrameBytes(3, "31", []byte{0xff, 0xd8}))
	if gotFrame.Index != 3 || gotFrame.NodeID != "31" {
		t.Errorf("preview frame = %+v", gotFrame)
	}
}

func TestOnMessageNilCallbacks(t *testing.T) {
	c := &Client{}
	c.OnMessage(websocket.TextMessage, []byte(`{"type":"prompt-manager-update-text","data":{}}`))
	c.OnMessage(websocket.BinaryMessage, previewFrameBytes(0, "1", nil))
}
