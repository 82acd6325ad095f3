package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Event is the JSON envelope sent to websocket subscribers.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub tracks websocket subscribers and broadcasts events and binary
// preview frames to all of them.  Slow subscribers lose messages instead
// of stalling the sender.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*hubClient]bool
}

type hubClient struct {
	send chan outbound
}

type outbound struct {
	messageType int
	payload     []byte
}

const clientSendBuffer = 64

func newHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			// The frontend runs on its own origin during development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: map[*hubClient]bool{},
	}
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &hubClient{send: make(chan outbound, clientSendBuffer)}
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	slog.Debug("websocket client connected", "remote", r.RemoteAddr)

	go h.writeLoop(conn, client)
	h.readLoop(conn, client)
}

func (h *Hub) writeLoop(conn *websocket.Conn, client *hubClient) {
	for msg := range client.send {
		if err := conn.WriteMessage(msg.messageType, msg.payload); err != nil {
			break
		}
	}
	conn.Close()
}

// readLoop drains the connection; clients do not send anything the server
// acts on, but reads surface disconnects.
func (h *Hub) readLoop(conn *websocket.Conn, client *hubClient) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
	close(client.send)
}

// BroadcastEvent sends a JSON event envelope to every subscriber.
func (h *Hub) BroadcastEvent(eventType string, data interface{}) {
	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		slog.Error("marshaling event", "type", eventType, "error", err)
		return
	}
	h.broadcast(outbound{messageType: websocket.TextMessage, payload: payload})
}

// BroadcastBinary sends a binary frame to every subscriber.
func (h *Hub) BroadcastBinary(payload []byte) {
	h.broadcast(outbound{messageType: websocket.BinaryMessage, payload: payload})
}

func (h *Hub) broadcast(msg outbound) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			// Buffer full: drop the message for this client.
		}
	}
}

// ClientCount reports the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
