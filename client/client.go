// Package client is the Go client for the prompt manager server.  It wraps
// the HTTP API, maintains a reconnecting websocket for library updates and
// latent preview frames, and can run the metadata extractor against local
// files.
package client

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/promptforge/promptforge/metadata"
)

// PreviewStart describes an incoming preview run.
type PreviewStart struct {
	Length int     `json:"length"`
	Rate   float64 `json:"rate"`
	NodeID string  `json:"id"`
}

// PreviewFrame is one decoded binary preview message.
type PreviewFrame struct {
	Index  int
	NodeID string
	JPEG   []byte
}

// Callbacks receive pushed server events.  Any field may be nil.
type Callbacks struct {
	PromptsChanged         func(*Client, map[string]map[string]string)
	AdvancedPromptsChanged func(*Client)
	PreviewStarted         func(*Client, PreviewStart)
	PreviewFrame           func(*Client, PreviewFrame)
}

// Client talks to one prompt manager server.
type Client struct {
	serverBaseAddress string
	clientid          string
	callbacks         *Callbacks
	timeout           int
	httpclient        *http.Client
	webSocket         *WebSocketConnection
}

// NewClient creates a client for the server at address:port.
func NewClient(address string, port int, callbacks *Callbacks) *Client {
	return NewClientWithTimeout(address, port, callbacks, -1)
}

// NewClientWithTimeout creates a client whose websocket connect attempt
// gives up after timeout seconds (negative waits indefinitely).
func NewClientWithTimeout(address string, port int, callbacks *Callbacks, timeout int) *Client {
	return &Client{
		serverBaseAddress: address + ":" + strconv.Itoa(port),
		clientid:          uuid.New().String(),
		callbacks:         callbacks,
		timeout:           timeout,
		httpclient:        &http.Client{},
	}
}

// ClientID returns the unique ID sent with websocket registration.
func (c *Client) ClientID() string {
	return c.clientid
}

func (c *Client) HttpClient() *http.Client {
	return c.httpclient
}

func (c *Client) SetHttpClient(client *http.Client) {
	c.httpclient = client
}

// Connect establishes the websocket.  HTTP methods work without it; only
// pushed events need the connection.
func (c *Client) Connect() error {
	if c.webSocket != nil && c.webSocket.IsConnected {
		return nil
	}
	c.webSocket = &WebSocketConnection{
		WebSocketURL:   fmt.Sprintf("ws://%s/ws?clientId=%s", c.serverBaseAddress, c.clientid),
		ConnectionDone: make(chan bool),
		MaxRetry:       5,
		BaseDelay:      1 * time.Second,
		MaxDelay:       1 * time.Minute,
		Dialer:         websocket.Dialer{},
		Callback:       c,
	}
	return c.webSocket.ConnectWithManager(c.timeout)
}

// IsConnected reports whether the websocket is up.
func (c *Client) IsConnected() bool {
	return c.webSocket != nil && c.webSocket.IsConnected
}

// Close shuts the websocket down.
func (c *Client) Close() {
	if c.webSocket != nil {
		c.webSocket.Close()
	}
}

// ExtractFile runs the metadata core on a local file, sniffing the format
// from the filename.
func (c *Client) ExtractFile(path string, opts ...metadata.Option) (*metadata.Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	kind := metadata.KindForPath(path)
	if kind == "" {
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}
	return metadata.Extract(data, kind, opts...), nil
}
