// Package upstream owns the relay-side connection to the Azure OpenAI
// Realtime API. Each client session holds exactly one upstream Client;
// frames are passed through as raw bytes in both directions.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

const (
	dialTimeout  = 15 * time.Second
	writeTimeout = 10 * time.Second
)

// ErrNotConnected is returned when sending on a closed or never-opened
// connection. Callers forwarding audio treat this as a silent drop.
var ErrNotConnected = errors.New("upstream not connected")

// Config identifies the upstream endpoint and deployment.
type Config struct {
	Endpoint   string // https://<resource>.openai.azure.com
	APIKey     string
	Deployment string
	APIVersion string
}

// URL builds the realtime WebSocket URL: https is rewritten to wss and the
// api-version/deployment query parameters are appended.
func (c Config) URL() (string, error) {
	base := strings.TrimSuffix(c.Endpoint, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "wss://"), strings.HasPrefix(base, "ws://"):
	default:
		return "", fmt.Errorf("unsupported endpoint scheme: %s", c.Endpoint)
	}

	q := url.Values{}
	q.Set("api-version", c.APIVersion)
	q.Set("deployment", c.Deployment)
	return base + "/openai/realtime?" + q.Encode(), nil
}

// Client is the upstream leg of one relay session.
type Client struct {
	conn *websocket.Conn

	// Callbacks for the read pump
	OnMessage func(raw []byte) // one inbound frame, original bytes
	OnClose   func(err error)  // read pump ended; err is nil on clean close

	writeMu sync.Mutex
	mu      sync.RWMutex
	closed  bool
}

// Dial opens the upstream WebSocket with the auth headers the realtime API
// requires. Callbacks must be assigned before StartReceiving.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	wsURL, err := cfg.URL()
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("api-key", cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("upstream dial rejected (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("upstream dial failed: %w", err)
	}

	return &Client{conn: conn}, nil
}

// StartReceiving runs the read pump until the connection drops or the
// context is canceled. Frames are delivered in arrival order on a single
// goroutine, so relative ordering is preserved downstream.
func (c *Client) StartReceiving(ctx context.Context) {
	go func() {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()

		for {
			_, raw, err := c.conn.ReadMessage()
			if err != nil {
				// A session-initiated Close also lands here; in that case the
				// teardown is already underway and OnClose must stay quiet.
				if c.IsClosed() {
					return
				}
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					err = nil
				} else {
					log.Printf("❌ Upstream read error: %v", err)
				}
				c.Close()
				if c.OnClose != nil {
					c.OnClose(err)
				}
				return
			}
			if c.OnMessage != nil {
				c.OnMessage(raw)
			}
		}
	}()
}

// Send writes one raw frame upstream. Returns ErrNotConnected after Close.
func (c *Client) Send(raw []byte) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("upstream write failed: %w", err)
	}
	return nil
}

// SendJSON marshals and sends one frame upstream.
func (c *Client) SendJSON(v any) error {
	raw, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return c.Send(raw)
}

// IsClosed reports whether Close has been called.
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close terminates the upstream connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.conn.Close()
}
