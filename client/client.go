// Package client is the voice-client side of the relay: it connects to the
// relay's realtime endpoint, dispatches downlink frames to a transcript sink
// and a playback queue, and streams captured microphone windows uplink.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"voicebridge/protocol"

	"github.com/gorilla/websocket"
)

const (
	dialTimeout  = 15 * time.Second
	writeTimeout = 10 * time.Second
)

// ErrClosed is returned when sending on a closed client.
var ErrClosed = errors.New("client closed")

// Client owns one connection to the relay and the client-side pipelines
// around it. One recording stream and one playback queue exist per client.
type Client struct {
	conn       *websocket.Conn
	Dispatcher *Dispatcher
	Playback   *PlaybackQueue

	capture   *Capture
	recording bool

	writeMu sync.Mutex
	mu      sync.RWMutex
	closed  bool

	CloseChan chan struct{}
}

// Dial connects to the relay's realtime endpoint.
func Dial(ctx context.Context, url string, sink Sink, player Player) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	playback := NewPlaybackQueue(player)
	c := &Client{
		conn:       conn,
		Dispatcher: NewDispatcher(sink, playback),
		Playback:   playback,
		CloseChan:  make(chan struct{}),
	}
	c.capture = NewCapture(DefaultWindowSize, func(frame []byte) {
		// Capture windows racing a teardown are stale; drop them.
		_ = c.send(frame)
	})
	return c, nil
}

// Run reads downlink frames and dispatches them until the connection closes
// or the context is canceled. Blocks; call from the main loop.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()
	defer c.Close()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.isClosed() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("relay read: %w", err)
		}
		c.Dispatcher.Dispatch(raw)
	}
}

// StartRecording begins streaming microphone windows uplink. samples is fed
// by the capture device callback; the capture task drains it until the
// channel closes or recording stops.
func (c *Client) StartRecording(ctx context.Context, samples <-chan []float32) error {
	c.mu.Lock()
	if c.recording {
		c.mu.Unlock()
		return errors.New("already recording")
	}
	c.recording = true
	c.mu.Unlock()

	go func() {
		c.capture.Run(ctx, samples)
		c.mu.Lock()
		c.recording = false
		c.mu.Unlock()
	}()
	return nil
}

// Recording reports whether a capture task is active.
func (c *Client) Recording() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recording
}

// SendSessionUpdate sends a client-side session.update, overriding the
// relay's auto-configuration.
func (c *Client) SendSessionUpdate(cfg protocol.SessionConfig) error {
	frame, err := protocol.NewSessionUpdateFrame(cfg)
	if err != nil {
		return err
	}
	return c.send(frame)
}

func (c *Client) send(raw []byte) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("relay write: %w", err)
	}
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close shuts the relay connection. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.CloseChan)
	return c.conn.Close()
}
