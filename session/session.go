package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"voicebridge/protocol"
	"voicebridge/upstream"

	"github.com/gorilla/websocket"
)

const (
	writeBufferSize = 256
	writeTimeout    = 10 * time.Second
)

// Options carries the per-session configuration the relay needs: how to
// reach the upstream and what session.update to inject.
type Options struct {
	Upstream      upstream.Config
	SessionConfig protocol.SessionConfig
}

// ClientSession relays frames between one client connection and one
// upstream realtime connection. It owns both connections exclusively;
// closing either side closes both.
type ClientSession struct {
	ID         string
	ClientConn *websocket.Conn
	CreatedAt  time.Time

	opts Options

	// All outgoing client writes funnel through one goroutine
	writeChan chan []byte

	mu           sync.RWMutex
	up           *upstream.Client
	state        protocol.State
	sessionID    string // upstream's opaque session id
	lastActivity time.Time
	closed       bool

	CloseChan chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClientSession wires a session around an accepted client connection.
// The upstream is not dialed until Start.
func NewClientSession(ctx context.Context, id string, clientConn *websocket.Conn, opts Options) *ClientSession {
	ctx, cancel := context.WithCancel(ctx)

	clientConn.SetReadLimit(512 * 1024) // 512KB max message

	return &ClientSession{
		ID:           id,
		ClientConn:   clientConn,
		CreatedAt:    time.Now(),
		opts:         opts,
		writeChan:    make(chan []byte, writeBufferSize),
		state:        protocol.StateIdle,
		lastActivity: time.Now(),
		CloseChan:    make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins the bidirectional relay: the client write pump, the upstream
// dial, and the client read loop. Returns immediately.
func (cs *ClientSession) Start() {
	go cs.writePump()
	go cs.connectUpstream()
	go cs.handleClientMessages()
}

// connectUpstream dials the realtime API and wires the downlink pump.
// On failure the client is told via an error frame and the client connection
// stays open; reconnection is a new client connection.
func (cs *ClientSession) connectUpstream() {
	cs.setState(protocol.StateConnecting)

	up, err := upstream.Dial(cs.ctx, cs.opts.Upstream)
	if err != nil {
		log.Printf("❌ [%s] Upstream connect failed: %v", cs.ID[:8], err)
		cs.setState(protocol.StateFailed)
		cs.queueFrame(protocol.NewErrorFrame(err.Error()))
		return
	}

	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		up.Close()
		return
	}
	cs.up = up
	cs.state = protocol.StateConnected
	cs.mu.Unlock()

	up.OnMessage = cs.handleUpstreamFrame
	up.OnClose = cs.onUpstreamClose

	// Queue the connected frame before the read pump starts so it always
	// precedes relayed upstream frames.
	log.Printf("✅ [%s] Connected to upstream realtime API", cs.ID[:8])
	cs.queueFrame(protocol.NewConnectionFrame("connected", ""))

	up.StartReceiving(cs.ctx)
}

// handleClientMessages reads frames from the client and forwards them
// upstream verbatim. Malformed frames are dropped per-frame; a read error
// tears the session down.
func (cs *ClientSession) handleClientMessages() {
	defer cs.Close()

	for {
		_, raw, err := cs.ClientConn.ReadMessage()
		if err != nil {
			if !cs.IsClosed() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("🔌 [%s] Client read error: %v", cs.ID[:8], err)
			}
			return
		}

		cs.touch()

		frame, err := protocol.Parse(raw)
		if err != nil {
			log.Printf("⚠️ [%s] Dropping malformed client frame: %v", cs.ID[:8], err)
			continue
		}

		cs.forwardToUpstream(frame.Type, raw)
	}
}

// forwardToUpstream relays one client frame verbatim. Frames arriving before
// the upstream is open are dropped, not queued — audio sent before readiness
// is inherently stale.
func (cs *ClientSession) forwardToUpstream(frameType string, raw []byte) {
	up := cs.upstreamClient()
	if up == nil {
		return
	}
	if err := up.Send(raw); err != nil {
		if errors.Is(err, upstream.ErrNotConnected) {
			return
		}
		log.Printf("❌ [%s] Forward to upstream failed (%s): %v", cs.ID[:8], frameType, err)
	}
}

// handleUpstreamFrame runs on the upstream read pump, so downlink order is
// preserved end to end. The one synthesized uplink frame — session.update —
// is injected here, strictly after session.created is observed.
func (cs *ClientSession) handleUpstreamFrame(raw []byte) {
	cs.touch()

	frame, err := protocol.Parse(raw)
	if err != nil {
		log.Printf("⚠️ [%s] Dropping malformed upstream frame: %v", cs.ID[:8], err)
		return
	}

	cs.advance(frame.Type)

	if frame.Type == protocol.TypeSessionCreated {
		if ev, ok := frame.Event.(protocol.SessionCreated); ok {
			cs.mu.Lock()
			cs.sessionID = ev.Session.ID
			cs.mu.Unlock()
			log.Printf("📋 [%s] Upstream session created: %s", cs.ID[:8], ev.Session.ID)
		}
		cs.configureSession()
	}

	cs.queueFrame(raw)
}

// configureSession sends the session.update configuration frame upstream.
func (cs *ClientSession) configureSession() {
	data, err := protocol.NewSessionUpdateFrame(cs.opts.SessionConfig)
	if err != nil {
		log.Printf("❌ [%s] Building session.update failed: %v", cs.ID[:8], err)
		return
	}

	up := cs.upstreamClient()
	if up == nil {
		return
	}
	if err := up.Send(data); err != nil {
		log.Printf("❌ [%s] Sending session.update failed: %v", cs.ID[:8], err)
		cs.queueFrame(protocol.NewErrorFrame("failed to configure session: " + err.Error()))
		return
	}
	log.Printf("⚙️ [%s] Injected session.update", cs.ID[:8])
}

// onUpstreamClose notifies the client and tears the session down. The
// disconnect frame is queued before Close so the write pump drains it to the
// client before the connection is shut.
func (cs *ClientSession) onUpstreamClose(err error) {
	if cs.IsClosed() {
		return
	}

	msg := ""
	if err != nil {
		msg = err.Error()
		cs.setState(protocol.StateFailed)
		log.Printf("❌ [%s] Upstream disconnected: %v", cs.ID[:8], err)
	} else {
		log.Printf("🔌 [%s] Upstream disconnected", cs.ID[:8])
	}

	cs.queueFrame(protocol.NewConnectionFrame("disconnected", msg))
	cs.Close()
}

// writePump handles all outgoing client writes in a single goroutine and
// owns the final close of the client connection, so frames queued before
// Close are still delivered.
func (cs *ClientSession) writePump() {
	defer func() {
		cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
		cs.ClientConn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		cs.ClientConn.Close()
	}()

	for raw := range cs.writeChan {
		cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := cs.ClientConn.WriteMessage(websocket.TextMessage, raw); err != nil {
			go cs.Close()
			// Keep draining so Close can finish closing the channel
			for range cs.writeChan {
			}
			return
		}
	}
}

// queueFrame adds a frame to the write queue (non-blocking).
func (cs *ClientSession) queueFrame(raw []byte) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if cs.closed {
		return
	}
	select {
	case cs.writeChan <- raw:
	default:
		// Queue full, drop frame (shouldn't happen with proper sizing)
	}
}

func (cs *ClientSession) upstreamClient() *upstream.Client {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.up
}

// State returns the current session state.
func (cs *ClientSession) State() protocol.State {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.state
}

// SessionID returns the upstream's opaque session id, once known.
func (cs *ClientSession) SessionID() string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.sessionID
}

// LastActive returns the time of the last frame in either direction.
func (cs *ClientSession) LastActive() time.Time {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.lastActivity
}

func (cs *ClientSession) touch() {
	cs.mu.Lock()
	cs.lastActivity = time.Now()
	cs.mu.Unlock()
}

func (cs *ClientSession) setState(s protocol.State) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.state.Terminal() {
		return
	}
	cs.state = s
}

func (cs *ClientSession) advance(frameType string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	next := protocol.Advance(cs.state, frameType)
	if next != cs.state {
		log.Printf("🔄 [%s] %s -> %s (%s)", cs.ID[:8], cs.state, next, frameType)
		cs.state = next
	}
}

// IsClosed returns whether the session is closed
func (cs *ClientSession) IsClosed() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.closed
}

// Close terminates the session and both connections. Idempotent: closing an
// already-closed session is a no-op.
func (cs *ClientSession) Close() error {
	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		return nil
	}
	cs.closed = true
	if !cs.state.Terminal() {
		cs.state = protocol.StateClosed
	}
	up := cs.up
	cs.mu.Unlock()

	cs.cancel()

	// Closing the channel lets writePump drain queued frames, then close
	// the client connection.
	close(cs.writeChan)
	close(cs.CloseChan)

	if up != nil {
		up.Close()
	}

	return nil
}
