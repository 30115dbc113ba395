package client

import (
	"log"
	"strings"
	"sync"

	"voicebridge/pcm"
	"voicebridge/protocol"
)

// Role tags who a transcript entry belongs to.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

// TranscriptEvent is one entry for the transcript sink. Assistant entries
// stream: partial text arrives with Final=false and accumulates until a done
// event finalizes it.
type TranscriptEvent struct {
	Role  Role
	Text  string
	Final bool
}

// Sink receives the UI-facing side effects of dispatched frames. The visual
// presentation behind it is not this package's concern.
type Sink interface {
	OnStatus(status, message string)
	OnMessage(ev TranscriptEvent)
	OnAudioChunk(chunk []byte)
}

// Dispatcher routes downlink frames by their type discriminator to the
// playback queue, the transcript sink, and the session state. Unknown types
// are logged and ignored so upstream schema additions pass through harmless.
type Dispatcher struct {
	sink     Sink
	playback *PlaybackQueue

	// OnSessionCreated, when set, runs after session.created is observed —
	// the hook for clients that override the relay's auto-configuration.
	OnSessionCreated func(sessionID string)

	mu        sync.Mutex
	state     protocol.State
	sessionID string
	assistant strings.Builder
	pending   bool
}

// NewDispatcher wires a dispatcher to its sink and playback queue.
func NewDispatcher(sink Sink, playback *PlaybackQueue) *Dispatcher {
	return &Dispatcher{
		sink:     sink,
		playback: playback,
		state:    protocol.StateConnecting,
	}
}

// State returns the session state as observed from dispatched frames.
func (d *Dispatcher) State() protocol.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// SessionID returns the upstream session id, once known.
func (d *Dispatcher) SessionID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessionID
}

// Dispatch parses one downlink frame and applies its effects. Malformed
// frames are dropped and logged; they never stop the dispatcher.
func (d *Dispatcher) Dispatch(raw []byte) {
	frame, err := protocol.Parse(raw)
	if err != nil {
		log.Printf("⚠️ Dropping malformed frame: %v", err)
		return
	}

	d.advance(frame.Type)

	switch frame.Type {
	case protocol.TypeConnection:
		ev := frame.Event.(protocol.ConnectionStatus)
		d.setConnection(ev.Status)
		d.sink.OnStatus(ev.Status, ev.Message)

	case protocol.TypeSessionCreated:
		ev := frame.Event.(protocol.SessionCreated)
		d.mu.Lock()
		d.sessionID = ev.Session.ID
		d.mu.Unlock()
		d.sink.OnStatus("session.created", ev.Session.ID)
		if d.OnSessionCreated != nil {
			d.OnSessionCreated(ev.Session.ID)
		}

	case protocol.TypeSessionUpdated:
		d.sink.OnStatus("session.updated", "Session ready")

	case protocol.TypeSpeechStarted:
		d.sink.OnStatus("speech_started", "Speech detected...")

	case protocol.TypeSpeechStopped:
		d.sink.OnStatus("speech_stopped", "")

	case protocol.TypeInputTranscriptionCompleted:
		ev := frame.Event.(protocol.InputTranscriptionCompleted)
		if ev.Transcript != "" {
			d.sink.OnMessage(TranscriptEvent{Role: RoleUser, Text: ev.Transcript, Final: true})
		}

	case protocol.TypeResponseTranscriptDelta:
		ev := frame.Event.(protocol.Delta)
		d.mu.Lock()
		d.assistant.WriteString(ev.Delta)
		d.pending = true
		text := d.assistant.String()
		d.mu.Unlock()
		d.sink.OnMessage(TranscriptEvent{Role: RoleAssistant, Text: text})

	case protocol.TypeResponseTranscriptDone:
		ev := frame.Event.(protocol.TranscriptDone)
		d.finalizeAssistant(ev.Transcript)

	case protocol.TypeResponseAudioDelta:
		ev := frame.Event.(protocol.Delta)
		chunk, err := pcm.DecodeBase64(ev.Delta)
		if err != nil {
			log.Printf("⚠️ Dropping undecodable audio delta: %v", err)
			return
		}
		d.sink.OnAudioChunk(chunk)
		d.playback.Enqueue(chunk)

	case protocol.TypeResponseDone:
		// Finalize any transcript still pending (no .done frame arrived)
		d.finalizeAssistant("")

	case protocol.TypeError:
		ev := frame.Event.(protocol.ErrorEvent)
		msg := ev.ErrMessage()
		if msg == "" {
			msg = "An error occurred"
		}
		d.sink.OnMessage(TranscriptEvent{Role: RoleError, Text: msg, Final: true})

	default:
		log.Printf("Unhandled frame type: %s", frame.Type)
	}
}

// finalizeAssistant emits the finalized assistant transcript. The done
// frame's full transcript wins over the accumulated deltas when present.
func (d *Dispatcher) finalizeAssistant(full string) {
	d.mu.Lock()
	if !d.pending && full == "" {
		d.mu.Unlock()
		return
	}
	text := full
	if text == "" {
		text = d.assistant.String()
	}
	d.assistant.Reset()
	d.pending = false
	d.mu.Unlock()

	d.sink.OnMessage(TranscriptEvent{Role: RoleAssistant, Text: text, Final: true})
}

func (d *Dispatcher) advance(frameType string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = protocol.Advance(d.state, frameType)
}

func (d *Dispatcher) setConnection(status string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch status {
	case "connected":
		if d.state == protocol.StateConnecting {
			d.state = protocol.StateConnected
		}
	case "disconnected":
		d.state = protocol.StateClosed
	}
}
