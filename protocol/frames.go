// Package protocol defines the JSON frames exchanged on both WebSocket legs:
// the upstream realtime event schema (discriminated by "type") and the two
// frame kinds the relay synthesizes itself. Relayed frames are forwarded
// byte-for-byte; parsing here only determines routing, never re-encodes.
package protocol

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// Frame type discriminators recognized by the relay and the client.
const (
	TypeConnection = "connection"
	TypeError      = "error"

	TypeSessionCreated = "session.created"
	TypeSessionUpdate  = "session.update"
	TypeSessionUpdated = "session.updated"

	TypeInputAudioAppend = "input_audio_buffer.append"
	TypeSpeechStarted    = "input_audio_buffer.speech_started"
	TypeSpeechStopped    = "input_audio_buffer.speech_stopped"

	TypeInputTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"

	TypeResponseAudioDelta      = "response.audio.delta"
	TypeResponseTranscriptDelta = "response.audio_transcript.delta"
	TypeResponseTranscriptDone  = "response.audio_transcript.done"
	TypeResponseDone            = "response.done"
)

// ErrMalformedFrame is returned when a frame does not parse as a typed JSON
// object. Malformed frames are dropped per-frame; they never tear down a
// connection.
var ErrMalformedFrame = errors.New("malformed frame")

// envelope sniffs the discriminator before unmarshaling the full event.
type envelope struct {
	Type string `json:"type"`
}

// Frame is a parsed protocol frame. Raw always holds the original bytes so
// relaying stays byte-for-byte. Event carries the typed payload for
// recognized frame kinds and is nil for unknown types, which are still
// forwarded (forward compatibility with upstream schema additions).
type Frame struct {
	Type  string
	Raw   []byte
	Event any
}

// Parse sniffs the type discriminator and decodes the typed payload for
// recognized frame kinds.
func Parse(raw []byte) (Frame, error) {
	var env envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return Frame{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	f := Frame{Type: env.Type, Raw: raw}

	var err error
	switch env.Type {
	case TypeConnection:
		ev := ConnectionStatus{}
		err = sonic.Unmarshal(raw, &ev)
		f.Event = ev
	case TypeError:
		ev := ErrorEvent{}
		err = sonic.Unmarshal(raw, &ev)
		f.Event = ev
	case TypeSessionCreated:
		ev := SessionCreated{}
		err = sonic.Unmarshal(raw, &ev)
		f.Event = ev
	case TypeInputAudioAppend:
		ev := InputAudioAppend{}
		err = sonic.Unmarshal(raw, &ev)
		f.Event = ev
	case TypeInputTranscriptionCompleted:
		ev := InputTranscriptionCompleted{}
		err = sonic.Unmarshal(raw, &ev)
		f.Event = ev
	case TypeResponseAudioDelta, TypeResponseTranscriptDelta:
		ev := Delta{}
		err = sonic.Unmarshal(raw, &ev)
		f.Event = ev
	case TypeResponseTranscriptDone:
		ev := TranscriptDone{}
		err = sonic.Unmarshal(raw, &ev)
		f.Event = ev
	}
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return f, nil
}

// ConnectionStatus is synthesized by the relay to report upstream
// connectivity to the client.
type ConnectionStatus struct {
	Type    string `json:"type"`
	Status  string `json:"status"` // "connected" or "disconnected"
	Message string `json:"message,omitempty"`
}

// ErrorEvent covers both the relay's synthesized errors (flat message) and
// upstream protocol errors (nested error object).
type ErrorEvent struct {
	Type    string       `json:"type"`
	Message string       `json:"message,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail is the nested error object in upstream error events.
type ErrorDetail struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrMessage returns the human-readable message regardless of which shape
// the error arrived in.
func (e ErrorEvent) ErrMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Error != nil {
		return e.Error.Message
	}
	return ""
}

// SessionCreated is the upstream's first event after connecting.
type SessionCreated struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitempty"`
	Session struct {
		ID    string `json:"id"`
		Model string `json:"model,omitempty"`
	} `json:"session"`
}

// InputAudioAppend carries one base64 PCM16 capture window uplink.
type InputAudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// Delta is an incremental audio or transcript fragment. Audio deltas carry
// base64 PCM16; transcript deltas carry text.
type Delta struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
}

// TranscriptDone finalizes an assistant transcript with the complete text.
type TranscriptDone struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
}

// InputTranscriptionCompleted carries the transcription of the user's turn.
type InputTranscriptionCompleted struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
}

// NewConnectionFrame builds a synthesized connection-status frame.
func NewConnectionFrame(status, message string) []byte {
	data, _ := sonic.Marshal(ConnectionStatus{Type: TypeConnection, Status: status, Message: message})
	return data
}

// NewErrorFrame builds a synthesized error frame.
func NewErrorFrame(message string) []byte {
	data, _ := sonic.Marshal(ErrorEvent{Type: TypeError, Message: message})
	return data
}

// NewAudioAppendFrame wraps one base64 capture window in an
// input_audio_buffer.append frame.
func NewAudioAppendFrame(audioB64 string) []byte {
	data, _ := sonic.Marshal(InputAudioAppend{Type: TypeInputAudioAppend, Audio: audioB64})
	return data
}
