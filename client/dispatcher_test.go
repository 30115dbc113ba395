package client

import (
	"bytes"
	"encoding/base64"
	"sync"
	"testing"

	"voicebridge/protocol"
)

type fakeSink struct {
	mu       sync.Mutex
	statuses []string
	messages []TranscriptEvent
	audio    [][]byte
}

func (s *fakeSink) OnStatus(status, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
}

func (s *fakeSink) OnMessage(ev TranscriptEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, ev)
}

func (s *fakeSink) OnAudioChunk(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, chunk)
}

func newTestDispatcher() (*Dispatcher, *fakeSink, *recordingPlayer) {
	sink := &fakeSink{}
	player := &recordingPlayer{}
	return NewDispatcher(sink, NewPlaybackQueue(player)), sink, player
}

func TestDispatcherTranscriptAccumulation(t *testing.T) {
	d, sink, _ := newTestDispatcher()

	d.Dispatch([]byte(`{"type":"response.audio_transcript.delta","delta":"Hel"}`))
	d.Dispatch([]byte(`{"type":"response.audio_transcript.delta","delta":"lo "}`))
	d.Dispatch([]byte(`{"type":"response.audio_transcript.delta","delta":"world"}`))
	d.Dispatch([]byte(`{"type":"response.audio_transcript.done","transcript":"Hello world"}`))

	if len(sink.messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(sink.messages))
	}

	partials := []string{"Hel", "Hello ", "Hello world"}
	for i, want := range partials {
		got := sink.messages[i]
		if got.Role != RoleAssistant || got.Final || got.Text != want {
			t.Errorf("partial %d = %+v, want assistant partial %q", i, got, want)
		}
	}

	final := sink.messages[3]
	if final.Role != RoleAssistant || !final.Final || final.Text != "Hello world" {
		t.Errorf("final = %+v, want final assistant %q", final, "Hello world")
	}
}

func TestDispatcherResponseDoneFinalizesPending(t *testing.T) {
	d, sink, _ := newTestDispatcher()

	d.Dispatch([]byte(`{"type":"response.audio_transcript.delta","delta":"partial answer"}`))
	d.Dispatch([]byte(`{"type":"response.done"}`))

	last := sink.messages[len(sink.messages)-1]
	if !last.Final || last.Text != "partial answer" {
		t.Errorf("got %+v, want finalized %q", last, "partial answer")
	}

	// A second response.done with nothing pending emits nothing
	before := len(sink.messages)
	d.Dispatch([]byte(`{"type":"response.done"}`))
	if len(sink.messages) != before {
		t.Error("response.done with no pending transcript should emit nothing")
	}
}

func TestDispatcherAudioDelta(t *testing.T) {
	d, sink, player := newTestDispatcher()

	pcmChunk := []byte{0x00, 0x40, 0xff, 0x7f}
	b64 := base64.StdEncoding.EncodeToString(pcmChunk)
	d.Dispatch([]byte(`{"type":"response.audio.delta","delta":"` + b64 + `"}`))

	if len(sink.audio) != 1 || !bytes.Equal(sink.audio[0], pcmChunk) {
		t.Fatalf("sink audio = %v, want %v", sink.audio, pcmChunk)
	}
	if got := player.playedChunks(); len(got) != 1 || !bytes.Equal(got[0], pcmChunk) {
		t.Fatalf("playback got %v, want %v", got, pcmChunk)
	}
}

func TestDispatcherUndecodableAudioDropped(t *testing.T) {
	d, sink, player := newTestDispatcher()

	d.Dispatch([]byte(`{"type":"response.audio.delta","delta":"not base64!!!"}`))

	if len(sink.audio) != 0 || len(player.playedChunks()) != 0 {
		t.Error("undecodable audio delta should be dropped")
	}
}

func TestDispatcherUserTranscription(t *testing.T) {
	d, sink, _ := newTestDispatcher()

	d.Dispatch([]byte(`{"type":"conversation.item.input_audio_transcription.completed","transcript":"hi there"}`))

	if len(sink.messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(sink.messages))
	}
	if m := sink.messages[0]; m.Role != RoleUser || !m.Final || m.Text != "hi there" {
		t.Errorf("got %+v, want final user %q", m, "hi there")
	}

	// Empty transcripts are not emitted
	d.Dispatch([]byte(`{"type":"conversation.item.input_audio_transcription.completed","transcript":""}`))
	if len(sink.messages) != 1 {
		t.Error("empty user transcript should emit nothing")
	}
}

func TestDispatcherSessionCreated(t *testing.T) {
	d, _, _ := newTestDispatcher()

	var hookID string
	d.OnSessionCreated = func(sessionID string) { hookID = sessionID }

	d.Dispatch([]byte(`{"type":"connection","status":"connected"}`))
	d.Dispatch([]byte(`{"type":"session.created","session":{"id":"sess_abc"}}`))

	if d.SessionID() != "sess_abc" {
		t.Errorf("SessionID() = %q, want sess_abc", d.SessionID())
	}
	if hookID != "sess_abc" {
		t.Errorf("hook got %q, want sess_abc", hookID)
	}
	if d.State() != protocol.StateConfiguring {
		t.Errorf("State() = %s, want configuring", d.State())
	}

	d.Dispatch([]byte(`{"type":"session.updated"}`))
	if d.State() != protocol.StateReady {
		t.Errorf("State() = %s, want ready", d.State())
	}
}

func TestDispatcherErrorEvent(t *testing.T) {
	d, sink, _ := newTestDispatcher()

	d.Dispatch([]byte(`{"type":"error","error":{"message":"rate limited"}}`))

	if len(sink.messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(sink.messages))
	}
	if m := sink.messages[0]; m.Role != RoleError || m.Text != "rate limited" {
		t.Errorf("got %+v, want error %q", m, "rate limited")
	}

	// An error with no message gets a generic one
	d.Dispatch([]byte(`{"type":"error"}`))
	if m := sink.messages[1]; m.Text != "An error occurred" {
		t.Errorf("got %q, want generic error text", m.Text)
	}
}

func TestDispatcherIgnoresUnknownAndMalformed(t *testing.T) {
	d, sink, _ := newTestDispatcher()

	d.Dispatch([]byte(`{"type":"rate_limits.updated","rate_limits":[]}`))
	d.Dispatch([]byte(`not json at all`))
	d.Dispatch([]byte(`{"no_type_field":true}`))

	if len(sink.messages) != 0 || len(sink.statuses) != 0 {
		t.Error("unknown and malformed frames should have no side effects")
	}
}

func TestDispatcherDisconnectedIsTerminal(t *testing.T) {
	d, sink, _ := newTestDispatcher()

	d.Dispatch([]byte(`{"type":"connection","status":"connected"}`))
	d.Dispatch([]byte(`{"type":"connection","status":"disconnected","message":"upstream gone"}`))

	if d.State() != protocol.StateClosed {
		t.Errorf("State() = %s, want closed", d.State())
	}
	if len(sink.statuses) != 2 {
		t.Errorf("got %d statuses, want 2", len(sink.statuses))
	}
}
