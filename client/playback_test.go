package client

import (
	"bytes"
	"sync"
	"testing"
)

// recordingPlayer records the order chunks are played and lets the test
// control when each one completes.
type recordingPlayer struct {
	mu        sync.Mutex
	played    [][]byte
	inFlight  int
	maxFlight int
	done      []func()
}

func (p *recordingPlayer) Play(chunk []byte, done func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, chunk)
	p.inFlight++
	if p.inFlight > p.maxFlight {
		p.maxFlight = p.inFlight
	}
	p.done = append(p.done, done)
}

// complete finishes the oldest unfinished chunk.
func (p *recordingPlayer) complete() {
	p.mu.Lock()
	if len(p.done) == 0 {
		p.mu.Unlock()
		return
	}
	done := p.done[0]
	p.done = p.done[1:]
	p.inFlight--
	p.mu.Unlock()
	done()
}

func (p *recordingPlayer) playedChunks() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.played...)
}

func TestPlaybackQueueStrictOrder(t *testing.T) {
	p := &recordingPlayer{}
	q := NewPlaybackQueue(p)

	c1, c2, c3 := []byte("one"), []byte("two"), []byte("three")
	q.Enqueue(c1)
	q.Enqueue(c2)
	q.Enqueue(c3)

	// Only the head plays until it completes
	if got := p.playedChunks(); len(got) != 1 || !bytes.Equal(got[0], c1) {
		t.Fatalf("expected only first chunk in flight, got %d played", len(got))
	}
	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}

	p.complete()
	p.complete()
	p.complete()

	got := p.playedChunks()
	if len(got) != 3 {
		t.Fatalf("played %d chunks, want 3", len(got))
	}
	for i, want := range [][]byte{c1, c2, c3} {
		if !bytes.Equal(got[i], want) {
			t.Errorf("chunk %d = %q, want %q", i, got[i], want)
		}
	}
	if p.maxFlight != 1 {
		t.Errorf("max chunks in flight = %d, want 1", p.maxFlight)
	}
	if !q.Idle() {
		t.Error("queue should be idle after all chunks complete")
	}
}

func TestPlaybackQueueIdleRestart(t *testing.T) {
	p := &recordingPlayer{}
	q := NewPlaybackQueue(p)

	q.Enqueue([]byte("a"))
	p.complete()
	if !q.Idle() {
		t.Fatal("queue should be idle")
	}

	// A chunk arriving at an idle queue starts playing immediately
	q.Enqueue([]byte("b"))
	if q.Idle() {
		t.Error("queue should not be idle with a chunk in flight")
	}
	if got := p.playedChunks(); len(got) != 2 {
		t.Fatalf("played %d chunks, want 2", len(got))
	}
	p.complete()
	if !q.Idle() {
		t.Error("queue should be idle again")
	}
}

// synchronousPlayer completes each chunk inline, the way a fast device
// callback might.
type synchronousPlayer struct {
	played int
}

func (p *synchronousPlayer) Play(chunk []byte, done func()) {
	p.played++
	done()
}

func TestPlaybackQueueSynchronousPlayer(t *testing.T) {
	p := &synchronousPlayer{}
	q := NewPlaybackQueue(p)

	for i := 0; i < 10; i++ {
		q.Enqueue([]byte{byte(i)})
	}

	if p.played != 10 {
		t.Errorf("played %d chunks, want 10", p.played)
	}
	if !q.Idle() {
		t.Error("queue should be idle")
	}
}

func TestPlaybackQueueClear(t *testing.T) {
	p := &recordingPlayer{}
	q := NewPlaybackQueue(p)

	q.Enqueue([]byte("a"))
	q.Enqueue([]byte("b"))
	q.Enqueue([]byte("c"))
	q.Clear()

	if q.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", q.Len())
	}

	// The in-flight chunk still completes, then the queue goes idle
	p.complete()
	if !q.Idle() {
		t.Error("queue should be idle after in-flight chunk completes")
	}
	if got := p.playedChunks(); len(got) != 1 {
		t.Errorf("played %d chunks, want 1", len(got))
	}
}
