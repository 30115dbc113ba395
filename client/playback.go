package client

import "sync"

// Player plays one PCM16 chunk on the output device and invokes done exactly
// once when that chunk has finished.
type Player interface {
	Play(chunk []byte, done func())
}

// PlaybackQueue plays audio chunks strictly in arrival order, one at a time,
// gapless. At most one chunk is in flight on the Player; the completion
// callback chains the next chunk, and an idle queue restarts the instant a
// new chunk arrives.
type PlaybackQueue struct {
	player Player

	mu      sync.Mutex
	queue   [][]byte
	playing bool
}

// NewPlaybackQueue creates a queue driving the given player.
func NewPlaybackQueue(player Player) *PlaybackQueue {
	return &PlaybackQueue{player: player}
}

// Enqueue appends a chunk to the tail. If nothing is currently playing,
// playback of the head starts immediately.
func (q *PlaybackQueue) Enqueue(chunk []byte) {
	q.mu.Lock()
	q.queue = append(q.queue, chunk)
	if q.playing {
		q.mu.Unlock()
		return
	}
	q.playing = true
	next := q.pop()
	q.mu.Unlock()

	// Play outside the lock: a synchronous player may invoke done inline.
	q.player.Play(next, q.onDone)
}

// onDone is the completion callback for the chunk in flight.
func (q *PlaybackQueue) onDone() {
	q.mu.Lock()
	if len(q.queue) == 0 {
		q.playing = false
		q.mu.Unlock()
		return
	}
	next := q.pop()
	q.mu.Unlock()

	q.player.Play(next, q.onDone)
}

func (q *PlaybackQueue) pop() []byte {
	next := q.queue[0]
	q.queue[0] = nil
	q.queue = q.queue[1:]
	return next
}

// Idle reports whether no chunk is playing and the queue is empty.
func (q *PlaybackQueue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.playing && len(q.queue) == 0
}

// Len returns the number of queued chunks, excluding the one in flight.
func (q *PlaybackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Clear drops all queued chunks. The chunk in flight, if any, still
// completes; its done callback will find an empty queue and go idle.
func (q *PlaybackQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = nil
}
