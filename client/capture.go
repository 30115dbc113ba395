package client

import (
	"context"

	"voicebridge/pcm"
	"voicebridge/protocol"
)

const (
	// SampleRate is the capture and playback rate the realtime API expects.
	SampleRate = 24000

	// DefaultWindowSize is 200ms of mono audio at 24kHz.
	DefaultWindowSize = 4800
)

// Capture buffers microphone samples into fixed-size windows and emits one
// input_audio_buffer.append frame per full window. Partial trailing windows
// are discarded on stop — they are never sent.
type Capture struct {
	window []float32
	filled int
	emit   func(frame []byte)
}

// NewCapture creates a capture pipeline with the given window size in
// samples. emit receives each complete, encoded uplink frame.
func NewCapture(windowSize int, emit func(frame []byte)) *Capture {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Capture{
		window: make([]float32, windowSize),
		emit:   emit,
	}
}

// Push appends captured samples, emitting a frame for every window filled.
func (c *Capture) Push(samples []float32) {
	for len(samples) > 0 {
		n := copy(c.window[c.filled:], samples)
		c.filled += n
		samples = samples[n:]

		if c.filled == len(c.window) {
			b64 := pcm.EncodeBase64(pcm.FloatToPCM16(c.window))
			c.emit(protocol.NewAudioAppendFrame(b64))
			c.filled = 0
		}
	}
}

// Reset discards any partially filled window.
func (c *Capture) Reset() {
	c.filled = 0
}

// Run consumes sample batches from a single producer until the channel
// closes or the context is canceled, then discards the partial window.
// This is the capture task the device callback feeds.
func (c *Capture) Run(ctx context.Context, samples <-chan []float32) {
	defer c.Reset()

	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-samples:
			if !ok {
				return
			}
			c.Push(batch)
		}
	}
}
