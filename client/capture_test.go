package client

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"voicebridge/pcm"
	"voicebridge/protocol"
)

func collectFrames() (*[][]byte, func([]byte)) {
	frames := &[][]byte{}
	return frames, func(frame []byte) { *frames = append(*frames, frame) }
}

func TestCaptureWindowing(t *testing.T) {
	frames, emit := collectFrames()
	c := NewCapture(4, emit)

	// 3 samples: no full window yet
	c.Push([]float32{0.1, 0.2, 0.3})
	if len(*frames) != 0 {
		t.Fatalf("emitted %d frames before window filled", len(*frames))
	}

	// 6 more: completes two windows, 1 sample left over
	c.Push([]float32{0.4, 0.5, 0.6, 0.7, 0.8, 0.9})
	if len(*frames) != 2 {
		t.Fatalf("emitted %d frames, want 2", len(*frames))
	}
}

func TestCaptureFrameContents(t *testing.T) {
	frames, emit := collectFrames()
	c := NewCapture(2, emit)

	samples := []float32{0.5, -0.5}
	c.Push(samples)

	if len(*frames) != 1 {
		t.Fatalf("emitted %d frames, want 1", len(*frames))
	}

	frame, err := protocol.Parse((*frames)[0])
	if err != nil {
		t.Fatalf("emitted frame does not parse: %v", err)
	}
	if frame.Type != protocol.TypeInputAudioAppend {
		t.Fatalf("frame type = %s, want %s", frame.Type, protocol.TypeInputAudioAppend)
	}

	ev := frame.Event.(protocol.InputAudioAppend)
	want := base64.StdEncoding.EncodeToString(pcm.FloatToPCM16(samples))
	if ev.Audio != want {
		t.Errorf("audio payload = %q, want %q", ev.Audio, want)
	}
}

func TestCaptureLargeBatchSplits(t *testing.T) {
	frames, emit := collectFrames()
	c := NewCapture(4, emit)

	// One batch spanning 2.5 windows
	c.Push(make([]float32, 10))
	if len(*frames) != 2 {
		t.Fatalf("emitted %d frames, want 2", len(*frames))
	}
}

func TestCaptureResetDiscardsPartial(t *testing.T) {
	frames, emit := collectFrames()
	c := NewCapture(4, emit)

	c.Push([]float32{0.1, 0.2, 0.3})
	c.Reset()
	c.Push([]float32{0.4})
	if len(*frames) != 0 {
		t.Fatal("partial window survived Reset")
	}

	// The next 3 samples complete a window made only of post-Reset audio
	c.Push([]float32{0.5, 0.6, 0.7})
	if len(*frames) != 1 {
		t.Fatalf("emitted %d frames, want 1", len(*frames))
	}
}

func TestCaptureRunDiscardsTrailingPartial(t *testing.T) {
	frames, emit := collectFrames()
	c := NewCapture(4, emit)

	samples := make(chan []float32, 4)
	done := make(chan struct{})
	go func() {
		c.Run(context.Background(), samples)
		close(done)
	}()

	samples <- []float32{0.1, 0.2, 0.3, 0.4} // full window
	samples <- []float32{0.5, 0.6}           // partial, must be discarded
	close(samples)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after channel close")
	}

	if len(*frames) != 1 {
		t.Fatalf("emitted %d frames, want 1 (trailing partial must be discarded)", len(*frames))
	}
	if c.filled != 0 {
		t.Errorf("filled = %d after Run, want 0", c.filled)
	}
}

func TestCaptureRunStopsOnContextCancel(t *testing.T) {
	_, emit := collectFrames()
	c := NewCapture(4, emit)

	ctx, cancel := context.WithCancel(context.Background())
	samples := make(chan []float32)
	done := make(chan struct{})
	go func() {
		c.Run(ctx, samples)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}
