package main

import (
	"fmt"
	"log"
	"sync"

	"voicebridge/client"
	"voicebridge/pcm"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"
)

const channels = 1

// initAudio sets up microphone capture and speaker output. The returned
// channel carries float32 sample batches from the mic callback; the player
// feeds the playback queue. cleanup tears both devices down.
//
// A failed microphone is not fatal: micErr is returned, samples is nil, and
// the session runs playback-only.
func initAudio() (<-chan []float32, client.Player, func(), error) {
	malgoConfig := malgo.ContextConfig{}
	malgoConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	malgoCtx, err := malgo.InitContext(nil, malgoConfig, nil)
	if err != nil {
		log.Fatalf("❌ Failed to init audio context: %v", err)
	}

	samples := make(chan []float32, 64)
	mic, micErr := newMicReader(malgoCtx.Context, samples)
	if micErr != nil {
		samples = nil
	}

	// 4800 bytes = 100ms of 24kHz mono 16-bit audio. Small buffer keeps
	// latency low at the cost of glitch headroom.
	otoOpts := &oto.NewContextOptions{
		SampleRate:   client.SampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   4800,
	}
	otoCtx, ready, err := oto.NewContext(otoOpts)
	if err != nil {
		log.Fatalf("❌ Failed to init speaker: %v", err)
	}
	<-ready

	speaker := newSpeakerPlayer(otoCtx)

	cleanup := func() {
		if mic != nil {
			mic.Close()
		}
		if samples != nil {
			close(samples)
		}
		speaker.Close()
		malgoCtx.Uninit()
	}

	return samples, speaker, cleanup, micErr
}

// micReader captures S16 audio from the default microphone and pushes it as
// float32 batches onto the samples channel. Batches are dropped, not queued,
// when the consumer falls behind — stale audio is worthless.
type micReader struct {
	device  *malgo.Device
	samples chan<- []float32
}

func newMicReader(ctx malgo.Context, samples chan<- []float32) (*micReader, error) {
	m := &micReader{samples: samples}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = channels
	deviceConfig.SampleRate = client.SampleRate
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			batch := pcm.PCM16ToFloat(pInputSamples)
			select {
			case m.samples <- batch:
			default:
			}
		},
	}

	device, err := malgo.InitDevice(ctx, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("init microphone: %w", err)
	}
	m.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("start microphone: %w", err)
	}

	return m, nil
}

func (m *micReader) Close() {
	if m.device != nil {
		m.device.Stop()
		m.device.Uninit()
	}
}

// speakerPlayer implements client.Player on an oto pull-based player. Chunks
// are appended to a FIFO byte buffer the oto player drains, so arrival order
// is playback order; done fires once the chunk is committed to the buffer.
type speakerPlayer struct {
	otoCtx  *oto.Context
	player  *oto.Player
	buf     []byte
	mu      sync.Mutex
	cond    *sync.Cond
	playing bool
	closed  bool
}

func newSpeakerPlayer(ctx *oto.Context) *speakerPlayer {
	s := &speakerPlayer{
		otoCtx: ctx,
		buf:    make([]byte, 0, client.SampleRate*4),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Play appends one PCM16 chunk to the output buffer.
func (s *speakerPlayer) Play(chunk []byte, done func()) {
	s.mu.Lock()
	s.buf = append(s.buf, chunk...)

	// Lazily start the oto player on first audio.
	if !s.playing && !s.closed {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}
	s.mu.Unlock()

	s.cond.Signal()
	done()
}

// Read implements io.Reader; oto pulls playback data through it.
func (s *speakerPlayer) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}

	if s.closed && len(s.buf) == 0 {
		// Feed silence so oto drains gracefully
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *speakerPlayer) Close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	if s.player != nil {
		s.player.Close()
	}
}
