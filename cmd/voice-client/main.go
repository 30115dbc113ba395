// Command voice-client is a terminal voice client for the relay: it streams
// microphone audio up, plays assistant audio back, and prints the running
// transcript.
//
// Usage:
//
//	go run ./cmd/voice-client
//
// Environment variables:
//
//	RELAY_URL - relay websocket URL (default ws://localhost:3000/realtime)
//
// Controls:
//
//	m - toggle the microphone
//	q - quit
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"voicebridge/client"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	relayURL := os.Getenv("RELAY_URL")
	if relayURL == "" {
		relayURL = "ws://localhost:3000/realtime"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	samples, speaker, cleanup, micErr := initAudio()
	defer cleanup()

	sink := &consoleSink{}
	c, err := client.Dial(ctx, relayURL, sink, speaker)
	if err != nil {
		log.Fatalf("❌ Failed to connect to relay: %v", err)
	}
	defer c.Close()

	fmt.Println("🎙️ Connected. Speak naturally — server-side turn detection is on.")
	fmt.Println("   Controls: m = toggle mic, q = quit")
	fmt.Println()

	// A failed microphone degrades to playback-only; it never kills the session.
	micCtx, micCancel := context.WithCancel(ctx)
	if micErr != nil {
		sink.OnMessage(client.TranscriptEvent{Role: client.RoleError, Text: micErr.Error(), Final: true})
	} else if err := c.StartRecording(micCtx, samples); err != nil {
		sink.OnMessage(client.TranscriptEvent{Role: client.RoleError, Text: err.Error(), Final: true})
	}

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
			case "q":
				cancel()
				return
			case "m":
				if samples == nil {
					fmt.Println("[ERROR] microphone unavailable")
					continue
				}
				if c.Recording() {
					micCancel()
					fmt.Println("🔇 Microphone off")
				} else {
					micCtx, micCancel = context.WithCancel(ctx)
					if err := c.StartRecording(micCtx, samples); err != nil {
						fmt.Printf("[ERROR] %v\n", err)
						continue
					}
					fmt.Println("🎙️ Microphone on")
				}
			}
		}
	}()

	if err := c.Run(ctx); err != nil {
		log.Printf("❌ Session ended: %v", err)
	}
	micCancel()
}

// consoleSink prints transcript and status lines to stdout. Partial
// assistant text is rewritten in place on the same line until finalized.
type consoleSink struct{}

func (consoleSink) OnStatus(status, message string) {
	switch status {
	case "connected":
		fmt.Println("✅ Upstream connected")
	case "disconnected":
		if message != "" {
			fmt.Printf("🔌 Upstream disconnected: %s\n", message)
		} else {
			fmt.Println("🔌 Upstream disconnected")
		}
	case "speech_started":
		fmt.Println("… listening")
	}
}

func (consoleSink) OnMessage(ev client.TranscriptEvent) {
	switch ev.Role {
	case client.RoleUser:
		fmt.Printf("\nYou: %s\n", ev.Text)
	case client.RoleAssistant:
		if ev.Final {
			fmt.Printf("\rAssistant: %s\n", ev.Text)
		} else {
			fmt.Printf("\rAssistant: %s", ev.Text)
		}
	case client.RoleError:
		fmt.Printf("\n[ERROR] %s\n", ev.Text)
	}
}

func (consoleSink) OnAudioChunk([]byte) {}
