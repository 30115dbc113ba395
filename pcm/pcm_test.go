package pcm

import (
	"bytes"
	"math"
	"testing"
)

func TestFloatToPCM16Boundaries(t *testing.T) {
	tests := []struct {
		name   string
		sample float32
		want   int16
	}{
		{"negative full scale", -1.0, -32768},
		{"positive full scale", 1.0, 32767},
		{"zero", 0, 0},
		{"clamped below", -2.5, -32768},
		{"clamped above", 3.0, 32767},
		{"half scale", 0.5, 16384}, // round(0.5 * 32767)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := FloatToPCM16([]float32{tt.sample})
			if len(data) != 2 {
				t.Fatalf("expected 2 bytes, got %d", len(data))
			}
			got := int16(uint16(data[0]) | uint16(data[1])<<8)
			if got != tt.want {
				t.Errorf("FloatToPCM16(%v) = %d, want %d", tt.sample, got, tt.want)
			}
		})
	}
}

func TestRoundTripPrecision(t *testing.T) {
	const tolerance = 1.0 / 32767

	// Sweep the full range plus a few awkward values
	samples := []float32{-1, -0.999, -0.5, -0.0001, 0, 0.0001, 0.25, 0.5, 0.75, 0.999, 1}
	for s := float32(-1); s <= 1; s += 0.0137 {
		samples = append(samples, s)
	}

	for _, s := range samples {
		got := PCM16ToFloat(FloatToPCM16([]float32{s}))
		if len(got) != 1 {
			t.Fatalf("expected 1 sample, got %d", len(got))
		}
		if diff := math.Abs(float64(got[0] - s)); diff > tolerance {
			t.Errorf("round trip of %v drifted by %v (got %v)", s, diff, got[0])
		}
	}
}

func TestPCM16ToFloatIgnoresTrailingByte(t *testing.T) {
	data := FloatToPCM16([]float32{0.5, -0.5})
	got := PCM16ToFloat(append(data, 0x7f))
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
}

func TestBase64RoundTrip(t *testing.T) {
	bufs := [][]byte{
		{},
		{0x00},
		{0xff, 0x00, 0x7f, 0x80},
		FloatToPCM16([]float32{-1, -0.25, 0, 0.25, 1}),
	}

	for _, b := range bufs {
		decoded, err := DecodeBase64(EncodeBase64(b))
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if !bytes.Equal(decoded, b) {
			t.Errorf("round trip mismatch: %v != %v", decoded, b)
		}
	}
}

func TestDecodeBase64Invalid(t *testing.T) {
	if _, err := DecodeBase64("not!!base64"); err == nil {
		t.Error("expected error for invalid base64 input")
	}
}
