// Package pcm converts between normalized float32 samples and the signed
// 16-bit little-endian PCM the realtime API speaks, plus the base64 framing
// used to carry audio inside JSON text frames.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"math"
)

// FloatToPCM16 encodes normalized samples as little-endian int16 bytes.
// Samples are clamped to [-1, 1] and scaled asymmetrically (32768 for
// negative values, 32767 for positive) so that -1.0 maps to the minimum
// int16 and +1.0 to the maximum.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}

		var v int16
		if s < 0 {
			v = int16(math.Round(float64(s) * 32768))
		} else {
			v = int16(math.Round(float64(s) * 32767))
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// PCM16ToFloat decodes little-endian int16 bytes back to normalized samples.
// A trailing odd byte is ignored.
func PCM16ToFloat(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		if v < 0 {
			out[i] = float32(v) / 32768
		} else {
			out[i] = float32(v) / 32767
		}
	}
	return out
}

// EncodeBase64 wraps raw bytes for transport inside a JSON text frame.
// Standard alphabet, no line wrapping.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 is the inverse of EncodeBase64.
func DecodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
