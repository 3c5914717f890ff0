// Package audio converts between the provider's raw little-endian 16-bit
// mono PCM wire format and float sample buffers, and manages gapless playback
// scheduling for realtime sessions.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// DefaultSampleRate is the provider's speech output rate (24 kHz mono).
const DefaultSampleRate = 24000

// levelBoost scales raw RMS into a useful 0..1 meter range.
const levelBoost = 4.0

// DecodeBase64PCM decodes a base64 s16le mono payload into samples
// normalized to [-1.0, 1.0].
func DecodeBase64PCM(data string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode pcm: %w", err)
	}
	return DecodePCM(raw)
}

// DecodePCM reinterprets raw s16le bytes as normalized float samples.
// Odd-length payloads are rejected: they cannot hold whole 16-bit samples.
func DecodePCM(raw []byte) ([]float32, error) {
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("decode pcm: odd payload length %d", len(raw))
	}
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[2*i:]))
		samples[i] = float32(v) / 32768.0
	}
	return samples, nil
}

// EncodePCM converts normalized float samples to raw s16le bytes. Samples
// outside [-1.0, 1.0] are clamped.
func EncodePCM(samples []float32) []byte {
	raw := make([]byte, 2*len(samples))
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		binary.LittleEndian.PutUint16(raw[2*i:], uint16(int16(s*32767)))
	}
	return raw
}

// EncodeBase64PCM converts normalized float samples to a base64 s16le frame.
func EncodeBase64PCM(samples []float32) string {
	return base64.StdEncoding.EncodeToString(EncodePCM(samples))
}

// Duration returns the playback length of a raw s16le mono payload.
func Duration(byteLen, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(byteLen/2) / float64(sampleRate)
}

// Level estimates the loudness of a block as the root mean square of sample
// amplitudes, scaled by a fixed visual boost and capped at 1.0. Used for the
// UI volume meter.
func Level(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	level := math.Sqrt(sum/float64(len(samples))) * levelBoost
	if level > 1.0 {
		level = 1.0
	}
	return level
}
