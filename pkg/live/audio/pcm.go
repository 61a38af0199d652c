// Package audio converts between the channel's base64 PCM16 frames and the
// float sample buffers used by capture and playback.
package audio

import (
	"encoding/base64"
	"fmt"
	"math"
)

// EncodePCM16 converts float samples in [-1,1] to base64 16-bit signed
// little-endian PCM. Out-of-range samples are clamped.
func EncodePCM16(samples []float32) string {
	pcm := make([]byte, len(samples)*2)
	for i, sample := range samples {
		v := float64(sample) * 32768.0
		v = math.Round(v)
		if v > 32767 {
			v = 32767
		}
		if v < -32768 {
			v = -32768
		}
		s := int16(v)
		pcm[i*2] = byte(s)
		pcm[i*2+1] = byte(s >> 8)
	}
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodePCM16 converts a base64 PCM16 mono payload back to float samples
// in [-1,1].
func DecodePCM16(payload string) ([]float32, error) {
	pcm, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode audio payload: %w", err)
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("audio payload has odd byte length %d", len(pcm))
	}
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		samples[i] = float32(s) / 32768.0
	}
	return samples, nil
}

// Duration returns the playback duration in seconds of a sample buffer.
func Duration(sampleCount, sampleRateHz int) float64 {
	if sampleCount <= 0 || sampleRateHz <= 0 {
		return 0
	}
	return float64(sampleCount) / float64(sampleRateHz)
}
