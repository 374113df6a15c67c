// Package audio holds the audio value types shared by the capture and
// playback pipelines and the PCM codec used on the wire.
//
// The wire format is base64-encoded, little-endian, signed 16-bit PCM. Inside
// the process audio travels as float32 samples in [-1, 1], matching what the
// capture device delivers and what the playback device consumes.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// DefaultLevelGain maps frame RMS to a 0–100 loudness percentage.
const DefaultLevelGain = 500

// DecodeError reports a malformed inbound audio payload. The payload is
// dropped; it is never fatal to a session.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "audio: decode payload: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// MIMEType returns the PCM mime-type descriptor for the given rate,
// e.g. "audio/pcm;rate=16000".
func MIMEType(sampleRate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

// PCMBytes quantizes float samples to little-endian int16 PCM. Samples
// outside [-1, 1] are clamped; values are scaled by 32767 and rounded to the
// nearest integer.
func PCMBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(quantize(s)))
	}
	return out
}

// EncodePCM quantizes samples with [PCMBytes] and returns the base64 wire
// string.
func EncodePCM(samples []float32) string {
	return base64.StdEncoding.EncodeToString(PCMBytes(samples))
}

// DecodeBase64 reverses the wire encoding. A malformed payload yields a
// *DecodeError.
func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return b, nil
}

// DecodeBuffer interprets pcm as interleaved little-endian int16 samples and
// returns a playable Buffer. Samples are scaled by 1/32767, the inverse of
// [PCMBytes], and -32768 is clamped to -1. A trailing odd byte, and any
// incomplete trailing frame when channels > 1, is ignored.
func DecodeBuffer(pcm []byte, sampleRate, channels int) *Buffer {
	if channels <= 0 {
		channels = 1
	}
	n := len(pcm) / 2
	n -= n % channels
	samples := make([]float32, n)
	for i := range n {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		if v == math.MinInt16 {
			v = -32767
		}
		samples[i] = float32(v) / 32767.0
	}
	return &Buffer{Samples: samples, SampleRate: sampleRate, Channels: channels}
}

// RMS returns the root-mean-square energy of samples, or 0 for an empty
// frame.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Level maps the RMS of samples to a loudness percentage in [0, 100] using a
// linear gain.
func Level(samples []float32, gain float64) int {
	l := math.Round(RMS(samples) * gain)
	if l > 100 {
		return 100
	}
	if l < 0 {
		return 0
	}
	return int(l)
}

func quantize(s float32) int16 {
	f := float64(s)
	if f > 1 {
		f = 1
	} else if f < -1 {
		f = -1
	} else if f != f { // NaN
		f = 0
	}
	return int16(math.Round(f * 32767))
}
