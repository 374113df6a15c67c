// Package audio holds the PCM codec shared by capture and playback: the
// wire [Chunk] sent to the model, the decoded [Buffer] handed to an output,
// and the conversions between them.
package audio

import "time"

// Chunk is one encoded audio frame ready for the outbound stream.
// Data is base64-encoded little-endian 16-bit PCM.
type Chunk struct {
	// Data is the base64 wire representation produced by [EncodePCM].
	Data string

	// MIMEType describes the payload, e.g. "audio/pcm;rate=16000".
	MIMEType string

	// SampleRate is the native capture rate in Hz.
	SampleRate int
}

// Buffer is a decoded, playable block of audio. Samples are interleaved
// float32 values in [-1, 1].
type Buffer struct {
	Samples []float32

	// SampleRate in Hz (e.g., 24000 for model output).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int
}

// Frames returns the number of sample frames (samples per channel).
func (b *Buffer) Frames() int {
	if b == nil || b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback length of the buffer at its sample rate.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}
