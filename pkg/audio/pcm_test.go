package audio_test

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/MrWong99/hiplay/pkg/audio"
)

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestPCMBytes_Quantization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"zero", 0, 0},
		{"full scale positive", 1, 32767},
		{"full scale negative", -1, -32767},
		{"half", 0.5, 16384},
		{"clamped above", 1.7, 32767},
		{"clamped below", -3, -32767},
		{"rounds to nearest", 0.00002, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := bytesToSamples(audio.PCMBytes([]float32{tc.in}))
			if got[0] != tc.want {
				t.Errorf("PCMBytes(%v) = %d, want %d", tc.in, got[0], tc.want)
			}
		})
	}
}

func TestEncodePCM_IsBase64LittleEndian(t *testing.T) {
	t.Parallel()
	wire := audio.EncodePCM([]float32{1, -1})
	raw, err := base64.StdEncoding.DecodeString(wire)
	if err != nil {
		t.Fatalf("wire string is not base64: %v", err)
	}
	want := []byte{0xFF, 0x7F, 0x01, 0x80}
	if string(raw) != string(want) {
		t.Errorf("bytes = %x, want %x", raw, want)
	}
}

func TestCodec_RoundTripWithinQuantizationBound(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(1, 2))
	samples := make([]float32, 4096)
	for i := range samples {
		samples[i] = float32(r.Float64()*2 - 1)
	}
	samples[0], samples[1], samples[2] = 1, -1, 0

	raw, err := audio.DecodeBase64(audio.EncodePCM(samples))
	if err != nil {
		t.Fatalf("DecodeBase64: %v", err)
	}
	buf := audio.DecodeBuffer(raw, 16000, 1)
	if len(buf.Samples) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(buf.Samples), len(samples))
	}

	const bound = 1.0 / 32767
	for i, s := range samples {
		if d := math.Abs(float64(buf.Samples[i] - s)); d > bound {
			t.Fatalf("sample %d: |%v - %v| = %g exceeds %g", i, buf.Samples[i], s, d, bound)
		}
	}
}

func TestDecodeBase64_Malformed(t *testing.T) {
	t.Parallel()
	_, err := audio.DecodeBase64("not*base64!")
	if err == nil {
		t.Fatal("expected error for malformed payload")
	}
	var de *audio.DecodeError
	if !errors.As(err, &de) {
		t.Errorf("error %T is not a *DecodeError", err)
	}
}

func TestDecodeBuffer_OddLengthTruncates(t *testing.T) {
	t.Parallel()
	pcm := []byte{0xFF, 0x7F, 0x00, 0x80, 0x12}
	buf := audio.DecodeBuffer(pcm, 24000, 1)
	if len(buf.Samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(buf.Samples))
	}
	if buf.Samples[0] != 1 {
		t.Errorf("sample 0 = %v, want 1", buf.Samples[0])
	}
	if buf.Samples[1] != -1 {
		t.Errorf("sample 1 = %v, want -1 (clamped)", buf.Samples[1])
	}
}

func TestDecodeBuffer_StereoDropsPartialFrame(t *testing.T) {
	t.Parallel()
	// Three int16 samples: one full stereo frame plus a dangling left sample.
	buf := audio.DecodeBuffer(make([]byte, 6), 48000, 2)
	if got := buf.Frames(); got != 1 {
		t.Errorf("Frames() = %d, want 1", got)
	}
}

func TestBuffer_Duration(t *testing.T) {
	t.Parallel()
	buf := audio.DecodeBuffer(make([]byte, 24000), 24000, 1)
	if got := buf.Duration(); got != 500*time.Millisecond {
		t.Errorf("Duration() = %v, want 500ms", got)
	}
	var nilBuf *audio.Buffer
	if nilBuf.Duration() != 0 {
		t.Error("nil buffer should have zero duration")
	}
}

func TestLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		samples []float32
		want    int
	}{
		{"silence", make([]float32, 256), 0},
		{"empty frame", nil, 0},
		{"quiet", []float32{0.01, -0.01, 0.01, -0.01}, 5},
		{"saturates at 100", []float32{0.5, -0.5}, 100},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := audio.Level(tc.samples, audio.DefaultLevelGain); got != tc.want {
				t.Errorf("Level = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestMIMEType(t *testing.T) {
	t.Parallel()
	if got := audio.MIMEType(16000); got != "audio/pcm;rate=16000" {
		t.Errorf("MIMEType = %q", got)
	}
}

func TestResample(t *testing.T) {
	t.Parallel()

	in := []float32{0, 0.5, 1, 0.5}
	if got := audio.Resample(in, 24000, 24000); &got[0] != &in[0] {
		t.Error("equal rates should return the input slice")
	}
	up := audio.Resample(in, 8000, 16000)
	if len(up) != 8 {
		t.Fatalf("len = %d, want 8", len(up))
	}
	if up[1] != 0.25 {
		t.Errorf("interpolated sample = %v, want 0.25", up[1])
	}
	down := audio.Resample(in, 16000, 8000)
	if len(down) != 2 || down[0] != 0 || down[1] != 1 {
		t.Errorf("downsampled = %v, want [0 1]", down)
	}
}
