// Package ffmpeg implements the capture and playback devices on top of the
// ffmpeg and ffplay command-line tools. Raw PCM is exchanged with the child
// processes over pipes, so no cgo audio bindings are required.
package ffmpeg

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"runtime"
	"strconv"
	"sync"

	"github.com/MrWong99/hiplay/pkg/audio/capture"
)

// Compile-time interface assertion.
var _ capture.Source = (*Mic)(nil)

const (
	// DefaultInputRate is the capture rate the live endpoint expects.
	DefaultInputRate = 16000

	bytesPerFloat = 4
)

// MicOption configures [OpenMic].
type MicOption func(*micConfig)

type micConfig struct {
	path   string
	device string
	rate   int
	goos   string
}

// WithFFmpegPath overrides the ffmpeg binary (default "ffmpeg" from PATH).
func WithFFmpegPath(path string) MicOption {
	return func(c *micConfig) {
		if path != "" {
			c.path = path
		}
	}
}

// WithInputDevice selects the capture device. The default is ":0" on macOS
// (avfoundation) and "default" on Linux (PulseAudio).
func WithInputDevice(device string) MicOption {
	return func(c *micConfig) { c.device = device }
}

// WithInputRate sets the capture sample rate in Hz.
func WithInputRate(rate int) MicOption {
	return func(c *micConfig) {
		if rate > 0 {
			c.rate = rate
		}
	}
}

// Mic is a microphone [capture.Source] backed by an ffmpeg child process that
// writes mono float32 little-endian samples to stdout.
type Mic struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	rate   int
	raw    []byte

	closeOnce sync.Once
}

// OpenMic starts ffmpeg capturing from the platform's default input device.
// The process is tied to ctx; cancelling ctx kills it.
func OpenMic(ctx context.Context, opts ...MicOption) (*Mic, error) {
	cfg := micConfig{path: "ffmpeg", rate: DefaultInputRate, goos: runtime.GOOS}
	for _, o := range opts {
		o(&cfg)
	}

	bin, err := exec.LookPath(cfg.path)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: %s is required for microphone capture: %w", cfg.path, err)
	}
	args, err := MicArgs(cfg.goos, cfg.device, cfg.rate)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: open stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: start mic capture: %w", err)
	}
	return &Mic{cmd: cmd, stdout: stdout, rate: cfg.rate}, nil
}

// MicArgs returns the ffmpeg arguments that capture device on goos as mono
// float32 PCM at rate. An empty device selects the platform default.
func MicArgs(goos, device string, rate int) ([]string, error) {
	var input []string
	switch goos {
	case "darwin":
		if device == "" {
			device = ":0"
		}
		input = []string{"-f", "avfoundation", "-i", device}
	case "linux":
		if device == "" {
			device = "default"
		}
		input = []string{"-f", "pulse", "-i", device}
	default:
		return nil, fmt.Errorf("ffmpeg: microphone capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	args = append(args, input...)
	args = append(args,
		"-ac", "1",
		"-ar", strconv.Itoa(rate),
		"-f", "f32le", "-",
	)
	return args, nil
}

// SampleRate implements [capture.Source].
func (m *Mic) SampleRate() int { return m.rate }

// Read implements [capture.Source]. It blocks until len(frame) samples have
// been captured.
func (m *Mic) Read(frame []float32) (int, error) {
	need := len(frame) * bytesPerFloat
	if cap(m.raw) < need {
		m.raw = make([]byte, need)
	}
	raw := m.raw[:need]

	n, err := io.ReadFull(m.stdout, raw)
	got := DecodeFloat32(frame, raw[:n-n%bytesPerFloat])
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	if err != nil {
		return got, fmt.Errorf("ffmpeg: read mic: %w", err)
	}
	return got, nil
}

// Close kills the ffmpeg process and releases the device. Close is
// idempotent.
func (m *Mic) Close() error {
	m.closeOnce.Do(func() {
		if m.cmd.Process != nil {
			_ = m.cmd.Process.Kill()
		}
		// Wait reports the kill as an error; only pipe cleanup matters here.
		_ = m.cmd.Wait()
	})
	return nil
}

// DecodeFloat32 converts little-endian float32 bytes into dst and returns the
// number of samples written. Trailing bytes that do not form a whole sample
// are ignored.
func DecodeFloat32(dst []float32, raw []byte) int {
	n := min(len(dst), len(raw)/bytesPerFloat)
	for i := range n {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*bytesPerFloat:]))
	}
	return n
}
