package ffmpeg

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/MrWong99/hiplay/pkg/audio"
	"github.com/MrWong99/hiplay/pkg/audio/playback"
)

// Compile-time interface assertions.
var (
	_ playback.Output   = (*Player)(nil)
	_ playback.Resetter = (*Player)(nil)
)

const (
	// DefaultOutputRate is the rate of the model's audio output.
	DefaultOutputRate = 24000

	// DefaultLead is how far ahead of its start time a buffer is written to
	// ffplay, covering pipe and device latency.
	DefaultLead = 60 * time.Millisecond

	queueSize = 256
)

// ErrPlayerClosed is returned by [Player.Schedule] after [Player.Close].
var ErrPlayerClosed = errors.New("ffmpeg: player closed")

// PlayerOption configures [NewPlayer].
type PlayerOption func(*Player)

// WithFFplayPath overrides the ffplay binary (default "ffplay" from PATH).
func WithFFplayPath(path string) PlayerOption {
	return func(p *Player) {
		if path != "" {
			p.path = path
		}
	}
}

// WithOutputRate sets the device rate. Buffers at other rates are resampled.
func WithOutputRate(rate int) PlayerOption {
	return func(p *Player) {
		if rate > 0 {
			p.rate = rate
		}
	}
}

// WithLead sets how early buffers are written ahead of their start time.
func WithLead(d time.Duration) PlayerOption {
	return func(p *Player) {
		if d >= 0 {
			p.lead = d
		}
	}
}

// Player is a [playback.Output] that streams PCM into an ffplay child process.
// Its clock is wall time since construction. Buffers are written to ffplay
// shortly before their start time; Reset restarts the process to discard
// anything ffplay has buffered.
//
// The ffplay process is started lazily by [Player.Resume] and reused across
// sessions.
type Player struct {
	path  string
	rate  int
	lead  time.Duration
	epoch time.Time

	queue chan *source
	done  chan struct{}
	wg    sync.WaitGroup

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	closed bool
}

// NewPlayer verifies that ffplay is installed and starts the writer
// goroutine. Call [Player.Resume] before scheduling audio.
func NewPlayer(opts ...PlayerOption) (*Player, error) {
	p := &Player{
		path:  "ffplay",
		rate:  DefaultOutputRate,
		lead:  DefaultLead,
		epoch: time.Now(),
		queue: make(chan *source, queueSize),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	bin, err := exec.LookPath(p.path)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: %s is required for playback: %w", p.path, err)
	}
	p.path = bin

	p.wg.Add(1)
	go p.writeLoop()
	return p, nil
}

// PlayerArgs returns the ffplay arguments for mono s16le input at rate.
func PlayerArgs(rate int) []string {
	return []string{
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-fflags", "nobuffer",
		"-f", "s16le",
		"-ar", strconv.Itoa(rate),
		"-ac", "1",
		"-i", "pipe:0",
	}
}

// Now implements [playback.Output].
func (p *Player) Now() time.Duration {
	return time.Since(p.epoch)
}

// Resume implements [playback.Output]. It starts ffplay if it is not running.
func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPlayerClosed
	}
	if p.stdin != nil {
		return nil
	}
	return p.startLocked()
}

// Reset implements [playback.Resetter] by restarting ffplay.
func (p *Player) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.killLocked()
	return p.startLocked()
}

// Schedule implements [playback.Output].
func (p *Player) Schedule(buf *audio.Buffer, at time.Duration, onEnded func()) (playback.Source, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPlayerClosed
	}

	samples := buf.Samples
	if buf.Channels > 1 {
		samples = downmix(samples, buf.Channels)
	}
	samples = audio.Resample(samples, buf.SampleRate, p.rate)

	s := &source{
		at:      at,
		end:     at + buf.Duration(),
		pcm:     audio.PCMBytes(samples),
		onEnded: onEnded,
		stop:    make(chan struct{}),
	}
	select {
	case p.queue <- s:
		return s, nil
	default:
		return nil, errors.New("ffmpeg: playback queue full")
	}
}

// Close stops ffplay and the writer goroutine. Close is idempotent.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.killLocked()
	p.mu.Unlock()

	close(p.done)
	p.wg.Wait()
	return nil
}

// writeLoop writes queued buffers to ffplay in order, each no earlier than
// lead before its start time, and fires end callbacks on the wall clock.
func (p *Player) writeLoop() {
	defer p.wg.Done()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		var s *source
		select {
		case <-p.done:
			return
		case s = <-p.queue:
		}

		if wait := s.at - p.lead - p.Now(); wait > 0 {
			timer.Reset(wait)
			select {
			case <-p.done:
				return
			case <-s.stop:
				timer.Stop()
				continue
			case <-timer.C:
			}
		}
		if s.stopped() {
			continue
		}

		if err := p.write(s.pcm); err != nil {
			slog.Warn("ffmpeg: playback write failed", "err", err)
		}
		time.AfterFunc(max(s.end-p.Now(), 0), s.finish)
	}
}

func (p *Player) write(pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdin == nil {
		return errors.New("ffplay is not running")
	}
	if _, err := p.stdin.Write(pcm); err != nil {
		// The process died; drop it so the next Resume or Reset restarts it.
		p.killLocked()
		return err
	}
	return nil
}

func (p *Player) startLocked() error {
	cmd := exec.Command(p.path, PlayerArgs(p.rate)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg: open ffplay stdin: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg: start ffplay: %w", err)
	}
	p.cmd = cmd
	p.stdin = stdin
	return nil
}

func (p *Player) killLocked() {
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
	}
	p.cmd = nil
	p.stdin = nil
}

// source is one scheduled buffer.
type source struct {
	at, end time.Duration
	pcm     []byte
	onEnded func()

	mu   sync.Mutex
	stop chan struct{}
	done bool
}

// Stop implements [playback.Source].
func (s *source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	close(s.stop)
}

func (s *source) stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *source) finish() {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.mu.Unlock()

	if s.onEnded != nil {
		s.onEnded()
	}
}

// downmix averages interleaved channels into mono.
func downmix(samples []float32, channels int) []float32 {
	out := make([]float32, len(samples)/channels)
	for i := range out {
		var sum float32
		for c := range channels {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
