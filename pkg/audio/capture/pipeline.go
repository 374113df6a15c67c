// Package capture turns a microphone stream into encoded outbound frames and a
// loudness level for UI feedback.
package capture

import (
	"log/slog"
	"sync"

	"github.com/MrWong99/hiplay/pkg/audio"
)

const (
	// DefaultFrameSize is the number of samples per captured frame.
	DefaultFrameSize = 2048

	// MinFrameSize and MaxFrameSize bound the frame size to keep latency low.
	MinFrameSize = 256
	MaxFrameSize = 4096
)

// Source is a microphone stream.
type Source interface {
	// SampleRate returns the native capture rate in Hz.
	SampleRate() int

	// Read fills frame with mono samples in [-1, 1] and returns the number
	// written. It blocks until a full frame is available or the source
	// fails or is closed.
	Read(frame []float32) (int, error)

	// Close stops the underlying device and unblocks any pending Read.
	Close() error
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithFrameSize sets the frame size in samples. Values outside
// [MinFrameSize, MaxFrameSize] are clamped.
func WithFrameSize(n int) Option {
	return func(p *Pipeline) {
		p.frameSize = min(max(n, MinFrameSize), MaxFrameSize)
	}
}

// WithLevelGain sets the linear gain that maps frame RMS to a 0–100 level.
func WithLevelGain(g float64) Option {
	return func(p *Pipeline) {
		if g > 0 {
			p.gain = g
		}
	}
}

// WithLevelHook registers fn to receive the loudness level of every frame.
// fn is called from the capture goroutine and must not block.
func WithLevelHook(fn func(level int)) Option {
	return func(p *Pipeline) { p.onLevel = fn }
}

// Pipeline reads frames from a [Source], publishes their loudness, and hands
// encoded chunks to a send function.
type Pipeline struct {
	src       Source
	send      func(audio.Chunk)
	frameSize int
	gain      float64
	onLevel   func(int)
	mime      string

	mu       sync.Mutex
	started  bool
	detached bool
	err      error

	stopOnce sync.Once
	done     chan struct{}
}

// New creates a Pipeline that forwards encoded frames from src to send. send
// is called from the capture goroutine and must not block; dropping a frame
// is preferable to stalling capture.
func New(src Source, send func(audio.Chunk), opts ...Option) *Pipeline {
	p := &Pipeline{
		src:       src,
		send:      send,
		frameSize: DefaultFrameSize,
		gain:      audio.DefaultLevelGain,
		mime:      audio.MIMEType(src.SampleRate()),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start launches the capture goroutine. Calling Start more than once, or
// after Stop, has no effect.
func (p *Pipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.detached {
		return
	}
	p.started = true
	go p.loop()
}

func (p *Pipeline) loop() {
	defer close(p.done)

	rate := p.src.SampleRate()
	frame := make([]float32, p.frameSize)
	for {
		n, err := p.src.Read(frame)
		if n > 0 && !p.emit(frame[:n], rate) {
			return
		}
		if err != nil {
			p.mu.Lock()
			if !p.detached {
				p.err = err
				slog.Warn("capture: read failed", "err", err)
			}
			p.mu.Unlock()
			return
		}
	}
}

// emit publishes one frame. It reports false once the pipeline is detached.
// The lock is held across the callbacks so that Stop cannot return while a
// frame is still being delivered.
func (p *Pipeline) emit(samples []float32, rate int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detached {
		return false
	}
	if p.onLevel != nil {
		p.onLevel(audio.Level(samples, p.gain))
	}
	p.send(audio.Chunk{
		Data:       audio.EncodePCM(samples),
		MIMEType:   p.mime,
		SampleRate: rate,
	})
	return true
}

// Stop detaches the pipeline so no further level or send callbacks fire,
// closes the source to release the device, and waits for the capture
// goroutine to exit. Stop is idempotent and returns the source's Close error
// from the first call.
func (p *Pipeline) Stop() error {
	var err error
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.detached = true
		started := p.started
		p.mu.Unlock()

		err = p.src.Close()
		if started {
			<-p.done
		} else {
			close(p.done)
		}
	})
	return err
}

// Done is closed when the capture goroutine exits, or by Stop if the
// pipeline never started.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Err returns the read error that ended capture, if any. Errors that occur
// after Stop are not reported.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
