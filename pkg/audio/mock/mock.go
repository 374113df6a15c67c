// Package mock provides in-memory implementations of the capture and playback
// device interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record method calls so tests can
// assert on call counts and arguments, and they expose exported fields that
// control return values.
//
// Typical usage:
//
//	out := &mock.Output{}
//	sched := playback.New(out)
//	sched.Enqueue(buf)      // recorded in out.Scheduled()
//	out.Advance(time.Second) // fires end callbacks for finished buffers
//
//	mic := mock.NewSource(16000)
//	mic.Push(frame)          // delivered by the next Read
package mock

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/MrWong99/hiplay/pkg/audio"
	"github.com/MrWong99/hiplay/pkg/audio/capture"
	"github.com/MrWong99/hiplay/pkg/audio/playback"
)

var (
	_ playback.Output   = (*Output)(nil)
	_ playback.Resetter = (*Output)(nil)
	_ capture.Source    = (*Source)(nil)
)

// ─── Output ───────────────────────────────────────────────────────────────────

// ScheduleCall records a single invocation of [Output.Schedule].
type ScheduleCall struct {
	Buffer *audio.Buffer
	At     time.Duration
}

// Output is a [playback.Output] driven by a manual clock. Buffers finish only
// when the test moves the clock past their end with [Output.Advance].
type Output struct {
	mu sync.Mutex

	now     time.Duration
	sources []*source
	calls   []ScheduleCall

	// ScheduleError, if non-nil, is returned by Schedule.
	ScheduleError error

	// ResumeError, if non-nil, is returned by Resume.
	ResumeError error

	// CallCountResume records how many times Resume was called.
	CallCountResume int

	// CallCountReset records how many times Reset was called.
	CallCountReset int
}

// Now implements [playback.Output].
func (o *Output) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

// Schedule implements [playback.Output].
func (o *Output) Schedule(buf *audio.Buffer, at time.Duration, onEnded func()) (playback.Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ScheduleError != nil {
		return nil, o.ScheduleError
	}
	o.calls = append(o.calls, ScheduleCall{Buffer: buf, At: at})
	s := &source{out: o, end: at + buf.Duration(), onEnded: onEnded}
	o.sources = append(o.sources, s)
	return s, nil
}

// Resume implements [playback.Output].
func (o *Output) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CallCountResume++
	return o.ResumeError
}

// Reset implements [playback.Resetter].
func (o *Output) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CallCountReset++
	return nil
}

// Set moves the clock to t without firing end callbacks.
func (o *Output) Set(t time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = t
}

// Advance moves the clock forward by d and fires the end callback of every
// source that finished, in schedule order.
func (o *Output) Advance(d time.Duration) {
	o.mu.Lock()
	o.now += d
	var fire []func()
	for _, s := range o.sources {
		if !s.stopped && !s.done && s.end <= o.now {
			s.done = true
			if s.onEnded != nil {
				fire = append(fire, s.onEnded)
			}
		}
	}
	o.mu.Unlock()

	for _, fn := range fire {
		fn()
	}
}

// Scheduled returns a copy of all recorded Schedule calls.
func (o *Output) Scheduled() []ScheduleCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]ScheduleCall, len(o.calls))
	copy(out, o.calls)
	return out
}

// Playing returns the number of sources that have neither finished nor been
// stopped.
func (o *Output) Playing() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, s := range o.sources {
		if !s.stopped && !s.done {
			n++
		}
	}
	return n
}

// Stopped returns how many sources were stopped before finishing.
func (o *Output) Stopped() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, s := range o.sources {
		if s.stopped {
			n++
		}
	}
	return n
}

type source struct {
	out     *Output
	end     time.Duration
	onEnded func()
	stopped bool
	done    bool
}

func (s *source) Stop() {
	s.out.mu.Lock()
	defer s.out.mu.Unlock()
	if s.done {
		return
	}
	s.stopped = true
}

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a [capture.Source] fed by the test through [Source.Push].
type Source struct {
	rate   int
	frames chan []float32
	done   chan struct{}

	mu        sync.Mutex
	closeOnce sync.Once

	// ReadError, if non-nil, is returned by the next Read instead of a frame.
	ReadError error

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewSource returns a Source reporting the given sample rate.
func NewSource(sampleRate int) *Source {
	return &Source{
		rate:   sampleRate,
		frames: make(chan []float32, 64),
		done:   make(chan struct{}),
	}
}

// Push queues a frame for the next Read. Push must not be called after
// [Source.EndOfStream].
func (s *Source) Push(frame []float32) {
	s.frames <- frame
}

// EndOfStream makes Read return io.EOF once the queued frames are drained.
func (s *Source) EndOfStream() {
	close(s.frames)
}

// SampleRate implements [capture.Source].
func (s *Source) SampleRate() int { return s.rate }

// Read implements [capture.Source]. It blocks until a frame is pushed or the
// source is closed.
func (s *Source) Read(frame []float32) (int, error) {
	s.mu.Lock()
	if err := s.ReadError; err != nil {
		s.ReadError = nil
		s.mu.Unlock()
		return 0, err
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return 0, ErrSourceClosed
	case f, ok := <-s.frames:
		if !ok {
			return 0, io.EOF
		}
		return copy(frame, f), nil
	}
}

// Close implements [capture.Source]. Close is idempotent.
func (s *Source) Close() error {
	s.mu.Lock()
	s.CallCountClose++
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// Closed reports whether Close has been called.
func (s *Source) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// ErrSourceClosed is returned by [Source.Read] after Close.
var ErrSourceClosed = errors.New("mock: source closed")
