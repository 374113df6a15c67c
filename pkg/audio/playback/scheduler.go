// Package playback schedules decoded model audio on an output clock so that
// consecutive chunks play back to back without gaps or overlaps.
//
// A [Scheduler] owns a single playback cursor. Every [Scheduler.Enqueue] reads
// and advances the cursor inside one critical section, so two chunks can never
// compute the same start time regardless of which goroutine delivers them.
// [Scheduler.InterruptAll] stops everything that is still pending and rewinds
// the cursor so the next chunk starts at the current clock time.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/hiplay/pkg/audio"
)

// ErrClosed is returned by [Scheduler.Enqueue] after [Scheduler.Close].
var ErrClosed = errors.New("playback: scheduler closed")

// Output is the output clock and sink that buffers are scheduled on.
//
// Implementations must not invoke onEnded synchronously from within Schedule.
type Output interface {
	// Now returns the current position of the output clock.
	Now() time.Duration

	// Schedule arranges for buf to start playing at the clock position at.
	// If at is already in the past, playback starts immediately. onEnded is
	// called once when the buffer finishes playing naturally; it is not
	// called for sources that were stopped.
	Schedule(buf *audio.Buffer, at time.Duration, onEnded func()) (Source, error)

	// Resume wakes a suspended output. It is called at the start of every
	// session and must be safe to call on a running output.
	Resume() error
}

// Source is one buffer scheduled on an [Output].
type Source interface {
	// Stop halts the source immediately. Stopping a source that already
	// finished or was already stopped is a no-op.
	Stop()
}

// Resetter is implemented by outputs that hold audio beyond the scheduled
// sources (a device-side buffer, for example) and can discard it.
type Resetter interface {
	Reset() error
}

// Recorder receives scheduling telemetry. *observe.Metrics satisfies it.
type Recorder interface {
	RecordChunkScheduled(ctx context.Context, d time.Duration)
	RecordInterrupt(ctx context.Context)
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithSpeakingHook registers fn to be called whenever the speaking flag
// changes. fn is called without internal locks held and must not block.
func WithSpeakingHook(fn func(speaking bool)) Option {
	return func(s *Scheduler) { s.onSpeaking = fn }
}

// WithInterruptHook registers fn to be called after every [Scheduler.InterruptAll].
// Callers use it to clear partially streamed text.
func WithInterruptHook(fn func()) Option {
	return func(s *Scheduler) { s.onInterrupt = fn }
}

// WithRecorder sets the telemetry sink.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.rec = r }
}

// Scheduler places decoded buffers on an [Output] in arrival order.
// All exported methods are safe for concurrent use.
type Scheduler struct {
	out         Output
	onSpeaking  func(bool)
	onInterrupt func()
	rec         Recorder

	mu       sync.Mutex
	next     time.Duration // earliest start for the next buffer
	active   map[uint64]Source
	seq      uint64
	speaking bool
	closed   bool
}

// New creates a Scheduler that plays through out.
func New(out Output, opts ...Option) *Scheduler {
	s := &Scheduler{
		out:    out,
		active: make(map[uint64]Source),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enqueue schedules buf at max(cursor, clock now), advances the cursor by the
// buffer's duration, and returns the chosen start time.
func (s *Scheduler) Enqueue(buf *audio.Buffer) (time.Duration, error) {
	if buf == nil || buf.Frames() == 0 {
		return 0, errors.New("playback: empty buffer")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}

	startAt := max(s.next, s.out.Now())
	s.seq++
	id := s.seq
	src, err := s.out.Schedule(buf, startAt, func() { s.ended(id) })
	if err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("playback: schedule: %w", err)
	}
	s.next = startAt + buf.Duration()
	s.active[id] = src
	changed := !s.speaking
	s.speaking = true
	s.mu.Unlock()

	if changed && s.onSpeaking != nil {
		s.onSpeaking(true)
	}
	if s.rec != nil {
		s.rec.RecordChunkScheduled(context.Background(), buf.Duration())
	}
	return startAt, nil
}

// ended handles the natural completion of source id. Completions for sources
// that were already removed by an interrupt are ignored.
func (s *Scheduler) ended(id uint64) {
	s.mu.Lock()
	if _, ok := s.active[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.active, id)
	changed := len(s.active) == 0 && s.speaking
	if changed {
		s.speaking = false
	}
	s.mu.Unlock()

	if changed && s.onSpeaking != nil {
		s.onSpeaking(false)
	}
}

// InterruptAll stops every active source, clears the active set, resets the
// cursor to zero, and flushes the output device when it supports [Resetter].
// The speaking flag is false when InterruptAll returns.
func (s *Scheduler) InterruptAll() {
	s.mu.Lock()
	sources := s.active
	s.active = make(map[uint64]Source)
	s.next = 0
	wasSpeaking := s.speaking
	s.speaking = false
	for _, src := range sources {
		src.Stop()
	}
	if r, ok := s.out.(Resetter); ok {
		_ = r.Reset()
	}
	s.mu.Unlock()

	if wasSpeaking && s.onSpeaking != nil {
		s.onSpeaking(false)
	}
	if s.onInterrupt != nil {
		s.onInterrupt()
	}
	if s.rec != nil {
		s.rec.RecordInterrupt(context.Background())
	}
}

// Close interrupts all playback and rejects further buffers. Close is
// idempotent.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.InterruptAll()
	return nil
}

// Active returns the number of sources that are scheduled or playing.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Speaking reports whether any source is scheduled or playing.
func (s *Scheduler) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Cursor returns the earliest start time for the next buffer, before it is
// clamped to the clock.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
