package playback_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/hiplay/pkg/audio"
	"github.com/MrWong99/hiplay/pkg/audio/mock"
	"github.com/MrWong99/hiplay/pkg/audio/playback"
)

// bufferOf returns a mono 24 kHz buffer lasting d.
func bufferOf(d time.Duration) *audio.Buffer {
	n := int(d * 24000 / time.Second)
	return &audio.Buffer{Samples: make([]float32, n), SampleRate: 24000, Channels: 1}
}

type recorder struct {
	mu         sync.Mutex
	scheduled  int
	interrupts int
}

func (r *recorder) RecordChunkScheduled(context.Context, time.Duration) {
	r.mu.Lock()
	r.scheduled++
	r.mu.Unlock()
}

func (r *recorder) RecordInterrupt(context.Context) {
	r.mu.Lock()
	r.interrupts++
	r.mu.Unlock()
}

func TestEnqueue_BackToBack(t *testing.T) {
	t.Parallel()

	out := &mock.Output{}
	out.Set(2 * time.Second)
	s := playback.New(out)

	t0 := out.Now()
	for i := range 3 {
		start, err := s.Enqueue(bufferOf(500 * time.Millisecond))
		if err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
		want := t0 + time.Duration(i)*500*time.Millisecond
		if start != want {
			t.Errorf("chunk %d start = %v, want %v", i, start, want)
		}
	}
	if got := len(out.Scheduled()); got != 3 {
		t.Errorf("scheduled %d buffers, want 3", got)
	}
	if got := s.Cursor(); got != t0+1500*time.Millisecond {
		t.Errorf("Cursor = %v, want %v", got, t0+1500*time.Millisecond)
	}
}

func TestEnqueue_NeverOverlapsOrStartsInPast(t *testing.T) {
	t.Parallel()

	out := &mock.Output{}
	s := playback.New(out)

	durations := []time.Duration{
		120 * time.Millisecond, 40 * time.Millisecond, 300 * time.Millisecond,
		10 * time.Millisecond, 250 * time.Millisecond, 80 * time.Millisecond,
	}
	steps := []time.Duration{0, 0, 500 * time.Millisecond, 5 * time.Millisecond, 0, time.Second}

	var prevEnd time.Duration
	for i, d := range durations {
		out.Advance(steps[i])
		now := out.Now()
		start, err := s.Enqueue(bufferOf(d))
		if err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
		if start < prevEnd {
			t.Errorf("chunk %d starts at %v, before previous end %v", i, start, prevEnd)
		}
		if start < now {
			t.Errorf("chunk %d starts at %v, before clock %v", i, start, now)
		}
		prevEnd = start + d
	}
}

func TestEnqueue_ConcurrentCallersGetDistinctSlots(t *testing.T) {
	t.Parallel()

	out := &mock.Output{}
	s := playback.New(out)

	const n = 32
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Enqueue(bufferOf(100 * time.Millisecond)); err != nil {
				t.Errorf("Enqueue: %v", err)
			}
		}()
	}
	wg.Wait()

	seen := make(map[time.Duration]bool)
	for _, c := range out.Scheduled() {
		if seen[c.At] {
			t.Fatalf("two buffers scheduled at %v", c.At)
		}
		seen[c.At] = true
	}
	if got := s.Cursor(); got != n*100*time.Millisecond {
		t.Errorf("Cursor = %v, want %v", got, n*100*time.Millisecond)
	}
}

func TestSpeakingFlag_FollowsActiveSet(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var changes []bool
	out := &mock.Output{}
	s := playback.New(out, playback.WithSpeakingHook(func(v bool) {
		mu.Lock()
		changes = append(changes, v)
		mu.Unlock()
	}))

	if s.Speaking() {
		t.Fatal("new scheduler should not be speaking")
	}
	_, _ = s.Enqueue(bufferOf(200 * time.Millisecond))
	_, _ = s.Enqueue(bufferOf(200 * time.Millisecond))
	if !s.Speaking() || s.Active() != 2 {
		t.Fatalf("Speaking=%v Active=%d, want true 2", s.Speaking(), s.Active())
	}

	out.Advance(200 * time.Millisecond)
	if !s.Speaking() || s.Active() != 1 {
		t.Fatalf("after first end: Speaking=%v Active=%d, want true 1", s.Speaking(), s.Active())
	}

	out.Advance(200 * time.Millisecond)
	if s.Speaking() || s.Active() != 0 {
		t.Fatalf("after drain: Speaking=%v Active=%d, want false 0", s.Speaking(), s.Active())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 2 || !changes[0] || changes[1] {
		t.Errorf("speaking changes = %v, want [true false]", changes)
	}
}

func TestInterruptAll_StopsEverythingAndResetsCursor(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	interrupted := 0
	out := &mock.Output{}
	s := playback.New(out,
		playback.WithInterruptHook(func() { interrupted++ }),
		playback.WithRecorder(rec),
	)

	for range 3 {
		_, _ = s.Enqueue(bufferOf(500 * time.Millisecond))
	}
	out.Advance(250 * time.Millisecond)

	s.InterruptAll()

	if s.Active() != 0 {
		t.Errorf("Active = %d, want 0", s.Active())
	}
	if s.Speaking() {
		t.Error("Speaking should be false immediately after InterruptAll")
	}
	if s.Cursor() != 0 {
		t.Errorf("Cursor = %v, want 0", s.Cursor())
	}
	if out.Stopped() != 3 || out.Playing() != 0 {
		t.Errorf("Stopped=%d Playing=%d, want 3 0", out.Stopped(), out.Playing())
	}
	if out.CallCountReset != 1 {
		t.Errorf("Reset called %d times, want 1", out.CallCountReset)
	}
	if interrupted != 1 {
		t.Errorf("interrupt hook fired %d times, want 1", interrupted)
	}

	// The next chunk starts at the clock, not at the stale cursor.
	now := out.Now()
	start, err := s.Enqueue(bufferOf(100 * time.Millisecond))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if start != now {
		t.Errorf("start after interrupt = %v, want %v", start, now)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.scheduled != 4 || rec.interrupts != 1 {
		t.Errorf("recorder scheduled=%d interrupts=%d, want 4 1", rec.scheduled, rec.interrupts)
	}
}

func TestInterruptAll_IgnoresLateEndCallbacks(t *testing.T) {
	t.Parallel()

	out := &mock.Output{}
	s := playback.New(out)
	_, _ = s.Enqueue(bufferOf(100 * time.Millisecond))
	s.InterruptAll()
	_, _ = s.Enqueue(bufferOf(time.Second))

	// The first source was stopped, so advancing past its end must not
	// remove the second one.
	out.Advance(200 * time.Millisecond)
	if s.Active() != 1 || !s.Speaking() {
		t.Errorf("Active=%d Speaking=%v, want 1 true", s.Active(), s.Speaking())
	}
}

func TestInterruptAll_WhenIdleIsHarmless(t *testing.T) {
	t.Parallel()

	s := playback.New(&mock.Output{})
	s.InterruptAll()
	s.InterruptAll()
	if s.Active() != 0 || s.Speaking() {
		t.Error("idle interrupt changed state")
	}
}

func TestEnqueue_Errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("device gone")
	out := &mock.Output{ScheduleError: boom}
	s := playback.New(out)

	if _, err := s.Enqueue(bufferOf(100 * time.Millisecond)); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapping %v", err, boom)
	}
	if s.Speaking() || s.Cursor() != 0 {
		t.Error("failed schedule must not move the cursor or flip speaking")
	}
	if _, err := s.Enqueue(&audio.Buffer{SampleRate: 24000, Channels: 1}); err == nil {
		t.Error("expected error for empty buffer")
	}

	_ = s.Close()
	_ = s.Close()
	out.ScheduleError = nil
	if _, err := s.Enqueue(bufferOf(100 * time.Millisecond)); !errors.Is(err, playback.ErrClosed) {
		t.Errorf("err after Close = %v, want ErrClosed", err)
	}
}
