package capture_test

import (
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/hiplay/pkg/audio"
	"github.com/MrWong99/hiplay/pkg/audio/capture"
	"github.com/MrWong99/hiplay/pkg/audio/mock"
)

type sink struct {
	mu     sync.Mutex
	chunks []audio.Chunk
	levels []int
	got    chan struct{}
}

func newSink() *sink { return &sink{got: make(chan struct{}, 64)} }

func (s *sink) send(c audio.Chunk) {
	s.mu.Lock()
	s.chunks = append(s.chunks, c)
	s.mu.Unlock()
	s.got <- struct{}{}
}

func (s *sink) level(l int) {
	s.mu.Lock()
	s.levels = append(s.levels, l)
	s.mu.Unlock()
}

func (s *sink) wait(t *testing.T, n int) {
	t.Helper()
	for range n {
		select {
		case <-s.got:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for chunk")
		}
	}
}

func constFrame(n int, v float32) []float32 {
	f := make([]float32, n)
	for i := range f {
		f[i] = v
	}
	return f
}

func TestPipeline_ForwardsEncodedFrames(t *testing.T) {
	t.Parallel()

	src := mock.NewSource(16000)
	out := newSink()
	p := capture.New(src, out.send,
		capture.WithFrameSize(256),
		capture.WithLevelHook(out.level),
	)
	p.Start()
	defer p.Stop()

	src.Push(constFrame(256, 0))
	src.Push(constFrame(256, 0.1))
	out.wait(t, 2)

	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(out.chunks))
	}
	for i, c := range out.chunks {
		if c.MIMEType != "audio/pcm;rate=16000" {
			t.Errorf("chunk %d mime = %q", i, c.MIMEType)
		}
		if c.SampleRate != 16000 {
			t.Errorf("chunk %d rate = %d", i, c.SampleRate)
		}
		raw, err := base64.StdEncoding.DecodeString(c.Data)
		if err != nil {
			t.Fatalf("chunk %d not base64: %v", i, err)
		}
		if len(raw) != 512 {
			t.Errorf("chunk %d is %d bytes, want 512", i, len(raw))
		}
	}
	if len(out.levels) != 2 || out.levels[0] != 0 || out.levels[1] != 50 {
		t.Errorf("levels = %v, want [0 50]", out.levels)
	}
}

func TestPipeline_FrameSizeClamped(t *testing.T) {
	t.Parallel()

	src := mock.NewSource(16000)
	out := newSink()
	p := capture.New(src, out.send, capture.WithFrameSize(10_000))
	p.Start()
	defer p.Stop()

	src.Push(constFrame(8192, 0))
	out.wait(t, 1)

	out.mu.Lock()
	defer out.mu.Unlock()
	raw, _ := base64.StdEncoding.DecodeString(out.chunks[0].Data)
	if len(raw) != capture.MaxFrameSize*2 {
		t.Errorf("frame is %d bytes, want %d", len(raw), capture.MaxFrameSize*2)
	}
}

func TestPipeline_StopReleasesDeviceAndSilences(t *testing.T) {
	t.Parallel()

	src := mock.NewSource(16000)
	out := newSink()
	p := capture.New(src, out.send, capture.WithFrameSize(256))
	p.Start()

	src.Push(constFrame(256, 0))
	out.wait(t, 1)

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !src.Closed() {
		t.Error("Stop must close the source")
	}
	select {
	case <-p.Done():
	default:
		t.Error("Stop returned before the capture goroutine exited")
	}
	if err := p.Err(); err != nil {
		t.Errorf("Err after Stop = %v, want nil", err)
	}

	// Second Stop is a no-op.
	if err := p.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
	if src.CallCountClose != 1 {
		t.Errorf("Close called %d times, want 1", src.CallCountClose)
	}

	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.chunks) != 1 {
		t.Errorf("got %d chunks, want 1", len(out.chunks))
	}
}

func TestPipeline_StopWithoutStart(t *testing.T) {
	t.Parallel()

	src := mock.NewSource(16000)
	p := capture.New(src, func(audio.Chunk) { t.Error("unexpected send") })
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	<-p.Done()
	p.Start()
	if !src.Closed() {
		t.Error("source not closed")
	}
}

func TestPipeline_ReadErrorEndsCapture(t *testing.T) {
	t.Parallel()

	boom := errors.New("device unplugged")
	src := mock.NewSource(16000)
	src.ReadError = boom
	p := capture.New(src, func(audio.Chunk) {})
	p.Start()

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not stop after read error")
	}
	if !errors.Is(p.Err(), boom) {
		t.Errorf("Err = %v, want %v", p.Err(), boom)
	}
	_ = p.Stop()
}
