// Package mock provides a scripted live.Provider and live.Conn for unit tests.
//
// Tests push inbound events with [Conn.Emit], end the stream from the remote
// side with [Conn.CloseRemote], and inspect everything the code under test sent
// through the recorded fields.
//
//	p := &mock.Provider{}
//	conn, _ := p.Connect(ctx, live.Config{})
//	p.Last().Emit(live.TurnComplete{})
package mock

import (
	"context"
	"sync"

	"google.golang.org/genai"

	"github.com/MrWong99/hiplay/pkg/audio"
	"github.com/MrWong99/hiplay/pkg/provider/live"
)

var (
	_ live.Provider = (*Provider)(nil)
	_ live.Conn     = (*Conn)(nil)
)

// ─── Provider ─────────────────────────────────────────────────────────────────

// Provider is a mock implementation of [live.Provider].
type Provider struct {
	mu sync.Mutex

	// ConnectErrors are returned by successive Connect calls. Once the slice
	// is exhausted Connect succeeds.
	ConnectErrors []error

	// Gate, if non-nil, makes Connect block until it is closed or ctx ends.
	Gate chan struct{}

	// Configs records the configuration of every Connect call.
	Configs []live.Config

	conns []*Conn
}

// Connect implements [live.Provider].
func (p *Provider) Connect(ctx context.Context, cfg live.Config) (live.Conn, error) {
	p.mu.Lock()
	p.Configs = append(p.Configs, cfg)
	gate := p.Gate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &live.ConnectionError{Op: "dial", Err: ctx.Err()}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ConnectErrors) > 0 {
		err := p.ConnectErrors[0]
		p.ConnectErrors = p.ConnectErrors[1:]
		return nil, err
	}
	c := NewConn()
	p.conns = append(p.conns, c)
	return c, nil
}

// Conns returns every connection opened so far.
func (p *Provider) Conns() []*Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Conn, len(p.conns))
	copy(out, p.conns)
	return out
}

// Last returns the most recently opened connection, or nil.
func (p *Provider) Last() *Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.conns) == 0 {
		return nil
	}
	return p.conns[len(p.conns)-1]
}

// ConnectCalls returns how many times Connect was called.
func (p *Provider) ConnectCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Configs)
}

// ─── Conn ─────────────────────────────────────────────────────────────────────

// Conn is a mock implementation of [live.Conn].
type Conn struct {
	events chan live.Event

	mu        sync.Mutex
	closed    bool
	err       error
	audio     []audio.Chunk
	responses []*genai.FunctionResponse

	// SendError, if non-nil, is returned by SendAudio and SendToolResponse.
	SendError error

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewConn returns an open Conn.
func NewConn() *Conn {
	return &Conn{events: make(chan live.Event, 256)}
}

// Emit delivers ev to the consumer. Emit is a no-op once the stream ended.
func (c *Conn) Emit(ev live.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.events <- ev
}

// CloseRemote ends the stream as if the endpoint had closed it with err.
func (c *Conn) CloseRemote(err error) {
	c.end(err)
}

func (c *Conn) end(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.err = err
	c.events <- live.Closed{Err: err}
	close(c.events)
}

// SendAudio implements [live.Conn].
func (c *Conn) SendAudio(chunk audio.Chunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return live.ErrClosed
	}
	if c.SendError != nil {
		return c.SendError
	}
	c.audio = append(c.audio, chunk)
	return nil
}

// SendToolResponse implements [live.Conn].
func (c *Conn) SendToolResponse(responses ...*genai.FunctionResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return live.ErrClosed
	}
	if c.SendError != nil {
		return c.SendError
	}
	c.responses = append(c.responses, responses...)
	return nil
}

// Events implements [live.Conn].
func (c *Conn) Events() <-chan live.Event { return c.events }

// Err implements [live.Conn].
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close implements [live.Conn].
func (c *Conn) Close() error {
	c.mu.Lock()
	c.CallCountClose++
	c.mu.Unlock()
	c.end(nil)
	return nil
}

// Audio returns a copy of every chunk sent.
func (c *Conn) Audio() []audio.Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]audio.Chunk, len(c.audio))
	copy(out, c.audio)
	return out
}

// ToolResponses returns a copy of every tool response sent.
func (c *Conn) ToolResponses() []*genai.FunctionResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*genai.FunctionResponse, len(c.responses))
	copy(out, c.responses)
	return out
}

// Closed reports whether the stream has ended.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CloseCount returns how many times Close was called.
func (c *Conn) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountClose
}
