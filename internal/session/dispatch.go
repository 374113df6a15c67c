package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/MrWong99/hiplay/internal/observe"
	"github.com/MrWong99/hiplay/internal/tools"
	"github.com/MrWong99/hiplay/internal/transcript"
	"github.com/MrWong99/hiplay/pkg/audio"
	"github.com/MrWong99/hiplay/pkg/audio/playback"
	"github.com/MrWong99/hiplay/pkg/provider/live"
)

// dispatcher routes inbound events of one connection to the playback
// scheduler, the transcript accumulators and the tool registry. It runs on
// a single goroutine, so events are handled strictly in arrival order and
// the accumulators need no locking.
type dispatcher struct {
	ctx        context.Context
	conn       live.Conn
	sched      *playback.Scheduler
	tools      *tools.Registry
	metrics    *observe.Metrics
	outputRate int
	now        func() time.Time

	// onStreaming publishes the cleaned running model text. "" clears it.
	onStreaming func(text string)

	// onTurn receives the entries finalized at a turn boundary.
	onTurn func(entries []transcript.Entry)

	currentIn  strings.Builder
	currentOut strings.Builder
	links      transcript.LinkSet
}

// run consumes events until the connection's stream ends and returns the
// error carried by the terminal Closed event.
func (d *dispatcher) run() error {
	for ev := range d.conn.Events() {
		if closed, ok := ev.(live.Closed); ok {
			// Drain whatever a misbehaving provider still sends.
			for range d.conn.Events() {
			}
			return closed.Err
		}
		d.handle(ev)
	}
	return d.conn.Err()
}

// handle processes one event. A panic in one concern is recovered and
// logged so the remaining events still flow.
func (d *dispatcher) handle(ev live.Event) {
	defer func() {
		if r := recover(); r != nil {
			observe.Logger(d.ctx).Error("session: event handler panicked", "event", fmt.Sprintf("%T", ev), "panic", r)
		}
	}()

	switch ev := ev.(type) {
	case live.AudioChunk:
		d.handleAudio(ev)
	case live.PartialTranscript:
		d.handleTranscript(ev)
	case live.Grounding:
		for _, l := range ev.Links {
			d.links.Add(transcript.GroundingLink{Title: l.Title, URI: l.URI})
		}
	case live.TurnComplete:
		d.flushTurn()
	case live.ToolCall:
		d.handleToolCall(ev)
	case live.Interrupted:
		d.sched.InterruptAll()
		d.onStreaming("")
	default:
		observe.Logger(d.ctx).Debug("session: ignoring event", "event", fmt.Sprintf("%T", ev))
	}
}

func (d *dispatcher) handleAudio(ev live.AudioChunk) {
	pcm, err := audio.DecodeBase64(ev.Data)
	if err != nil {
		d.metrics.RecordDecodeError(d.ctx)
		observe.Logger(d.ctx).Warn("session: dropping malformed audio chunk", "err", err)
		return
	}
	buf := audio.DecodeBuffer(pcm, d.outputRate, 1)
	if buf.Frames() == 0 {
		return
	}
	if _, err := d.sched.Enqueue(buf); err != nil && !errors.Is(err, playback.ErrClosed) {
		observe.Logger(d.ctx).Warn("session: schedule audio failed", "err", err)
	}
}

func (d *dispatcher) handleTranscript(ev live.PartialTranscript) {
	if ev.Direction == live.Output {
		d.currentOut.WriteString(ev.Text)
		d.onStreaming(transcript.Clean(d.currentOut.String()))
		return
	}
	d.currentIn.WriteString(ev.Text)
}

// flushTurn finalizes the turn: a user entry when input text remains after
// trimming, an AI entry when cleaned output text remains, and then clears
// every accumulator.
func (d *dispatcher) flushTurn() {
	now := d.now()
	var entries []transcript.Entry
	if in := strings.TrimSpace(d.currentIn.String()); in != "" {
		entries = append(entries, transcript.NewEntry(transcript.SenderUser, in, nil, now))
	}
	if out := transcript.Clean(d.currentOut.String()); out != "" {
		entries = append(entries, transcript.NewEntry(transcript.SenderAI, out, d.links.Links(), now))
	}
	d.currentIn.Reset()
	d.currentOut.Reset()
	d.links.Reset()

	d.metrics.RecordTurn(d.ctx)
	d.onStreaming("")
	if len(entries) > 0 {
		d.onTurn(entries)
	}
}

// handleToolCall answers every call of the message in one tool response.
// Unknown names and handler failures are answered too, so the model's turn
// never stalls waiting for a result.
func (d *dispatcher) handleToolCall(ev live.ToolCall) {
	responses := make([]*genai.FunctionResponse, 0, len(ev.Calls))
	for _, call := range ev.Calls {
		resp, err := d.tools.Invoke(d.ctx, call.Name, call.Args)
		status := "ok"
		switch {
		case errors.Is(err, tools.ErrUnsupported):
			status = "unsupported"
		case err != nil:
			status = "error"
		}
		if err != nil {
			observe.Logger(d.ctx).Info("session: tool call failed", "tool", call.Name, "id", call.ID, "err", err)
		}
		d.metrics.RecordToolCall(d.ctx, call.Name, status)
		responses = append(responses, &genai.FunctionResponse{
			ID:       call.ID,
			Name:     call.Name,
			Response: resp,
		})
	}
	if len(responses) == 0 {
		return
	}
	if err := d.conn.SendToolResponse(responses...); err != nil && !errors.Is(err, live.ErrClosed) {
		observe.Logger(d.ctx).Warn("session: send tool response failed", "err", err)
	}
}
