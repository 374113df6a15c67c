// Package observe provides the observability primitives for hiplay:
// OpenTelemetry metrics, tracing helpers, and the HTTP middleware used by the
// optional /metrics listener.
//
// Metrics are recorded through the OpenTelemetry Metrics API and bridged to
// Prometheus by [InitProvider]. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with their own [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all hiplay metrics.
const meterName = "github.com/MrWong99/hiplay"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Session lifecycle ---

	// SessionsStarted counts connect attempts. Use with attribute:
	//   attribute.String("status", "ok"|"acquisition"|"connection")
	SessionsStarted metric.Int64Counter

	// StateTransitions counts lifecycle state changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	StateTransitions metric.Int64Counter

	// ActiveSessions tracks whether a session is currently connected.
	ActiveSessions metric.Int64UpDownCounter

	// ConnectDuration tracks the time from dial to setupComplete.
	ConnectDuration metric.Float64Histogram

	// ReconnectAttempts counts scheduled automatic reconnects.
	ReconnectAttempts metric.Int64Counter

	// --- Audio ---

	// FramesSent counts captured frames forwarded to the stream.
	FramesSent metric.Int64Counter

	// FramesDropped counts captured frames discarded by the outbox. Use with
	// attribute:
	//   attribute.String("reason", "full"|"closed")
	FramesDropped metric.Int64Counter

	// ChunksScheduled counts model audio chunks handed to the output device.
	ChunksScheduled metric.Int64Counter

	// ScheduledAudio accumulates the scheduled playback length in seconds.
	ScheduledAudio metric.Float64Counter

	// DecodeErrors counts malformed inbound audio payloads.
	DecodeErrors metric.Int64Counter

	// Interrupts counts barge-in interruptions of playback.
	Interrupts metric.Int64Counter

	// --- Conversation ---

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// TurnsCompleted counts finalized turns.
	TurnsCompleted metric.Int64Counter

	// --- HTTP ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// connectBuckets covers dial plus setup handshakes from fast local networks
// up to the setup timeout.
var connectBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5, 10, 15,
}

// NewMetrics creates all metric instruments from the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	// Lifecycle.
	if met.SessionsStarted, err = m.Int64Counter("hiplay.sessions.started",
		metric.WithDescription("Total session start attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.StateTransitions, err = m.Int64Counter("hiplay.session.transitions",
		metric.WithDescription("Total lifecycle state transitions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("hiplay.active_sessions",
		metric.WithDescription("Number of connected realtime sessions."),
	); err != nil {
		return nil, err
	}
	if met.ConnectDuration, err = m.Float64Histogram("hiplay.connect.duration",
		metric.WithDescription("Time from dial to setup completion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(connectBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ReconnectAttempts, err = m.Int64Counter("hiplay.reconnect.attempts",
		metric.WithDescription("Total automatic reconnect attempts scheduled."),
	); err != nil {
		return nil, err
	}

	// Audio.
	if met.FramesSent, err = m.Int64Counter("hiplay.audio.frames.sent",
		metric.WithDescription("Captured audio frames forwarded to the stream."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("hiplay.audio.frames.dropped",
		metric.WithDescription("Captured audio frames dropped before sending."),
	); err != nil {
		return nil, err
	}
	if met.ChunksScheduled, err = m.Int64Counter("hiplay.audio.chunks.scheduled",
		metric.WithDescription("Model audio chunks scheduled for playback."),
	); err != nil {
		return nil, err
	}
	if met.ScheduledAudio, err = m.Float64Counter("hiplay.audio.scheduled",
		metric.WithDescription("Total model audio scheduled for playback."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("hiplay.audio.decode.errors",
		metric.WithDescription("Malformed inbound audio payloads dropped."),
	); err != nil {
		return nil, err
	}
	if met.Interrupts, err = m.Int64Counter("hiplay.audio.interrupts",
		metric.WithDescription("Playback interruptions."),
	); err != nil {
		return nil, err
	}

	// Conversation.
	if met.ToolCalls, err = m.Int64Counter("hiplay.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.TurnsCompleted, err = m.Int64Counter("hiplay.turns.completed",
		metric.WithDescription("Total completed conversation turns."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("hiplay.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordSessionStart records a start attempt with its outcome.
func (m *Metrics) RecordSessionStart(ctx context.Context, status string) {
	m.SessionsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordTransition records a lifecycle state change and keeps
// ActiveSessions in step with the connected state.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.StateTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
	switch {
	case to == "connected" && from != "connected":
		m.ActiveSessions.Add(ctx, 1)
	case from == "connected" && to != "connected":
		m.ActiveSessions.Add(ctx, -1)
	}
}

// RecordConnect records the duration of a successful connect.
func (m *Metrics) RecordConnect(ctx context.Context, d time.Duration) {
	m.ConnectDuration.Record(ctx, d.Seconds())
}

// RecordReconnect records one scheduled automatic reconnect.
func (m *Metrics) RecordReconnect(ctx context.Context, attempt int) {
	m.ReconnectAttempts.Add(ctx, 1, metric.WithAttributes(attribute.Int("attempt", attempt)))
}

// RecordFrameSent records one captured frame forwarded to the stream.
func (m *Metrics) RecordFrameSent(ctx context.Context) {
	m.FramesSent.Add(ctx, 1)
}

// RecordFrameDropped records one captured frame dropped for reason.
func (m *Metrics) RecordFrameDropped(ctx context.Context, reason string) {
	m.FramesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordChunkScheduled records one chunk handed to the output device.
func (m *Metrics) RecordChunkScheduled(ctx context.Context, d time.Duration) {
	m.ChunksScheduled.Add(ctx, 1)
	m.ScheduledAudio.Add(ctx, d.Seconds())
}

// RecordInterrupt records one playback interruption.
func (m *Metrics) RecordInterrupt(ctx context.Context) {
	m.Interrupts.Add(ctx, 1)
}

// RecordDecodeError records one dropped inbound audio payload.
func (m *Metrics) RecordDecodeError(ctx context.Context) {
	m.DecodeErrors.Add(ctx, 1)
}

// RecordToolCall records a tool call with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordTurn records one completed turn.
func (m *Metrics) RecordTurn(ctx context.Context) {
	m.TurnsCompleted.Add(ctx, 1)
}
