// Package live defines the abstraction over a realtime, bidirectional
// speech-to-speech endpoint.
//
// A [Provider] opens a [Conn] with a negotiated [Config]. Outbound audio and
// tool results are written with the Send methods; everything the endpoint
// emits arrives in order on [Conn.Events] as values of the [Event] sum type.
// The last value on the channel is always a [Closed] event, after which the
// channel is closed.
//
// The configuration of an open Conn is fixed. Changing the voice or the
// instructions requires closing the Conn and connecting again.
package live

import (
	"context"

	"google.golang.org/genai"

	"github.com/MrWong99/hiplay/pkg/audio"
)

// Config is the configuration negotiated when a connection opens.
type Config struct {
	// Model overrides the provider's default model when non-empty.
	Model string

	// VoiceName is the endpoint's prebuilt voice, e.g. "Puck".
	VoiceName string

	// SystemInstruction is sent as the system prompt.
	SystemInstruction string

	// ResponseModalities lists the requested output modalities. Defaults to
	// audio only.
	ResponseModalities []genai.Modality

	// InputTranscription and OutputTranscription request partial transcripts
	// of the user's speech and the model's speech respectively.
	InputTranscription  bool
	OutputTranscription bool

	// Tools are the function declarations offered to the model.
	Tools []*genai.FunctionDeclaration

	// GoogleSearch enables search grounding.
	GoogleSearch bool
}

// Conn is an open connection. All methods are safe for concurrent use.
type Conn interface {
	// SendAudio writes one captured frame. It returns an error once the
	// connection is closed.
	SendAudio(chunk audio.Chunk) error

	// SendToolResponse answers one or more tool calls, matched by ID.
	SendToolResponse(responses ...*genai.FunctionResponse) error

	// Events returns the inbound event stream. The channel is closed after
	// the terminal [Closed] event. Consumers must drain it until then.
	Events() <-chan Event

	// Err returns the error that ended the connection, or nil while it is
	// open or after a clean close.
	Err() error

	// Close terminates the connection. Calling Close more than once is safe
	// and returns nil.
	Close() error
}

// Provider opens connections to a realtime endpoint. Implementations must be
// safe for concurrent use.
type Provider interface {
	// Connect opens a connection and returns once the endpoint has accepted
	// the configuration. Failures are reported as *[ConnectionError].
	Connect(ctx context.Context, cfg Config) (Conn, error)
}
