package session

import (
	"errors"
	"time"

	"github.com/MrWong99/hiplay/internal/tools"
)

// Sentinel errors. Start wraps the underlying cause with one of these so
// callers can tell a device problem from a network problem.
var (
	// ErrAcquisition reports that an audio device could not be opened or
	// resumed. It is fatal to the current start and never retried.
	ErrAcquisition = errors.New("session: audio device unavailable")

	// ErrConnection reports that the streaming connection failed to open.
	ErrConnection = errors.New("session: connection failed")

	// ErrUnknownVoice is returned by SetVoice for an unconfigured persona.
	ErrUnknownVoice = errors.New("session: unknown voice")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("session: manager closed")
)

// State is the lifecycle state of the manager.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateError
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// CloseReason records why the last session ended.
type CloseReason int

const (
	ReasonNone CloseReason = iota
	// ReasonUser: Stop was called. Suppresses auto-reconnect.
	ReasonUser
	// ReasonRemote: the endpoint closed the stream.
	ReasonRemote
	// ReasonError: the session failed to open or broke.
	ReasonError
)

// String returns the lower-case reason name.
func (r CloseReason) String() string {
	switch r {
	case ReasonUser:
		return "user"
	case ReasonRemote:
		return "remote"
	case ReasonError:
		return "error"
	default:
		return "none"
	}
}

// Voice is one selectable persona.
type Voice struct {
	// ID identifies the persona, e.g. "Paraibana".
	ID string

	// APIVoice is the endpoint's prebuilt voice name, e.g. "Puck".
	APIVoice string

	// Name is shown in the UI and named in the system instruction.
	Name string

	// Persona is appended to the system instruction while active.
	Persona string
}

// Status is a snapshot of the observable surface.
type Status struct {
	State  State
	Reason CloseReason

	// Err is the message of the failure that put the manager into
	// StateError, or of the remote close being retried.
	Err error

	// AuthRequired is set when the failure looks like a credential problem.
	AuthRequired bool

	// Reconnecting is set while an automatic retry is scheduled.
	Reconnecting bool
	Attempt      int
	RetryAt      time.Time

	// Level is the microphone loudness in [0, 100].
	Level int

	// Speaking reports whether model audio is scheduled or playing.
	Speaking bool

	// StreamingText is the cleaned model transcript of the current turn.
	StreamingText string

	Voice      Voice
	Highlights []tools.Highlight
}
