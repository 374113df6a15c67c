package live

import (
	"errors"
	"strings"
)

// ErrClosed is returned by Send methods after the connection has closed.
var ErrClosed = errors.New("live: connection closed")

// ConnectionError reports a handshake or mid-session protocol failure.
type ConnectionError struct {
	// Op is the failing step, e.g. "dial", "setup", or "read".
	Op string

	// Code is the WebSocket close code or HTTP status, when known.
	Code int

	// Reason is the message supplied by the endpoint, when any.
	Reason string

	// AuthRequired is set when the failure looks like a credential problem
	// and the user should be asked to re-authorise.
	AuthRequired bool

	Err error
}

func (e *ConnectionError) Error() string {
	var b strings.Builder
	b.WriteString("live: ")
	b.WriteString(e.Op)
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsAuthRequired reports whether err is a *ConnectionError that was classified
// as a credential problem.
func IsAuthRequired(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce) && ce.AuthRequired
}

var authHints = []string{
	"api key",
	"api_key",
	"apikey",
	"permission",
	"unauthenticated",
	"unauthorized",
	"authentication",
	"credential",
	"requested entity was not found",
}

// LooksLikeAuth reports whether an endpoint message suggests a credential
// problem.
func LooksLikeAuth(msg string) bool {
	msg = strings.ToLower(msg)
	for _, h := range authHints {
		if strings.Contains(msg, h) {
			return true
		}
	}
	return false
}
