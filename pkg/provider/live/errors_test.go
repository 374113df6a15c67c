package live_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/MrWong99/hiplay/pkg/provider/live"
)

func TestLooksLikeAuth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		msg  string
		want bool
	}{
		{"API key not valid. Please pass a valid API key.", true},
		{"The caller does not have permission", true},
		{"Requested entity was not found.", true},
		{"UNAUTHENTICATED", true},
		{"deadline exceeded", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := live.LooksLikeAuth(tc.msg); got != tc.want {
			t.Errorf("LooksLikeAuth(%q) = %v, want %v", tc.msg, got, tc.want)
		}
	}
}

func TestConnectionError(t *testing.T) {
	t.Parallel()

	inner := errors.New("eof")
	err := fmt.Errorf("session: start: %w", &live.ConnectionError{
		Op: "read", Reason: "API key expired", AuthRequired: true, Err: inner,
	})

	if !errors.Is(err, inner) {
		t.Error("ConnectionError should unwrap to its cause")
	}
	if !live.IsAuthRequired(err) {
		t.Error("IsAuthRequired = false, want true")
	}
	if live.IsAuthRequired(inner) {
		t.Error("plain error classified as auth")
	}
	want := "session: start: live: read: API key expired: eof"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestDirectionString(t *testing.T) {
	t.Parallel()
	if live.Input.String() != "input" || live.Output.String() != "output" {
		t.Error("unexpected Direction names")
	}
}
