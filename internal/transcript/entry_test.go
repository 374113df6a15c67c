package transcript

import (
	"strings"
	"testing"
	"time"
)

func TestClean(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"olá", "olá"},
		{"  **Pensando** Oi, tudo bem?  ", "Oi, tudo bem?"},
		{"**a** meio **b** fim", "meio  fim"},
		{"**só marcação**", ""},
		{"sem **fechamento", "sem **fechamento"},
	}
	for _, tc := range tests {
		if got := Clean(tc.in); got != tc.want {
			t.Errorf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNewEntry_IDPrefix(t *testing.T) {
	t.Parallel()

	now := time.Now()
	u := NewEntry(SenderUser, "oi", nil, now)
	a := NewEntry(SenderAI, "olá", nil, now)
	if !strings.HasPrefix(u.ID, "u-") || !strings.HasPrefix(a.ID, "a-") {
		t.Errorf("ids = %q, %q", u.ID, a.ID)
	}
	if u.ID[2:] == a.ID[2:] {
		t.Error("ids are not unique")
	}
}

func TestLinkSet(t *testing.T) {
	t.Parallel()

	var s LinkSet
	s.Add(
		GroundingLink{Title: "A", URI: "https://a"},
		GroundingLink{Title: "empty"},
		GroundingLink{Title: "A again", URI: "https://a"},
	)
	s.Add(GroundingLink{Title: "B", URI: "https://b"})

	got := s.Links()
	if len(got) != 2 || got[0].Title != "A" || got[1].URI != "https://b" {
		t.Errorf("Links = %+v", got)
	}

	s.Reset()
	if s.Links() != nil {
		t.Error("Reset did not empty the set")
	}
	s.Add(GroundingLink{URI: "https://a"})
	if len(s.Links()) != 1 {
		t.Error("dedupe state survived Reset")
	}
}
