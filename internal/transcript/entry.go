// Package transcript holds finalized conversation entries and their
// persistence.
//
// Entries are created only at turn boundaries and never change afterwards.
// The sqlite-backed [SQLiteStore] keeps an append-only history across
// sessions.
package transcript

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sender identifies who spoke an entry.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// GroundingLink is a web source the model cited.
type GroundingLink struct {
	Title string
	URI   string
}

// Entry is one finalized utterance.
type Entry struct {
	ID        string
	Sender    Sender
	Text      string
	Timestamp time.Time

	// Links is only set on AI entries whose turn carried grounding.
	Links []GroundingLink
}

// NewEntry returns an entry with a fresh identifier. User ids are prefixed
// "u-" and AI ids "a-".
func NewEntry(sender Sender, text string, links []GroundingLink, now time.Time) Entry {
	prefix := "u-"
	if sender == SenderAI {
		prefix = "a-"
	}
	return Entry{
		ID:        prefix + uuid.NewString(),
		Sender:    sender,
		Text:      text,
		Timestamp: now,
		Links:     links,
	}
}

var emphasis = regexp.MustCompile(`\*\*.*?\*\*`)

// Clean strips **...** segments (the model's stage directions) and trims the
// result.
func Clean(s string) string {
	return strings.TrimSpace(emphasis.ReplaceAllString(s, ""))
}

// LinkSet accumulates grounding links for one turn, dropping empty URIs and
// keeping the first occurrence of each URI.
type LinkSet struct {
	links []GroundingLink
	seen  map[string]struct{}
}

// Add appends links that are not yet present.
func (s *LinkSet) Add(links ...GroundingLink) {
	for _, l := range links {
		if l.URI == "" {
			continue
		}
		if s.seen == nil {
			s.seen = make(map[string]struct{})
		}
		if _, dup := s.seen[l.URI]; dup {
			continue
		}
		s.seen[l.URI] = struct{}{}
		s.links = append(s.links, l)
	}
}

// Links returns a copy of the accumulated links, or nil when empty.
func (s *LinkSet) Links() []GroundingLink {
	if len(s.links) == 0 {
		return nil
	}
	out := make([]GroundingLink, len(s.links))
	copy(out, s.links)
	return out
}

// Reset empties the set.
func (s *LinkSet) Reset() {
	s.links = nil
	s.seen = nil
}
