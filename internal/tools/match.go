package tools

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// MatchOption configures a [Matcher].
type MatchOption func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a candidate
// that shares a Double Metaphone code with the input. Default: 0.70.
func WithPhoneticThreshold(threshold float64) MatchOption {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a candidate with
// no phonetic overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) MatchOption {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher resolves a spoken or model-supplied name to one of a known set of
// identifiers. Exact case-insensitive matches win; otherwise candidates that
// sound alike (Double Metaphone) are ranked by Jaro-Winkler similarity, with a
// stricter pure-similarity fallback.
//
// A Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewMatcher returns a Matcher with the default thresholds.
func NewMatcher(opts ...MatchOption) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns the candidate that best matches name. When nothing clears the
// thresholds, ok is false.
func (m *Matcher) Match(name string, candidates []string) (match string, score float64, ok bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return "", 0, false
	}
	for _, c := range candidates {
		if strings.EqualFold(strings.TrimSpace(c), needle) {
			return c, 1, true
		}
	}

	tokens := strings.Fields(needle)
	codes := metaphoneCodes(tokens)

	var best string
	var bestScore float64
	bestPhonetic := false
	for _, c := range candidates {
		cand := strings.ToLower(strings.TrimSpace(c))
		if cand == "" {
			continue
		}
		candTokens := strings.Fields(cand)
		s := similarity(tokens, candTokens, needle, cand)

		if sharesCode(codes, metaphoneCodes(candTokens)) {
			if s >= m.phoneticThreshold && (!bestPhonetic || s > bestScore) {
				best, bestScore, bestPhonetic = c, s, true
			}
		} else if !bestPhonetic && s >= m.fuzzyThreshold && s > bestScore {
			best, bestScore = c, s
		}
	}
	if best == "" {
		return "", 0, false
	}
	return best, bestScore, true
}

func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func sharesCode(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score over the full strings, the
// space-stripped strings, and every token pair.
func similarity(aTokens, bTokens []string, a, b string) float64 {
	score := matchr.JaroWinkler(a, b, false)
	if len(aTokens) > 1 || len(bTokens) > 1 {
		score = max(score, matchr.JaroWinkler(strings.Join(aTokens, ""), strings.Join(bTokens, ""), false))
	}
	for _, at := range aTokens {
		for _, bt := range bTokens {
			score = max(score, matchr.JaroWinkler(at, bt, false))
		}
	}
	return score
}
