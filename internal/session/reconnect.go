package session

import (
	"time"
)

// Default reconnection parameters.
const (
	defaultMaxRetries = 5
	defaultBackoff    = 500 * time.Millisecond
	defaultMaxBackoff = 5 * time.Second
)

// ReconnectPolicy controls automatic reconnection after the endpoint closes
// a session that the user did not stop.
type ReconnectPolicy struct {
	// Enabled turns auto-reconnect on.
	Enabled bool

	// Backoff is the wait before the first retry. It doubles after every
	// consecutive failure up to MaxBackoff. Defaults to 500ms if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on the wait. Defaults to 5s if zero.
	MaxBackoff time.Duration

	// MaxRetries bounds consecutive retries before the manager gives up and
	// reports an error. Defaults to 5 if zero.
	MaxRetries int
}

func (p ReconnectPolicy) withDefaults() ReconnectPolicy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = defaultMaxRetries
	}
	if p.Backoff <= 0 {
		p.Backoff = defaultBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = defaultMaxBackoff
	}
	if p.MaxBackoff < p.Backoff {
		p.MaxBackoff = p.Backoff
	}
	return p
}

// Delay returns the wait before retry number attempt (starting at 1), and
// false once attempt exceeds MaxRetries.
func (p ReconnectPolicy) Delay(attempt int) (time.Duration, bool) {
	p = p.withDefaults()
	if attempt < 1 || attempt > p.MaxRetries {
		return 0, false
	}
	d := p.Backoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff, true
		}
	}
	return d, true
}

// reconnector owns the single pending retry. It is only used from the
// manager's control goroutine, so it needs no locking of its own. The timer
// callback only posts a command carrying the generation it was armed for.
type reconnector struct {
	policy   ReconnectPolicy
	attempts int
	timer    *time.Timer
	after    func(time.Duration, func()) *time.Timer
}

func newReconnector(p ReconnectPolicy) *reconnector {
	return &reconnector{policy: p, after: time.AfterFunc}
}

// schedule arms the next retry. It replaces any pending one and reports
// false, without arming anything, when retries are disabled or exhausted.
func (r *reconnector) schedule(fire func()) (attempt int, delay time.Duration, ok bool) {
	r.cancel()
	if !r.policy.Enabled {
		return 0, 0, false
	}
	delay, ok = r.policy.Delay(r.attempts + 1)
	if !ok {
		return r.attempts, 0, false
	}
	r.attempts++
	r.timer = r.after(delay, fire)
	return r.attempts, delay, true
}

// pending reports whether a retry is armed.
func (r *reconnector) pending() bool {
	return r.timer != nil
}

// fired clears the pending timer once its command runs.
func (r *reconnector) fired() {
	r.timer = nil
}

// cancel disarms a pending retry. Timers that already fired are filtered by
// their generation.
func (r *reconnector) cancel() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// reset forgets consecutive failures after a successful connect or a user
// action.
func (r *reconnector) reset() {
	r.cancel()
	r.attempts = 0
}
