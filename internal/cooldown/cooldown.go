package cooldown

import (
	"sync"
	"time"
)

type key struct {
	target string
	action string
}

// Guard suppresses repeated identical actions fired too recently. A
// just-restarted service briefly still reports stale metrics; without
// the guard the loop would re-fire the same remediation every cycle.
//
// State is in-memory only and owned by the loop that created the guard;
// it resets to empty on process restart.
type Guard struct {
	window time.Duration
	now    func() time.Time
	mu     sync.Mutex
	fired  map[key]time.Time
}

// NewGuard creates a guard with the given cooldown window. A nil now
// function uses the wall clock; tests inject their own.
func NewGuard(window time.Duration, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}

	return &Guard{
		window: window,
		now:    now,
		fired:  make(map[key]time.Time),
	}
}

// Allow reports whether the (target, action) pair may fire now.
// Different actions on the same target are independent.
func (g *Guard) Allow(target, action string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	lastFired, ok := g.fired[key{target, action}]
	if !ok {
		return true
	}

	return g.now().Sub(lastFired) >= g.window
}

// Record supersedes the pair's last-fired time. Called after every
// dispatch, failed executions included, so a failing action cannot storm.
func (g *Guard) Record(target, action string, firedAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.fired[key{target, action}] = firedAt
}

// LastFired returns when the pair last fired, if ever.
func (g *Guard) LastFired(target, action string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.fired[key{target, action}]

	return t, ok
}
