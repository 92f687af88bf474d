// Package circuit provides a small failure-count circuit breaker for calls to
// external collaborators. A breaker trips after N consecutive failures; while
// open it sheds calls until a cooldown elapses, then admits one probe at a
// time, and recovers after M consecutive successes.
package circuit

import (
	"sync"
	"time"
)

// State describes the breaker position.
type State string

const (
	StateClosed State = "closed"
	StateOpen   State = "open"
)

const defaultCooldown = 30 * time.Second

// StateChange reports a transition caused by the recorded result.
type StateChange struct {
	Opened bool
	Closed bool
}

// Breaker tracks consecutive failures and successes for one named dependency.
type Breaker struct {
	mu   sync.Mutex
	name string

	failureThreshold int
	successThreshold int
	cooldown         time.Duration

	failures  int
	successes int
	open      bool

	// nextProbe gates half-open probing; probing marks one already in flight.
	nextProbe time.Time
	probing   bool
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets how many consecutive failures open the circuit.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithSuccessThreshold sets how many consecutive successes close an open
// circuit.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

// WithCooldown sets how long an open breaker sheds every call before it
// admits the next probe.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// New creates a closed breaker with a 5-failure / 1-success / 30s-cooldown
// default.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: 5,
		successThreshold: 1,
		cooldown:         defaultCooldown,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the dependency name this breaker guards.
func (b *Breaker) Name() string { return b.name }

// IsOpen reports whether callers should take the fallback path.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open {
		return StateOpen
	}
	return StateClosed
}

// Allow reports whether a call may proceed. A closed breaker admits every
// call. An open breaker sheds calls until the cooldown elapses, then admits a
// single probe; the caller must report the probe's outcome via RecordSuccess
// or RecordFailure before another is admitted.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return true
	}
	if b.probing || time.Now().Before(b.nextProbe) {
		return false
	}
	b.probing = true
	return true
}

// RecordFailure notes a failed call. It returns whether callers should now use
// the fallback, and whether this call transitioned the breaker.
func (b *Breaker) RecordFailure() (useFallback bool, change StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes = 0
	b.probing = false
	if b.open {
		// Failed probe: shed for another full cooldown.
		b.nextProbe = time.Now().Add(b.cooldown)
		return true, StateChange{}
	}
	b.failures++
	if b.failures >= b.failureThreshold {
		b.open = true
		b.failures = 0
		b.nextProbe = time.Now().Add(b.cooldown)
		return true, StateChange{Opened: true}
	}
	return false, StateChange{}
}

// RecordSuccess notes a successful call. It returns whether callers should use
// the primary path, and whether this call transitioned the breaker.
func (b *Breaker) RecordSuccess() (usePrimary bool, change StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probing = false
	if !b.open {
		return true, StateChange{}
	}
	b.successes++
	if b.successes >= b.successThreshold {
		b.open = false
		b.successes = 0
		return true, StateChange{Closed: true}
	}
	// A successful probe earns the next one immediately.
	b.nextProbe = time.Now()
	return false, StateChange{}
}

// Reset manually closes the breaker and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	b.failures = 0
	b.successes = 0
	b.probing = false
	b.nextProbe = time.Time{}
}
