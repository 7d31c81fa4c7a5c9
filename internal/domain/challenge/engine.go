// Package challenge implements the hold-challenge engine: one timed attempt
// to hold a target pose for a required duration before a deadline.
package challenge

import (
	"time"

	"github.com/okian/volleycoach/internal/domain/clock"
	"github.com/okian/volleycoach/internal/domain/pose"
)

// Status of a challenge.
type Status int

const (
	Idle Status = iota
	Awaiting
	Holding
	Succeeded
	Expired
)

func (s Status) String() string {
	switch s {
	case Awaiting:
		return "awaiting"
	case Holding:
		return "holding"
	case Succeeded:
		return "succeeded"
	case Expired:
		return "expired"
	default:
		return "idle"
	}
}

// Active reports whether the challenge still accepts input.
func (s Status) Active() bool { return s == Awaiting || s == Holding }

// Kind names a signal emitted by the engine.
type Kind string

const (
	SignalStarted     Kind = "challenge-started"
	SignalHoldStarted Kind = "hold-started"
	SignalProgress    Kind = "progress"
	SignalHoldBroken  Kind = "hold-broken"
	SignalSuccess     Kind = "success"
	SignalExpired     Kind = "expired"
	SignalCountdown   Kind = "countdown"
)

// Signal is emitted on every transition and countdown tick.
type Signal struct {
	Kind      Kind
	Target    string
	Result    pose.Result
	Elapsed   time.Duration
	Remaining int
	At        time.Time
}

// Policy holds the tunable constants of a challenge.
type Policy struct {
	Threshold float64
	Hold      time.Duration
	Limit     time.Duration
	Tick      time.Duration
}

// DefaultPolicy: confidence above 0.7, held 2s, within 5 one-second ticks.
func DefaultPolicy() Policy {
	return Policy{
		Threshold: 0.7,
		Hold:      2 * time.Second,
		Limit:     5 * time.Second,
		Tick:      time.Second,
	}
}

// State is a snapshot of the running challenge.
type State struct {
	Target    string
	Status    Status
	StartedAt time.Time
	Deadline  time.Time
	// HoldStart is zero while no hold is in progress.
	HoldStart time.Time
	Hold      time.Duration
	Ticks     int
	Remaining int
}

// Engine runs one challenge at a time. It is not safe for concurrent use;
// callers serialize input and timer callbacks through their dispatcher.
type Engine struct {
	clock  clock.Clock
	policy Policy
	sink   func(Signal)

	state  State
	limit  int
	ticker clock.Timer
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for timestamps and the countdown ticker.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithPolicy overrides DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// New creates an idle Engine reporting to sink.
func New(sink func(Signal), opts ...Option) *Engine {
	e := &Engine{
		clock:  clock.Real(),
		policy: DefaultPolicy(),
		sink:   sink,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the engine's policy.
func (e *Engine) Policy() Policy { return e.policy }

// State returns a copy of the current challenge state.
func (e *Engine) State() State { return e.state }

// Start begins a challenge for target. Any previous challenge and its
// ticker are cancelled first.
func (e *Engine) Start(target string, hold, limit time.Duration) {
	e.stopTicker()

	now := e.clock.Now()
	e.limit = tickCount(limit, e.policy.Tick)
	e.state = State{
		Target:    target,
		Status:    Awaiting,
		StartedAt: now,
		Deadline:  now.Add(limit),
		Hold:      hold,
		Remaining: e.limit,
	}
	e.ticker = e.clock.Every(e.policy.Tick, e.Tick)
	e.emit(Signal{Kind: SignalStarted, Remaining: e.limit, At: now})
}

// StartDefault starts a challenge with the policy's hold and limit.
func (e *Engine) StartDefault(target string) {
	e.Start(target, e.policy.Hold, e.policy.Limit)
}

// Stop cancels the running challenge without emitting a signal.
func (e *Engine) Stop() {
	e.stopTicker()
	if e.state.Status.Active() {
		e.state.Status = Idle
		e.state.HoldStart = time.Time{}
	}
}

// OnClassification applies one classification result. Results arriving
// outside an active challenge, or at or after the deadline, are ignored.
func (e *Engine) OnClassification(r pose.Result) {
	if !e.state.Status.Active() {
		return
	}
	now := e.clock.Now()
	if !now.Before(e.state.Deadline) {
		return
	}

	if !r.Qualifies(e.state.Target, e.policy.Threshold) {
		if !e.state.HoldStart.IsZero() {
			e.state.HoldStart = time.Time{}
			e.state.Status = Awaiting
			e.emit(Signal{Kind: SignalHoldBroken, Result: r, At: now})
		}
		return
	}

	if e.state.HoldStart.IsZero() {
		e.state.HoldStart = now
		e.state.Status = Holding
		e.emit(Signal{Kind: SignalHoldStarted, Result: r, At: now})
		return
	}

	elapsed := now.Sub(e.state.HoldStart)
	if elapsed >= e.state.Hold {
		e.state.Status = Succeeded
		e.stopTicker()
		e.emit(Signal{Kind: SignalSuccess, Result: r, Elapsed: elapsed, At: now})
		return
	}
	e.emit(Signal{Kind: SignalProgress, Result: r, Elapsed: elapsed, At: now})
}

// OnTick expires the challenge once now reaches the deadline.
func (e *Engine) OnTick(now time.Time) {
	if !e.state.Status.Active() {
		return
	}
	if now.Before(e.state.Deadline) {
		return
	}
	e.state.Status = Expired
	e.state.HoldStart = time.Time{}
	e.stopTicker()
	e.emit(Signal{Kind: SignalExpired, At: now})
}

// Tick advances the countdown by one interval. The tick time is nominal,
// startedAt + n*interval, so ticker jitter never moves the deadline.
func (e *Engine) Tick() {
	if !e.state.Status.Active() {
		return
	}
	e.state.Ticks++
	now := e.state.StartedAt.Add(time.Duration(e.state.Ticks) * e.policy.Tick)
	e.state.Remaining = max(e.limit-e.state.Ticks, 0)
	e.emit(Signal{Kind: SignalCountdown, Remaining: e.state.Remaining, At: now})
	e.OnTick(now)
}

func (e *Engine) emit(s Signal) {
	s.Target = e.state.Target
	if e.sink != nil {
		e.sink(s)
	}
}

func (e *Engine) stopTicker() {
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
}

func tickCount(limit, tick time.Duration) int {
	if tick <= 0 {
		return 1
	}
	return max(int((limit+tick-1)/tick), 1)
}
