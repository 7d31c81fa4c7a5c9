// Package practice sequences one hold challenge per training pose, gates
// progression and surfaces tips on timeout.
package practice

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/volleycoach/internal/domain/challenge"
	"github.com/okian/volleycoach/internal/domain/clock"
	"github.com/okian/volleycoach/internal/domain/model"
	"github.com/okian/volleycoach/internal/domain/pose"
	"github.com/okian/volleycoach/pkg/logger"
	"github.com/okian/volleycoach/pkg/metrics"
)

// State of the practice controller.
type State int

const (
	Idle State = iota
	Running
	Completed
	Expired
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Expired:
		return "expired"
	default:
		return "idle"
	}
}

// Navigator moves the tutorial to another scene.
type Navigator interface {
	ShowScene(scene pose.Scene) error
}

// Controller runs practice challenges. Like the engine, it must only be
// used from the owning session's dispatcher.
type Controller struct {
	progress *Progress
	nav      Navigator
	emit     func(model.Event)
	log      logger.Logger

	clock  clock.Clock
	policy challenge.Policy
	engine *challenge.Engine

	current pose.Pose
	state   State
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock the challenge engine schedules on.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithPolicy sets the challenge policy.
func WithPolicy(p challenge.Policy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a practice controller bound to progress and nav.
func New(progress *Progress, nav Navigator, emit func(model.Event), opts ...Option) *Controller {
	c := &Controller{
		progress: progress,
		nav:      nav,
		emit:     emit,
		log:      logger.Nop(),
		clock:    clock.Real(),
		policy:   challenge.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.engine = challenge.New(c.onSignal, challenge.WithClock(c.clock), challenge.WithPolicy(c.policy))
	return c
}

// Start begins a challenge for p. Locked poses are refused with ErrLocked.
func (c *Controller) Start(p pose.Pose) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %q", pose.ErrUnknownPose, p)
	}
	if !c.progress.Unlocked(p) {
		return fmt.Errorf("%w: %s requires %s", ErrLocked, p, p.Entry().Requires)
	}

	c.current = p
	c.state = Running
	metrics.RecordChallengeStarted(string(model.ModePractice), string(p))
	c.log.Debug(context.Background(), "practice challenge started", logger.String("pose", string(p)))
	c.engine.Start(p.Label(), c.policy.Hold, c.policy.Limit)
	return nil
}

// Retry starts p again after an expiry. A pose that was just completed is
// not retried: success already left its practice scene, and practicing it
// again means showing that scene again.
func (c *Controller) Retry(p pose.Pose) error {
	switch {
	case p == "":
		return ErrNoPose
	case c.state == Running:
		return ErrRunning
	case c.state == Completed && c.current == p:
		return fmt.Errorf("%w: %s", ErrCompleted, p)
	}
	return c.Start(p)
}

// Stop cancels a running challenge silently.
func (c *Controller) Stop() {
	c.engine.Stop()
	if c.state == Running {
		c.state = Idle
	}
}

// OnClassification forwards a result to the running challenge.
func (c *Controller) OnClassification(r pose.Result) { c.engine.OnClassification(r) }

// Active reports whether a challenge is running.
func (c *Controller) Active() bool { return c.state == Running }

// Current returns the pose of the running or last challenge.
func (c *Controller) Current() pose.Pose { return c.current }

// State returns the controller state.
func (c *Controller) State() State { return c.state }

// Challenge returns the engine state of the current challenge.
func (c *Controller) Challenge() challenge.State { return c.engine.State() }

func (c *Controller) onSignal(s challenge.Signal) {
	entry := c.current.Entry()
	ev := model.Event{Mode: model.ModePractice, Pose: c.current, At: s.At}

	switch s.Kind {
	case challenge.SignalStarted:
		ev.Type = model.EventChallengeStarted
		ev.Message = entry.ReadyText
		ev.Remaining = model.Int(s.Remaining)
		c.emit(ev)

	case challenge.SignalHoldStarted:
		ev.Type = model.EventHoldStarted
		ev.Label, ev.Confidence = s.Result.Label, s.Result.Confidence
		ev.Message = fmt.Sprintf("%s detected", s.Result.Label)
		c.emit(ev)

	case challenge.SignalProgress:
		ev.Type = model.EventProgress
		ev.Label, ev.Confidence = s.Result.Label, s.Result.Confidence
		ev.ElapsedMS = s.Elapsed.Milliseconds()
		c.emit(ev)

	case challenge.SignalHoldBroken:
		ev.Type = model.EventHoldBroken
		ev.Label, ev.Confidence = s.Result.Label, s.Result.Confidence
		ev.Message = fmt.Sprintf("Detected: %s (%d%%)", s.Result.Label, int(math.Round(s.Result.Confidence*100)))
		metrics.RecordHoldBroken(string(model.ModePractice), string(c.current))
		c.emit(ev)

	case challenge.SignalCountdown:
		ev.Type = model.EventCountdown
		ev.Remaining = model.Int(s.Remaining)
		c.emit(ev)
		if s.Remaining == 1 && entry.FinalCall != "" {
			c.emit(model.Event{Type: model.EventCoaching, Mode: model.ModePractice, Pose: c.current, Message: entry.FinalCall, At: s.At})
		}

	case challenge.SignalSuccess:
		c.succeed(entry, ev, s)

	case challenge.SignalExpired:
		c.state = Expired
		metrics.RecordChallengeFinished(string(model.ModePractice), string(c.current), "expired")
		c.log.Debug(context.Background(), "practice challenge expired", logger.String("pose", string(c.current)))
		ev.Type = model.EventExpired
		ev.Message = "Time expired"
		ev.Tip = entry.Tip
		c.emit(ev)
	}
}

func (c *Controller) succeed(entry pose.Entry, ev model.Event, s challenge.Signal) {
	c.state = Completed
	c.progress.Complete(c.current)

	metrics.RecordChallengeFinished(string(model.ModePractice), string(c.current), "succeeded")
	metrics.RecordTimeToSuccess(string(model.ModePractice), float64(s.At.Sub(c.engine.State().StartedAt).Milliseconds()))
	metrics.RecordPoseCompleted(string(c.current))
	c.log.Info(context.Background(), "pose completed",
		logger.String("pose", string(c.current)),
		logger.Duration("held", s.Elapsed),
	)

	ev.Type = model.EventSuccess
	ev.Label, ev.Confidence = s.Result.Label, s.Result.Confidence
	ev.ElapsedMS = s.Elapsed.Milliseconds()
	ev.Message = entry.SuccessText
	ev.NextScene = entry.NextScene
	c.emit(ev)
	c.emit(model.Event{Type: model.EventProgressUpdated, Completed: c.progress.Snapshot(), At: s.At})

	if err := c.nav.ShowScene(entry.NextScene); err != nil {
		c.log.Warn(context.Background(), "advance after success failed",
			logger.String("scene", string(entry.NextScene)),
			logger.Error(err),
		)
	}
}
