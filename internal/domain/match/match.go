// Package match runs a first-to-N sequence of randomized hold challenges
// between the player and a simulated opponent.
package match

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/okian/volleycoach/internal/domain/challenge"
	"github.com/okian/volleycoach/internal/domain/clock"
	"github.com/okian/volleycoach/internal/domain/model"
	"github.com/okian/volleycoach/internal/domain/pose"
	"github.com/okian/volleycoach/pkg/logger"
	"github.com/okian/volleycoach/pkg/metrics"
)

// Status of a match.
type Status int

const (
	NotStarted Status = iota
	InProgress
	PlayerWon
	OpponentWon
)

func (s Status) String() string {
	switch s {
	case InProgress:
		return "in_progress"
	case PlayerWon:
		return "player_won"
	case OpponentWon:
		return "opponent_won"
	default:
		return "not_started"
	}
}

// Finished reports whether a winner was declared.
func (s Status) Finished() bool { return s == PlayerWon || s == OpponentWon }

// Side scored a point.
type Side string

const (
	Player   Side = "player"
	Opponent Side = "opponent"
)

// Point is one played pose and who took it.
type Point struct {
	Pose   pose.Pose `json:"pose"`
	Winner Side      `json:"winner"`
}

// State is a snapshot of the match.
type State struct {
	Status        Status
	PlayerScore   int
	OpponentScore int
	// History holds the poses the player completed, in order.
	History []pose.Pose
	// Index counts poses started so far; the running one is POSE Index.
	Index   int
	Current pose.Pose
	Points  []Point
	Target  int
}

// Remaining is how many more player points end the match.
func (s State) Remaining() int { return max(s.Target-s.PlayerScore, 0) }

const (
	defaultPointsToWin = 3
	defaultPause       = 1500 * time.Millisecond
)

// Navigator moves the tutorial to another scene.
type Navigator interface {
	ShowScene(scene pose.Scene) error
}

// Controller runs matches. It must only be used from the owning session's
// dispatcher.
type Controller struct {
	nav  Navigator
	emit func(model.Event)
	log  logger.Logger

	clock       clock.Clock
	policy      challenge.Policy
	pointsToWin int
	pause       time.Duration
	rng         *rand.Rand

	engine *challenge.Engine
	timer  clock.Timer
	state  State
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock for challenges and the pause between points.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithPolicy sets the challenge policy.
func WithPolicy(p challenge.Policy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithPointsToWin sets how many points end the match.
func WithPointsToWin(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.pointsToWin = n
		}
	}
}

// WithPause sets the pause between points.
func WithPause(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.pause = d
		}
	}
}

// WithRand sets the pose picker's random source.
func WithRand(r *rand.Rand) Option {
	return func(c *Controller) {
		if r != nil {
			c.rng = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a match controller.
func New(nav Navigator, emit func(model.Event), opts ...Option) *Controller {
	c := &Controller{
		nav:         nav,
		emit:        emit,
		log:         logger.Nop(),
		clock:       clock.Real(),
		policy:      challenge.DefaultPolicy(),
		pointsToWin: defaultPointsToWin,
		pause:       defaultPause,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // pose order is not security sensitive
	}
	for _, opt := range opts {
		opt(c)
	}
	c.engine = challenge.New(c.onSignal, challenge.WithClock(c.clock), challenge.WithPolicy(c.policy))
	c.state.Target = c.pointsToWin
	return c
}

// Start resets the match and starts the first point. Any running challenge
// and pending pause are cancelled first.
func (c *Controller) Start() {
	c.cancel()
	c.state = State{Status: InProgress, Target: c.pointsToWin}

	metrics.RecordMatchStarted()
	c.log.Debug(context.Background(), "match started", logger.Int("points_to_win", c.pointsToWin))
	c.emit(c.scored(model.Event{Type: model.EventMatchStarted, Mode: model.ModeMatch, At: c.clock.Now()}))
	c.next()
}

// Restart is Start from any state.
func (c *Controller) Restart() { c.Start() }

// Stop cancels the match without declaring a winner.
func (c *Controller) Stop() {
	c.cancel()
	if c.state.Status == InProgress {
		c.state.Status = NotStarted
	}
}

// OnClassification forwards a result to the running point.
func (c *Controller) OnClassification(r pose.Result) { c.engine.OnClassification(r) }

// Active reports whether a point is being played.
func (c *Controller) Active() bool {
	return c.state.Status == InProgress && c.engine.State().Status.Active()
}

// State returns a copy of the match state.
func (c *Controller) State() State {
	s := c.state
	s.History = append([]pose.Pose(nil), c.state.History...)
	s.Points = append([]Point(nil), c.state.Points...)
	return s
}

// Challenge returns the engine state of the current point.
func (c *Controller) Challenge() challenge.State { return c.engine.State() }

func (c *Controller) cancel() {
	c.engine.Stop()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// pick draws uniformly from the poses, excluding the last completed one.
// A pose called for a lost point may therefore be called again right away.
func (c *Controller) pick() pose.Pose {
	pool := pose.All
	if n := len(c.state.History); n > 0 {
		last := c.state.History[n-1]
		pool = make([]pose.Pose, 0, len(pose.All)-1)
		for _, p := range pose.All {
			if p != last {
				pool = append(pool, p)
			}
		}
	}
	return pool[c.rng.Intn(len(pool))]
}

func (c *Controller) decided() bool {
	return c.state.PlayerScore >= c.pointsToWin || c.state.OpponentScore >= c.pointsToWin
}

func (c *Controller) next() {
	c.timer = nil
	if c.state.Status != InProgress {
		return
	}
	if c.decided() {
		c.finish()
		return
	}

	p := c.pick()
	c.state.Index++
	c.state.Current = p
	metrics.RecordChallengeStarted(string(model.ModeMatch), string(p))
	c.engine.Start(p.Label(), c.policy.Hold, c.policy.Limit)
}

func (c *Controller) onSignal(s challenge.Signal) {
	p := c.state.Current
	ev := model.Event{Mode: model.ModeMatch, Pose: p, At: s.At}

	switch s.Kind {
	case challenge.SignalStarted:
		ev.Type = model.EventChallengeStarted
		ev.PointNumber = c.state.Index
		ev.Hint = p.Entry().MatchHint
		ev.Message = fmt.Sprintf("Show %s pose!", p)
		ev.Remaining = model.Int(s.Remaining)
		c.emit(c.scored(ev))

	case challenge.SignalHoldStarted:
		ev.Type = model.EventHoldStarted
		ev.Label, ev.Confidence = s.Result.Label, s.Result.Confidence
		ev.Message = "Hold it!"
		c.emit(ev)

	case challenge.SignalProgress:
		ev.Type = model.EventProgress
		ev.Label, ev.Confidence = s.Result.Label, s.Result.Confidence
		ev.ElapsedMS = s.Elapsed.Milliseconds()
		c.emit(ev)

	case challenge.SignalHoldBroken:
		ev.Type = model.EventHoldBroken
		ev.Label, ev.Confidence = s.Result.Label, s.Result.Confidence
		metrics.RecordHoldBroken(string(model.ModeMatch), string(p))
		c.emit(ev)

	case challenge.SignalCountdown:
		ev.Type = model.EventCountdown
		ev.Remaining = model.Int(s.Remaining)
		c.emit(ev)

	case challenge.SignalSuccess:
		metrics.RecordChallengeFinished(string(model.ModeMatch), string(p), "succeeded")
		metrics.RecordTimeToSuccess(string(model.ModeMatch), float64(s.At.Sub(c.engine.State().StartedAt).Milliseconds()))
		ev.Type = model.EventSuccess
		ev.Label, ev.Confidence = s.Result.Label, s.Result.Confidence
		ev.ElapsedMS = s.Elapsed.Milliseconds()
		ev.Message = fmt.Sprintf("Perfect %s!", p)
		c.emit(ev)
		c.score(Player, s.At)

	case challenge.SignalExpired:
		metrics.RecordChallengeFinished(string(model.ModeMatch), string(p), "expired")
		ev.Type = model.EventExpired
		c.emit(ev)
		c.score(Opponent, s.At)
	}
}

func (c *Controller) score(side Side, at time.Time) {
	if c.state.Status != InProgress || c.decided() {
		return
	}

	p := c.state.Current
	switch side {
	case Player:
		c.state.PlayerScore++
		c.state.History = append(c.state.History, p)
	case Opponent:
		c.state.OpponentScore++
	}
	c.state.Points = append(c.state.Points, Point{Pose: p, Winner: side})

	if c.decided() {
		if c.state.PlayerScore >= c.pointsToWin {
			c.state.Status = PlayerWon
		} else {
			c.state.Status = OpponentWon
		}
	}

	metrics.RecordMatchPoint(string(side))
	c.emit(c.scored(model.Event{
		Type:        model.EventMatchPoint,
		Mode:        model.ModeMatch,
		Pose:        p,
		PointNumber: c.state.Index,
		Winner:      string(side),
		At:          at,
	}))

	c.timer = c.clock.AfterFunc(c.pause, c.afterPause)
}

func (c *Controller) afterPause() {
	c.timer = nil
	if c.state.Status.Finished() {
		c.finish()
		return
	}
	c.next()
}

func (c *Controller) finish() {
	if c.state.Status == InProgress {
		// Reached only if the bound was met before a point was started.
		if c.state.PlayerScore >= c.pointsToWin {
			c.state.Status = PlayerWon
		} else {
			c.state.Status = OpponentWon
		}
	}

	winner, msg := Player, "You win the rally!"
	if c.state.Status == OpponentWon {
		winner, msg = Opponent, "The opponent scores this point."
	}
	metrics.RecordMatchCompleted(string(winner))
	c.log.Info(context.Background(), "match over",
		logger.String("winner", string(winner)),
		logger.Int("player", c.state.PlayerScore),
		logger.Int("opponent", c.state.OpponentScore),
	)
	c.emit(c.scored(model.Event{
		Type:    model.EventMatchOver,
		Mode:    model.ModeMatch,
		Winner:  string(winner),
		Message: msg,
		At:      c.clock.Now(),
	}))

	if err := c.nav.ShowScene(pose.SceneTrainingHub); err != nil {
		c.log.Warn(context.Background(), "return to hub failed", logger.Error(err))
	}
}

// scored stamps the scoreboard onto ev.
func (c *Controller) scored(ev model.Event) model.Event {
	ev.PlayerScore = model.Int(c.state.PlayerScore)
	ev.OpponentScore = model.Int(c.state.OpponentScore)
	ev.RemainingPoints = model.Int(c.state.Remaining())
	return ev
}
