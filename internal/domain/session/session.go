// Package session ties the practice and match controllers to one user:
// it serializes every input through a single dispatcher, owns the active
// challenge handle and implements scene navigation with unlock gating.
package session

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/volleycoach/internal/domain/challenge"
	"github.com/okian/volleycoach/internal/domain/clock"
	"github.com/okian/volleycoach/internal/domain/match"
	"github.com/okian/volleycoach/internal/domain/model"
	"github.com/okian/volleycoach/internal/domain/pose"
	"github.com/okian/volleycoach/internal/domain/practice"
	"github.com/okian/volleycoach/pkg/logger"
	"github.com/okian/volleycoach/pkg/metrics"
)

const defaultReadyDelay = time.Second

// handle is whichever controller currently consumes classification results.
type handle interface {
	OnClassification(r pose.Result)
	Active() bool
}

// Session is one user's run through the tutorial. All methods are safe for
// concurrent use.
type Session struct {
	id string

	mu       sync.Mutex
	closed   bool
	clock    clock.Clock
	renderer Renderer
	log      logger.Logger

	policy      challenge.Policy
	readyDelay  time.Duration
	pointPause  time.Duration
	pointsToWin int
	rng         *rand.Rand

	scene    pose.Scene
	progress *practice.Progress
	practice *practice.Controller
	match    *match.Controller
	active   handle
	ready    clock.Timer

	createdAt    time.Time
	lastActivity time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the base clock; the session serializes its callbacks.
func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithRenderer sets the signal consumer.
func WithRenderer(r Renderer) Option {
	return func(s *Session) {
		if r != nil {
			s.renderer = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithPolicy sets the challenge policy for practice and match.
func WithPolicy(p challenge.Policy) Option {
	return func(s *Session) { s.policy = p }
}

// WithReadyDelay sets the pause between entering a practice scene and its
// first challenge.
func WithReadyDelay(d time.Duration) Option {
	return func(s *Session) { s.readyDelay = d }
}

// WithPointPause sets the pause between match points.
func WithPointPause(d time.Duration) Option {
	return func(s *Session) { s.pointPause = d }
}

// WithPointsToWin sets the match bound.
func WithPointsToWin(n int) Option {
	return func(s *Session) { s.pointsToWin = n }
}

// WithRand sets the match pose picker's random source.
func WithRand(r *rand.Rand) Option {
	return func(s *Session) { s.rng = r }
}

// New creates a session on the start scene.
func New(id string, opts ...Option) *Session {
	s := &Session{
		id:          id,
		clock:       clock.Real(),
		renderer:    discard{},
		log:         logger.Nop(),
		policy:      challenge.DefaultPolicy(),
		readyDelay:  defaultReadyDelay,
		pointPause:  1500 * time.Millisecond,
		pointsToWin: 3,
		scene:       pose.SceneStart,
		progress:    practice.NewProgress(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.String("session", id))
	s.clock = clock.Serialized(s.clock, s.dispatch)

	nav := navigator{s}
	s.practice = practice.New(s.progress, nav, s.emit,
		practice.WithClock(s.clock),
		practice.WithPolicy(s.policy),
		practice.WithLogger(s.log.Named("practice")),
	)
	s.match = match.New(nav, s.emit,
		match.WithClock(s.clock),
		match.WithPolicy(s.policy),
		match.WithPause(s.pointPause),
		match.WithPointsToWin(s.pointsToWin),
		match.WithRand(s.rng),
		match.WithLogger(s.log.Named("match")),
	)

	s.createdAt = s.clock.Now()
	s.lastActivity = s.createdAt
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// dispatch runs fn under the session lock unless the session is closed.
func (s *Session) dispatch(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	fn()
}

// do runs fn under the session lock and records activity.
func (s *Session) do(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.lastActivity = s.clock.Now()
	return fn()
}

// ShowScene navigates to scene. Leaving a scene cancels whatever challenge,
// ready delay or match it was running.
func (s *Session) ShowScene(scene pose.Scene) error {
	return s.do(func() error { return s.showScene(scene) })
}

// Retry restarts the practice challenge of the current scene. During the
// ready delay it starts the challenge right away.
func (s *Session) Retry() error {
	return s.do(func() error {
		p, practicing, ok := pose.ForScene(s.scene)
		if !ok || !practicing {
			return fmt.Errorf("%w: retry in %s", ErrWrongScene, s.scene)
		}
		if s.ready != nil {
			s.cancelReady()
			s.startPractice(p)
			return nil
		}
		if err := s.practice.Retry(p); err != nil {
			return err
		}
		s.active = s.practice
		return nil
	})
}

// StartMatch starts a match, or restarts the one in progress.
func (s *Session) StartMatch() error {
	return s.do(func() error {
		if s.scene != pose.SceneMatch {
			return fmt.Errorf("%w: match in %s", ErrWrongScene, s.scene)
		}
		s.startMatch()
		return nil
	})
}

// RestartMatch plays another match. After a match is over the session has
// already returned to the hub, so it goes back to the match scene first.
func (s *Session) RestartMatch() error {
	return s.do(func() error {
		if s.scene != pose.SceneMatch {
			if !s.match.State().Status.Finished() {
				return fmt.Errorf("%w: match in %s", ErrWrongScene, s.scene)
			}
			if err := s.showScene(pose.SceneMatch); err != nil {
				return err
			}
		}
		s.startMatch()
		return nil
	})
}

func (s *Session) startMatch() {
	s.practice.Stop()
	s.match.Start()
	s.active = s.match
}

// Classify delivers one classification result to the active challenge.
// It reports whether a challenge consumed it.
func (s *Session) Classify(r pose.Result) bool {
	applied := false
	_ = s.do(func() error {
		if s.active != nil && s.active.Active() {
			s.active.OnClassification(r)
			applied = true
		}
		return nil
	})
	return applied
}

// Checking reports whether a challenge currently consumes classifications.
func (s *Session) Checking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil && s.active.Active()
}

// ReportFault surfaces an external-dependency fault as a status line. The
// running challenge is not touched.
func (s *Session) ReportFault(msg string) {
	_ = s.do(func() error {
		s.emit(model.Event{Type: model.EventStatus, Message: msg})
		return nil
	})
}

// LastActivity returns the time of the last input.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Close stops every timer; later calls are no-ops.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.stopAll()
	s.closed = true
}

func (s *Session) showScene(scene pose.Scene) error {
	p, practicing, isPoseScene := pose.ForScene(scene)
	switch {
	case isPoseScene && !s.progress.Unlocked(p):
		return fmt.Errorf("%w: %s requires %s", ErrLocked, scene, p.Entry().Requires)
	case scene == pose.SceneMatch && !s.progress.AllCompleted():
		return fmt.Errorf("%w: %s requires every pose", ErrLocked, scene)
	}

	s.stopAll()
	s.scene = scene
	metrics.RecordSceneChange(string(scene))
	s.log.Debug(context.Background(), "scene changed", logger.String("scene", string(scene)))

	ev := model.Event{Type: model.EventSceneChanged, Scene: scene}
	if scene == pose.SceneTrainingHub {
		ev.Pose = s.progress.Active()
		ev.Completed = s.progress.Snapshot()
	}
	s.emit(ev)

	if practicing {
		s.ready = s.clock.AfterFunc(s.readyDelay, func() {
			s.ready = nil
			s.startPractice(p)
		})
	}
	return nil
}

func (s *Session) startPractice(p pose.Pose) {
	if err := s.practice.Start(p); err != nil {
		s.log.Warn(context.Background(), "practice start refused", logger.Error(err))
		s.emit(model.Event{Type: model.EventStatus, Pose: p, Message: err.Error()})
		return
	}
	s.active = s.practice
}

func (s *Session) cancelReady() {
	if s.ready != nil {
		s.ready.Stop()
		s.ready = nil
	}
}

func (s *Session) stopAll() {
	s.cancelReady()
	s.practice.Stop()
	s.match.Stop()
	s.active = nil
}

// emit stamps ev with the session and scene and hands it to the renderer.
func (s *Session) emit(ev model.Event) {
	ev.Session = s.id
	if ev.Scene == "" {
		ev.Scene = s.scene
	}
	if ev.At.IsZero() {
		ev.At = s.clock.Now()
	}
	metrics.RecordEventEmitted(string(ev.Type))
	s.renderer.Render(ev)
}

// navigator lets controllers move scenes from inside the dispatcher, where
// the session lock is already held.
type navigator struct{ s *Session }

func (n navigator) ShowScene(scene pose.Scene) error { return n.s.showScene(scene) }
