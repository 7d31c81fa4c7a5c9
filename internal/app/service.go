// Package service wires sessions, the frame pipeline and the classifier
// into the operations the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/volleycoach/internal/adapters/classifier"
	"github.com/okian/volleycoach/internal/adapters/mq/queue"
	workerpool "github.com/okian/volleycoach/internal/adapters/mq/worker"
	"github.com/okian/volleycoach/internal/adapters/repository"
	"github.com/okian/volleycoach/internal/config"
	"github.com/okian/volleycoach/internal/domain/challenge"
	"github.com/okian/volleycoach/internal/domain/clock"
	"github.com/okian/volleycoach/internal/domain/dedupe"
	"github.com/okian/volleycoach/internal/domain/model"
	"github.com/okian/volleycoach/internal/domain/pose"
	"github.com/okian/volleycoach/internal/domain/session"
	"github.com/okian/volleycoach/pkg/logger"
	"github.com/okian/volleycoach/pkg/metrics"
)

// Renderers hands out the signal consumer of each session.
type Renderers interface {
	For(sessionID string) session.Renderer
	Drop(sessionID string)
}

type nopRenderers struct{}

func (nopRenderers) For(string) session.Renderer { return session.RendererFunc(func(model.Event) {}) }
func (nopRenderers) Drop(string)                 {}

// Service owns every live session.
type Service struct {
	mu sync.RWMutex

	// Core components
	sessions   *repository.ShardedStore
	deduper    dedupe.Deduper
	pool       *workerpool.Pool
	classifier *classifier.Adapter
	model      classifier.Classifier
	renderers  Renderers
	clock      clock.Clock
	janitor    clock.Timer

	// Configuration
	workerCount     int
	queueSize       int
	dedupeSize      int
	shardCount      int
	maxSessions     int
	idleTimeout     time.Duration
	janitorInterval time.Duration
	policy          challenge.Policy
	readyDelay      time.Duration
	pointPause      time.Duration
	pointsToWin     int
	seed            int64

	// faults remembers the last status line per session so a broken
	// classifier reports once, not once per frame.
	faults sync.Map

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig applies every tunable from cfg.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		s.workerCount = cfg.WorkerCount
		s.queueSize = cfg.QueueSize
		s.dedupeSize = cfg.DedupeSize
		s.shardCount = cfg.ShardCount
		s.maxSessions = cfg.MaxSessions
		s.idleTimeout = cfg.SessionIdleTimeout()
		s.policy = challenge.Policy{
			Threshold: cfg.ConfidenceThreshold,
			Hold:      cfg.HoldDuration(),
			Limit:     cfg.TimeLimit(),
			Tick:      cfg.TickInterval(),
		}
		s.readyDelay = cfg.ReadyDelay()
		s.pointPause = cfg.PointPause()
		s.pointsToWin = cfg.PointsToWin
	}
}

// WithWorkerCount sets the number of frame lanes.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of each lane.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the frame-ID deduplication window.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithShardCount sets the number of session store shards.
func WithShardCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithMaxSessions caps live sessions; 0 is unbounded.
func WithMaxSessions(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxSessions = n
		}
	}
}

// WithIdleTimeout sets how long a session may stay idle before eviction.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// WithJanitorInterval sets how often idle sessions are swept.
func WithJanitorInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.janitorInterval = d
		}
	}
}

// WithPolicy sets the challenge policy of new sessions.
func WithPolicy(p challenge.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithReadyDelay sets the practice ready delay of new sessions.
func WithReadyDelay(d time.Duration) Option {
	return func(s *Service) { s.readyDelay = d }
}

// WithPointPause sets the pause between match points of new sessions.
func WithPointPause(d time.Duration) Option {
	return func(s *Service) { s.pointPause = d }
}

// WithSeed makes match pose picks reproducible.
func WithSeed(seed int64) Option {
	return func(s *Service) { s.seed = seed }
}

// WithClock sets the clock shared by sessions and the janitor.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithClassifier sets the keypoint classifier.
func WithClassifier(c classifier.Classifier) Option {
	return func(s *Service) {
		if c != nil {
			s.model = c
		}
	}
}

// WithRenderers sets where session signals go.
func WithRenderers(r Renderers) Option {
	return func(s *Service) {
		if r != nil {
			s.renderers = r
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:     runtime.NumCPU(),
		queueSize:       1024,
		dedupeSize:      100_000,
		shardCount:      8,
		maxSessions:     10_000,
		idleTimeout:     30 * time.Minute,
		janitorInterval: time.Minute,
		policy:          challenge.DefaultPolicy(),
		readyDelay:      time.Second,
		pointPause:      1500 * time.Millisecond,
		pointsToWin:     3,
		model:           classifier.Unavailable{},
		renderers:       nopRenderers{},
		clock:           clock.Real(),
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting coaching service...")

	s.sessions = repository.NewShardedStore(ctx,
		repository.WithShardCount(s.shardCount),
		repository.WithMaxSessions(s.maxSessions),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.classifier = classifier.NewAdapter(s.model, classifier.WithLogger(s.logger.Named("classifier")))
	s.pool = workerpool.NewPool(s.workerCount, s.queueSize,
		workerpool.HandlerFunc(s.handleFrame),
		workerpool.WithPoolLogger(s.logger.Named("worker")),
	)
	s.pool.Start(ctx)
	s.janitor = s.clock.Every(s.janitorInterval, s.evictIdle)

	s.started = true
	s.logger.Info(ctx, "coaching service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Duration("idleTimeout", s.idleTimeout),
	)
	return nil
}

// Stop drains the frame lanes and closes every session.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping coaching service...")

	s.janitor.Stop()
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "frame lanes did not drain", logger.Error(err))
	}
	for _, id := range s.sessions.IdleSince(ctx, farFuture) {
		s.drop(ctx, id)
	}
	_ = s.sessions.Close()

	s.started = false
	s.logger.Info(ctx, "coaching service stopped")
}

var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// CreateSession opens a new session on the start scene.
func (s *Service) CreateSession(ctx context.Context) (session.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return session.Snapshot{}, ErrNotStarted
	}

	id := uuid.NewString()
	opts := []session.Option{
		session.WithClock(s.clock),
		session.WithRenderer(s.renderers.For(id)),
		session.WithLogger(s.logger.Named("session")),
		session.WithPolicy(s.policy),
		session.WithReadyDelay(s.readyDelay),
		session.WithPointPause(s.pointPause),
		session.WithPointsToWin(s.pointsToWin),
	}
	if s.seed != 0 {
		opts = append(opts, session.WithRand(rand.New(rand.NewSource(s.seed)))) //nolint:gosec // pose order is not security relevant
	}
	sess := session.New(id, opts...)

	if err := s.sessions.Put(ctx, sess); err != nil {
		sess.Close()
		s.renderers.Drop(id)
		if errors.Is(err, repository.ErrCapacity) {
			return session.Snapshot{}, fmt.Errorf("%w: %w", ErrTooManySessions, err)
		}
		return session.Snapshot{}, err
	}
	metrics.RecordSessionCreated()
	s.logger.Debug(ctx, "session created", logger.String("session", id))
	return sess.Snapshot(), nil
}

// Session returns a live session.
func (s *Service) Session(ctx context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// Snapshot returns the current view of a session.
func (s *Service) Snapshot(ctx context.Context, id string) (session.Snapshot, error) {
	sess, err := s.Session(ctx, id)
	if err != nil {
		return session.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// DeleteSession closes a session and forgets it.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	if !s.drop(ctx, id) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// ShowScene navigates a session and returns its new view.
func (s *Service) ShowScene(ctx context.Context, id string, scene pose.Scene) (session.Snapshot, error) {
	sess, err := s.Session(ctx, id)
	if err != nil {
		return session.Snapshot{}, err
	}
	if err := sess.ShowScene(scene); err != nil {
		return session.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Retry restarts the practice challenge of a session.
func (s *Service) Retry(ctx context.Context, id string) error {
	sess, err := s.Session(ctx, id)
	if err != nil {
		return err
	}
	return sess.Retry()
}

// StartMatch starts a session's match.
func (s *Service) StartMatch(ctx context.Context, id string) error {
	sess, err := s.Session(ctx, id)
	if err != nil {
		return err
	}
	return sess.StartMatch()
}

// RestartMatch restarts a session's match from any state.
func (s *Service) RestartMatch(ctx context.Context, id string) error {
	sess, err := s.Session(ctx, id)
	if err != nil {
		return err
	}
	return sess.RestartMatch()
}

// SubmitFrame queues a frame for classification. It reports true when the
// frame ID was already seen and the frame was skipped.
func (s *Service) SubmitFrame(ctx context.Context, f model.Frame) (bool, error) { //nolint:gocritic // hugeParam: frames are passed by value
	if _, err := s.Session(ctx, f.SessionID); err != nil {
		return false, err
	}
	metrics.RecordFrameReceived()

	key := ""
	if f.FrameID != "" {
		key = f.SessionID + "/" + f.FrameID
		if s.deduper.SeenAndRecord(ctx, key) {
			metrics.RecordFrameDuplicate()
			s.logger.Debug(ctx, "duplicate frame skipped",
				logger.String("session", f.SessionID),
				logger.String("frame", f.FrameID),
			)
			return true, nil
		}
	}

	if f.ReceivedAt.IsZero() {
		f.ReceivedAt = s.clock.Now()
	}
	if err := s.pool.Submit(ctx, f); err != nil {
		if key != "" {
			// Let the client retry the same frame.
			s.deduper.Unrecord(ctx, key)
		}
		switch {
		case errors.Is(err, queue.ErrFull):
			metrics.RecordFrameRejected("backpressure")
			return false, fmt.Errorf("%w: %w", ErrQueueFull, err)
		case errors.Is(err, queue.ErrClosed):
			metrics.RecordFrameRejected("closed")
			return false, fmt.Errorf("%w: %w", ErrQueueClosed, err)
		default:
			metrics.RecordFrameRejected("error")
			return false, err
		}
	}
	return false, nil
}

// SubmitClassification queues an already classified result. It shares the
// session's lane with frames so results are applied in arrival order.
func (s *Service) SubmitClassification(ctx context.Context, id string, r pose.Result) error {
	_, err := s.SubmitFrame(ctx, model.Frame{SessionID: id, Result: &r})
	return err
}

// handleFrame runs on the session's lane.
func (s *Service) handleFrame(ctx context.Context, f model.Frame) error { //nolint:gocritic // hugeParam: frames are passed by value
	sess, err := s.sessions.Get(ctx, f.SessionID)
	if err != nil {
		// Deleted while the frame was queued.
		return nil
	}

	if f.Classified() {
		sess.Classify(*f.Result)
		return nil
	}
	if !sess.Checking() {
		return nil
	}

	out := s.classifier.Classify(ctx, f.Bodies)
	if out.Status != "" {
		if prev, ok := s.faults.Swap(f.SessionID, out.Status); !ok || prev != out.Status {
			sess.ReportFault(out.Status)
		}
		return nil
	}
	s.faults.Delete(f.SessionID)
	if out.Result != nil {
		sess.Classify(*out.Result)
	}
	return nil
}

// evictIdle closes sessions idle for longer than the idle timeout.
func (s *Service) evictIdle() {
	ctx := context.Background()
	cutoff := s.clock.Now().Add(-s.idleTimeout)
	for _, id := range s.sessions.IdleSince(ctx, cutoff) {
		if s.drop(ctx, id) {
			metrics.RecordSessionEvicted()
			s.logger.Info(ctx, "idle session evicted", logger.String("session", id))
		}
	}
}

func (s *Service) drop(ctx context.Context, id string) bool {
	sess, err := s.sessions.Delete(ctx, id)
	if err != nil {
		return false
	}
	sess.Close()
	s.renderers.Drop(id)
	s.faults.Delete(id)
	return true
}

// Stats returns service statistics for monitoring.
func (s *Service) Stats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"maxSessions": s.maxSessions,
	}
	if s.started {
		ctx := context.Background()
		stats["sessions"] = s.sessions.Count(ctx)
		stats["queueDepth"] = s.pool.Depth()
		stats["dedupeEntries"] = s.deduper.Size()
		metrics.UpdateActiveSessions(s.sessions.Count(ctx))
	}
	return stats
}
