package repository

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/volleycoach/internal/domain/session"
	"github.com/okian/volleycoach/pkg/metrics"
)

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// ShardedStore spreads sessions over independently locked shards.
type ShardedStore struct {
	shards                []*shard
	shardCount            int
	maxSessions           int
	metricsUpdateInterval time.Duration

	count atomic.Int64

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewShardedStore constructs a store and starts its metrics updater,
// which runs until ctx is done or Close is called.
func NewShardedStore(ctx context.Context, opts ...Option) *ShardedStore {
	s := &ShardedStore{
		shardCount:            8,
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[string]*session.Session)}
	}

	s.startMetricsUpdater(ctx)
	return s
}

func (s *ShardedStore) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%uint32(len(s.shards))] //nolint:gosec // shard count is small and positive
}

func (s *ShardedStore) Put(_ context.Context, sess *session.Session) error {
	sh := s.shardFor(sess.ID())
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.sessions[sess.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrExists, sess.ID())
	}
	if s.maxSessions > 0 {
		// Reserve a slot first so concurrent puts on other shards cannot overshoot.
		if s.count.Add(1) > int64(s.maxSessions) {
			s.count.Add(-1)
			return ErrCapacity
		}
	} else {
		s.count.Add(1)
	}
	sh.sessions[sess.ID()] = sess
	metrics.UpdateActiveSessions(int(s.count.Load()))
	return nil
}

func (s *ShardedStore) Get(_ context.Context, id string) (*session.Session, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	sess, ok := sh.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess, nil
}

func (s *ShardedStore) Delete(_ context.Context, id string) (*session.Session, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(sh.sessions, id)
	metrics.UpdateActiveSessions(int(s.count.Add(-1)))
	return sess, nil
}

func (s *ShardedStore) IdleSince(_ context.Context, cutoff time.Time) []string {
	var ids []string
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id, sess := range sh.sessions {
			if sess.LastActivity().Before(cutoff) {
				ids = append(ids, id)
			}
		}
		sh.mu.RUnlock()
	}
	return ids
}

func (s *ShardedStore) Count(_ context.Context) int { return int(s.count.Load()) }

// Close stops the metrics updater.
func (s *ShardedStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *ShardedStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *ShardedStore) updateMetrics() {
	for i, sh := range s.shards {
		sh.mu.RLock()
		n := len(sh.sessions)
		sh.mu.RUnlock()
		metrics.UpdateSessionsPerShard("shard_"+strconv.Itoa(i), n)
	}
	metrics.UpdateActiveSessions(s.Count(context.Background()))
}
