// Package worker runs classification lanes: each lane is a bounded queue
// drained by one worker, so frames of a session are handled in order.
package worker

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/okian/volleycoach/internal/adapters/mq/queue"
	"github.com/okian/volleycoach/internal/domain/model"
	"github.com/okian/volleycoach/pkg/logger"
	"github.com/okian/volleycoach/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Frame abstracts what workers read off the queue.
type Frame = model.Frame

// Handler processes one frame.
type Handler interface {
	Handle(ctx context.Context, f Frame) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, f Frame) error

// Handle calls fn(ctx, f).
func (fn HandlerFunc) Handle(ctx context.Context, f Frame) error { return fn(ctx, f) } //nolint:gocritic // hugeParam: frames are passed by value

// Queue defines how workers receive frames.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Frame
}

// InMemoryWorker drains one queue.
type InMemoryWorker struct {
	queue   Queue
	handler Handler
	name    string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, h Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		handler:  h,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run processes frames until the queue is drained, ctx is cancelled or
// Shutdown is called.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	frames := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			w.process(ctx, f)
		}
	}
}

// Shutdown stops the worker without draining.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, f Frame) { //nolint:gocritic // hugeParam: frames are passed by value
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := w.handler.Handle(ctx, f); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "handle")
		w.logger.Error(ctx, "frame handling failed",
			logger.String("session", f.SessionID),
			logger.String("frame", f.FrameID),
			logger.Error(err),
		)
	}
}

type lane struct {
	queue  *queue.InMemoryQueue
	worker *InMemoryWorker
}

// Pool routes frames to lanes by session.
type Pool struct {
	lanes  []lane
	logger logger.Logger
}

// NewPool creates laneCount lanes of queueSize frames each.
func NewPool(laneCount, queueSize int, h Handler, opts ...PoolOption) *Pool {
	if laneCount < 1 {
		laneCount = 1
	}
	p := &Pool{logger: logger.Nop()}
	for _, opt := range opts {
		opt(p)
	}

	p.lanes = make([]lane, laneCount)
	for i := range p.lanes {
		name := "lane-" + strconv.Itoa(i)
		q := queue.NewInMemoryQueue(queue.WithCapacity(queueSize), queue.WithName(name))
		p.lanes[i] = lane{
			queue:  q,
			worker: NewInMemoryWorker(q, h, WithName(name), WithLogger(p.logger)),
		}
	}

	metrics.UpdateWorkerCount(laneCount)
	metrics.UpdateQueueCapacity(laneCount * queueSize)
	return p
}

// Start runs every lane's worker.
func (p *Pool) Start(ctx context.Context) {
	for _, l := range p.lanes {
		go l.worker.Run(ctx)
	}
}

// Lane returns the lane index serving sessionID.
func (p *Pool) Lane(sessionID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(len(p.lanes))) //nolint:gosec // lane count is small and positive
}

// Submit enqueues f on its session's lane.
func (p *Pool) Submit(ctx context.Context, f Frame) error { //nolint:gocritic // hugeParam: frames are passed by value
	if err := p.lanes[p.Lane(f.SessionID)].queue.Enqueue(ctx, f); err != nil {
		return fmt.Errorf("submit frame: %w", err)
	}
	return nil
}

// Depth returns the number of queued frames across lanes.
func (p *Pool) Depth() int {
	n := 0
	for _, l := range p.lanes {
		n += l.queue.Len()
	}
	return n
}

// Lanes returns the lane count.
func (p *Pool) Lanes() int { return len(p.lanes) }

// Shutdown closes every queue and waits for the workers to drain them.
func (p *Pool) Shutdown(ctx context.Context) error {
	for _, l := range p.lanes {
		_ = l.queue.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, l := range p.lanes {
		select {
		case <-l.worker.Done():
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "lane shutdown timed out", logger.Int("lane", i))
			return fmt.Errorf("lane %d: %w", i, shutdownCtx.Err())
		}
	}
	return nil
}
