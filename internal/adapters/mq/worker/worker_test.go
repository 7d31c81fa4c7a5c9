package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	worker "github.com/okian/volleycoach/internal/adapters/mq/worker"
	model "github.com/okian/volleycoach/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	frames chan model.Frame
}

func newMockQueue() *mockQueue {
	return &mockQueue{frames: make(chan model.Frame, 10)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan model.Frame { return mq.frames }

// recordingHandler keeps the frame IDs it saw per session.
type recordingHandler struct {
	mu   sync.Mutex
	seen map[string][]string
	fail string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{seen: map[string][]string{}}
}

func (h *recordingHandler) Handle(ctx context.Context, f model.Frame) error { //nolint:gocritic // test helper
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen[f.SessionID] = append(h.seen[f.SessionID], f.FrameID)
	if f.FrameID == h.fail {
		return errors.New("classifier exploded")
	}
	return nil
}

func (h *recordingHandler) frames(session string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen[session]...)
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker over a mock queue", t, func() {
		q := newMockQueue()
		h := newRecordingHandler()
		h.fail = "bad"
		w := worker.NewInMemoryWorker(q, h, worker.WithName("lane-x"))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When frames arrive, including one that fails", func() {
			q.frames <- model.Frame{SessionID: "s1", FrameID: "a"}
			q.frames <- model.Frame{SessionID: "s1", FrameID: "bad"}
			q.frames <- model.Frame{SessionID: "s1", FrameID: "b"}
			close(q.frames)

			convey.Convey("Then every frame is handled and the worker stops at close", func() {
				select {
				case <-w.Done():
				case <-time.After(2 * time.Second):
					t.Fatal("worker did not stop")
				}
				convey.So(h.frames("s1"), convey.ShouldResemble, []string{"a", "bad", "b"})
			})
		})

		convey.Convey("When shut down explicitly", func() {
			err := w.Shutdown(context.Background())

			convey.Convey("Then it stops without error", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool with four lanes", t, func() {
		h := newRecordingHandler()
		p := worker.NewPool(4, 1024, h)
		ctx := context.Background()
		p.Start(ctx)

		convey.Convey("When several sessions submit frames concurrently", func() {
			var wg sync.WaitGroup
			for s := 0; s < 8; s++ {
				wg.Add(1)
				go func(s int) {
					defer wg.Done()
					for i := 0; i < 50; i++ {
						_ = p.Submit(ctx, model.Frame{SessionID: fmt.Sprint("s", s), FrameID: fmt.Sprint(i)})
					}
				}(s)
			}
			wg.Wait()
			convey.So(p.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then each session's frames were handled in submit order", func() {
				for s := 0; s < 8; s++ {
					got := h.frames(fmt.Sprint("s", s))
					convey.So(len(got), convey.ShouldEqual, 50)
					for i, id := range got {
						convey.So(id, convey.ShouldEqual, fmt.Sprint(i))
					}
				}
				convey.So(p.Depth(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the same session is routed twice", func() {
			convey.So(p.Lane("abc"), convey.ShouldEqual, p.Lane("abc"))
			convey.So(p.Lane("abc"), convey.ShouldBeBetweenOrEqual, 0, p.Lanes()-1)
			convey.So(p.Shutdown(ctx), convey.ShouldBeNil)
		})

		convey.Convey("When frames are submitted after shutdown", func() {
			convey.So(p.Shutdown(ctx), convey.ShouldBeNil)
			err := p.Submit(ctx, model.Frame{SessionID: "late"})

			convey.Convey("Then they are refused", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}
