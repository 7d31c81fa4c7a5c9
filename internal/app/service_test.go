package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	service "github.com/okian/volleycoach/internal/app"
	"github.com/okian/volleycoach/internal/adapters/classifier"
	"github.com/okian/volleycoach/internal/domain/clock"
	"github.com/okian/volleycoach/internal/domain/model"
	"github.com/okian/volleycoach/internal/domain/pose"
	"github.com/okian/volleycoach/internal/domain/session"
	"github.com/okian/volleycoach/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

var epoch = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// renderers records every event per session.
type renderers struct {
	mu      sync.Mutex
	events  map[string][]model.Event
	dropped []string
}

func newRenderers() *renderers { return &renderers{events: map[string][]model.Event{}} }

func (r *renderers) For(id string) session.Renderer {
	return session.RendererFunc(func(ev model.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events[id] = append(r.events[id], ev)
	})
}

func (r *renderers) Drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = append(r.dropped, id)
}

func (r *renderers) count(id string, t model.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events[id] {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (r *renderers) last(id string, t model.EventType) model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events[id]) - 1; i >= 0; i-- {
		if r.events[id][i].Type == t {
			return r.events[id][i]
		}
	}
	return model.Event{}
}

// eventually polls cond until it holds or a second passes.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func newService(opts ...service.Option) (*service.Service, *clock.Manual, *renderers) {
	m := clock.NewManual(epoch)
	rec := newRenderers()
	base := []service.Option{
		service.WithWorkerCount(2),
		service.WithQueueSize(64),
		service.WithDedupeSize(128),
		service.WithClock(m),
		service.WithRenderers(rec),
		service.WithSeed(7),
	}
	svc := service.New(append(base, opts...)...)
	return svc, m, rec
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
			So(svc.Stats()["started"], ShouldEqual, false)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithWorkerCount(8),
			service.WithQueueSize(50_000),
			service.WithDedupeSize(25_000),
			service.WithShardCount(2),
		)

		Convey("Then the options are reported", func() {
			stats := svc.Stats()
			So(stats["workerCount"], ShouldEqual, 8)
			So(stats["queueSize"], ShouldEqual, 50_000)
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc, _, _ := newService()
		ctx := context.Background()

		Convey("When it is not started", func() {
			_, err := svc.CreateSession(ctx)

			Convey("Then operations are refused", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})
		})

		Convey("When starting twice and stopping twice", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Stats()["started"], ShouldEqual, true)
			svc.Stop()
			svc.Stop()

			Convey("Then it should be marked as stopped", func() {
				So(svc.Stats()["started"], ShouldEqual, false)
			})
		})
	})
}

func TestService_Sessions(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc, _, rec := newService(service.WithMaxSessions(2))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		snap, err := svc.CreateSession(ctx)
		So(err, ShouldBeNil)

		Convey("When a session is created", func() {
			Convey("Then it starts on the start scene with nothing completed", func() {
				So(snap.ID, ShouldNotBeEmpty)
				So(snap.Scene, ShouldEqual, pose.SceneStart)
				So(snap.Completed["pass"], ShouldBeFalse)
				So(svc.Stats()["sessions"], ShouldEqual, 1)
			})
		})

		Convey("When the store is full", func() {
			_, err := svc.CreateSession(ctx)
			So(err, ShouldBeNil)
			_, err = svc.CreateSession(ctx)

			Convey("Then ErrTooManySessions is returned", func() {
				So(errors.Is(err, service.ErrTooManySessions), ShouldBeTrue)
			})
		})

		Convey("When navigating to a locked scene", func() {
			_, err := svc.ShowScene(ctx, snap.ID, pose.SceneSpikePractice)

			Convey("Then the session refuses with ErrLocked", func() {
				So(errors.Is(err, session.ErrLocked), ShouldBeTrue)
			})
		})

		Convey("When commands target the wrong scene", func() {
			Convey("Then ErrWrongScene is returned", func() {
				So(errors.Is(svc.Retry(ctx, snap.ID), session.ErrWrongScene), ShouldBeTrue)
				So(errors.Is(svc.StartMatch(ctx, snap.ID), session.ErrWrongScene), ShouldBeTrue)
				So(errors.Is(svc.RestartMatch(ctx, snap.ID), session.ErrWrongScene), ShouldBeTrue)
			})
		})

		Convey("When the session is deleted", func() {
			So(svc.DeleteSession(ctx, snap.ID), ShouldBeNil)

			Convey("Then it is gone and its renderer dropped", func() {
				_, err := svc.Snapshot(ctx, snap.ID)
				So(errors.Is(err, service.ErrSessionNotFound), ShouldBeTrue)
				So(errors.Is(svc.DeleteSession(ctx, snap.ID), service.ErrSessionNotFound), ShouldBeTrue)
				So(rec.dropped, ShouldContain, snap.ID)
			})
		})

		Convey("When an unknown session is addressed", func() {
			_, err := svc.SubmitFrame(ctx, model.Frame{SessionID: "nope"})

			Convey("Then ErrSessionNotFound is returned", func() {
				So(errors.Is(err, service.ErrSessionNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestService_PracticeThroughLanes(t *testing.T) {
	Convey("Given a session in pass practice", t, func() {
		svc, m, rec := newService()
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		snap, err := svc.CreateSession(ctx)
		So(err, ShouldBeNil)
		id := snap.ID
		_, err = svc.ShowScene(ctx, id, pose.ScenePassPractice)
		So(err, ShouldBeNil)
		m.Advance(time.Second)
		So(rec.count(id, model.EventChallengeStarted), ShouldEqual, 1)

		Convey("When pass is held for 2100ms through submitted classifications", func() {
			So(svc.SubmitClassification(ctx, id, pose.Result{Label: "pass", Confidence: 0.9}), ShouldBeNil)
			So(eventually(func() bool { return rec.count(id, model.EventHoldStarted) == 1 }), ShouldBeTrue)

			m.Advance(2100 * time.Millisecond)
			So(svc.SubmitClassification(ctx, id, pose.Result{Label: "pass", Confidence: 0.9}), ShouldBeNil)

			Convey("Then the challenge succeeds and pass is completed", func() {
				So(eventually(func() bool { return rec.count(id, model.EventSuccess) == 1 }), ShouldBeTrue)
				got, err := svc.Snapshot(ctx, id)
				So(err, ShouldBeNil)
				So(got.Completed["pass"], ShouldBeTrue)
				So(got.Scene, ShouldEqual, pose.SceneSpikeLearn)
			})
		})

		Convey("When the same frame ID is submitted twice", func() {
			f := model.Frame{SessionID: id, FrameID: "f-1", Result: &pose.Result{Label: "pass", Confidence: 0.9}}
			dup1, err1 := svc.SubmitFrame(ctx, f)
			dup2, err2 := svc.SubmitFrame(ctx, f)

			Convey("Then the second one is reported as a duplicate", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(dup1, ShouldBeFalse)
				So(dup2, ShouldBeTrue)
				So(eventually(func() bool { return rec.count(id, model.EventHoldStarted) == 1 }), ShouldBeTrue)
			})
		})

		Convey("When keypoint frames arrive without a model", func() {
			body := pose.Body{{X: 1, Y: 2}, {X: 3, Y: 4}}
			for i := 0; i < 3; i++ {
				_, err := svc.SubmitFrame(ctx, model.Frame{SessionID: id, FrameID: fmt.Sprint(i), Bodies: []pose.Body{body}})
				So(err, ShouldBeNil)
			}

			Convey("Then one status line is reported and the challenge keeps running", func() {
				So(eventually(func() bool { return rec.count(id, model.EventStatus) == 1 }), ShouldBeTrue)
				time.Sleep(20 * time.Millisecond)
				So(rec.count(id, model.EventStatus), ShouldEqual, 1)
				So(rec.last(id, model.EventStatus).Message, ShouldEqual, classifier.StatusUnavailable)
				got, _ := svc.Snapshot(ctx, id)
				So(got.Checking, ShouldBeTrue)
			})
		})
	})
}

func TestService_KeypointClassification(t *testing.T) {
	Convey("Given a service with a template model", t, func() {
		c, err := classifier.Load("../adapters/classifier/testdata/model.yaml")
		So(err, ShouldBeNil)
		svc, m, rec := newService(service.WithClassifier(c))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		snap, _ := svc.CreateSession(ctx)
		id := snap.ID
		_, err = svc.ShowScene(ctx, id, pose.ScenePassPractice)
		So(err, ShouldBeNil)
		m.Advance(time.Second)

		Convey("When a pass layout is submitted as keypoints", func() {
			passBody := pose.Body{{X: 100, Y: 100}, {X: 80, Y: 160}, {X: 120, Y: 160}, {X: 100, Y: 180}}
			_, err := svc.SubmitFrame(ctx, model.Frame{SessionID: id, Bodies: []pose.Body{passBody}})
			So(err, ShouldBeNil)

			Convey("Then the classified result starts the hold", func() {
				So(eventually(func() bool { return rec.count(id, model.EventHoldStarted) == 1 }), ShouldBeTrue)
				So(rec.last(id, model.EventHoldStarted).Label, ShouldEqual, "pass")
			})
		})
	})
}

func TestService_IdleEviction(t *testing.T) {
	Convey("Given a service with a short idle timeout", t, func() {
		svc, m, rec := newService(
			service.WithIdleTimeout(5*time.Minute),
			service.WithJanitorInterval(time.Minute),
		)
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		idle, _ := svc.CreateSession(ctx)
		busy, _ := svc.CreateSession(ctx)

		Convey("When only one session sees activity", func() {
			for i := 0; i < 7; i++ {
				m.Advance(time.Minute)
				_, err := svc.ShowScene(ctx, busy.ID, pose.SceneTrainingHub)
				So(err, ShouldBeNil)
			}

			Convey("Then the idle one is evicted", func() {
				_, err := svc.Snapshot(ctx, idle.ID)
				So(errors.Is(err, service.ErrSessionNotFound), ShouldBeTrue)
				_, err = svc.Snapshot(ctx, busy.ID)
				So(err, ShouldBeNil)
				So(rec.dropped, ShouldContain, idle.ID)
			})
		})
	})
}
