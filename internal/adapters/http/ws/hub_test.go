package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/volleycoach/internal/adapters/http/ws"
	service "github.com/okian/volleycoach/internal/app"
	"github.com/okian/volleycoach/internal/domain/model"
	"github.com/okian/volleycoach/internal/domain/pose"
	"github.com/okian/volleycoach/internal/domain/session"
)

type fakeIngest struct {
	mu      sync.Mutex
	frames  []model.Frame
	results []pose.Result
}

func (f *fakeIngest) Snapshot(_ context.Context, id string) (session.Snapshot, error) {
	if id != "s-1" {
		return session.Snapshot{}, service.ErrSessionNotFound
	}
	return session.Snapshot{ID: id}, nil
}

func (f *fakeIngest) SubmitFrame(_ context.Context, fr model.Frame) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, fr)
	return false, nil
}

func (f *fakeIngest) SubmitClassification(_ context.Context, _ string, r pose.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, r)
	return nil
}

func (f *fakeIngest) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames), len(f.results)
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func dial(srv *httptest.Server, id string) (*websocket.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + id + "/ws"
	return websocket.DefaultDialer.Dial(url, nil)
}

func TestHub(t *testing.T) {
	Convey("Given a hub served over HTTP", t, func() {
		ingest := &fakeIngest{}
		hub := ws.NewHub()
		hub.Bind(ingest)
		mux := http.NewServeMux()
		hub.Register(mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("When dialing an unknown session", func() {
			_, resp, err := dial(srv, "nope")

			Convey("Then the upgrade is refused with 404", func() {
				So(err, ShouldNotBeNil)
				So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When a client is connected", func() {
			conn, _, err := dial(srv, "s-1")
			So(err, ShouldBeNil)
			defer conn.Close()
			So(eventually(func() bool { return hub.Clients() == 1 }), ShouldBeTrue)
			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

			Convey("Then session events are streamed to it", func() {
				hub.For("s-1").Render(model.Event{Type: model.EventHoldStarted, Session: "s-1", Label: "pass"})
				hub.For("s-2").Render(model.Event{Type: model.EventSuccess, Session: "s-2"})

				var ev model.Event
				So(conn.ReadJSON(&ev), ShouldBeNil)
				So(ev.Type, ShouldEqual, model.EventHoldStarted)
				So(ev.Label, ShouldEqual, "pass")
			})

			Convey("Then inbound classifications and frames are forwarded", func() {
				So(conn.WriteJSON(ws.Inbound{Type: "classification", Label: "spike", Confidence: 0.8}), ShouldBeNil)
				So(conn.WriteJSON(ws.Inbound{Type: "frame", FrameID: "f-1", Bodies: []pose.Body{{{X: 1, Y: 2}}}}), ShouldBeNil)

				So(eventually(func() bool {
					frames, results := ingest.counts()
					return frames == 1 && results == 1
				}), ShouldBeTrue)
				So(ingest.results[0], ShouldResemble, pose.Result{Label: "spike", Confidence: 0.8})
				So(ingest.frames[0].SessionID, ShouldEqual, "s-1")
			})

			Convey("Then invalid messages get an error reply and the connection stays open", func() {
				So(conn.WriteJSON(ws.Inbound{Type: "wave"}), ShouldBeNil)
				var r map[string]string
				So(conn.ReadJSON(&r), ShouldBeNil)
				So(r["type"], ShouldEqual, "error")
				So(r["code"], ShouldEqual, "bad_request")

				So(conn.WriteMessage(websocket.TextMessage, []byte("{oops")), ShouldBeNil)
				r = nil
				So(conn.ReadJSON(&r), ShouldBeNil)
				So(r["code"], ShouldEqual, "bad_request")

				So(conn.WriteJSON(ws.Inbound{Type: "classification", Label: "pass", Confidence: 2}), ShouldBeNil)
				r = nil
				So(conn.ReadJSON(&r), ShouldBeNil)
				So(r["code"], ShouldEqual, "bad_request")
			})

			Convey("Then dropping the session disconnects it", func() {
				hub.Drop("s-1")
				So(hub.Clients(), ShouldEqual, 0)
				_, _, err := conn.ReadMessage()
				So(err, ShouldNotBeNil)
			})

			Convey("Then closing the client unregisters it", func() {
				So(conn.Close(), ShouldBeNil)
				So(eventually(func() bool { return hub.Clients() == 0 }), ShouldBeTrue)
			})
		})
	})
}

func TestHub_SlowClient(t *testing.T) {
	Convey("Given a client with a one-message buffer", t, func() {
		hub := ws.NewHub(ws.WithSendBuffer(1))
		hub.Bind(&fakeIngest{})
		mux := http.NewServeMux()
		hub.Register(mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		conn, _, err := dial(srv, "s-1")
		So(err, ShouldBeNil)
		defer conn.Close()
		So(eventually(func() bool { return hub.Clients() == 1 }), ShouldBeTrue)

		Convey("When many events are rendered at once", func() {
			done := make(chan struct{})
			go func() {
				for i := 0; i < 1000; i++ {
					hub.For("s-1").Render(model.Event{Type: model.EventProgress, ElapsedMS: int64(i)})
				}
				close(done)
			}()

			Convey("Then rendering never blocks", func() {
				select {
				case <-done:
				case <-time.After(2 * time.Second):
					So("render blocked", ShouldBeEmpty)
				}
				_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
				var ev map[string]any
				So(json.Unmarshal(mustRead(conn), &ev), ShouldBeNil)
				So(ev["type"], ShouldEqual, "progress")
			})
		})
	})
}

func mustRead(conn *websocket.Conn) []byte {
	_, b, err := conn.ReadMessage()
	if err != nil {
		return nil
	}
	return b
}

func TestHubOrigin(t *testing.T) {
	Convey("Given hubs with different origin policies", t, func() {
		serve := func(opts ...ws.Option) *httptest.Server {
			hub := ws.NewHub(opts...)
			hub.Bind(&fakeIngest{})
			mux := http.NewServeMux()
			hub.Register(mux)
			return httptest.NewServer(mux)
		}
		dialFrom := func(srv *httptest.Server, origin string) (*http.Response, error) {
			url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/s-1/ws"
			conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {origin}})
			if conn != nil {
				_ = conn.Close()
			}
			return resp, err
		}

		Convey("When the default hub is dialed from another site", func() {
			srv := serve()
			defer srv.Close()
			resp, err := dialFrom(srv, "https://elsewhere.example")

			Convey("Then the upgrade is refused with 403", func() {
				So(err, ShouldNotBeNil)
				So(resp.StatusCode, ShouldEqual, http.StatusForbidden)
			})

			Convey("Then its own origin is still accepted", func() {
				_, err := dialFrom(srv, srv.URL)
				So(err, ShouldBeNil)
			})
		})

		Convey("When extra origins are allowed", func() {
			srv := serve(ws.WithAllowedOrigins("https://coach.example/"))
			defer srv.Close()

			Convey("Then listed origins are accepted and others refused", func() {
				_, err := dialFrom(srv, "https://coach.example")
				So(err, ShouldBeNil)
				_, err = dialFrom(srv, srv.URL)
				So(err, ShouldBeNil)
				resp, err := dialFrom(srv, "https://elsewhere.example")
				So(err, ShouldNotBeNil)
				So(resp.StatusCode, ShouldEqual, http.StatusForbidden)
			})
		})

		Convey("When a custom check accepts everything", func() {
			srv := serve(ws.WithCheckOrigin(func(*http.Request) bool { return true }))
			defer srv.Close()

			Convey("Then any origin is accepted", func() {
				_, err := dialFrom(srv, "https://elsewhere.example")
				So(err, ShouldBeNil)
			})
		})
	})
}
