package simulate

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/volleycoach/internal/adapters/http/api"
	"github.com/okian/volleycoach/internal/adapters/http/ws"
	service "github.com/okian/volleycoach/internal/app"
	"github.com/okian/volleycoach/internal/domain/challenge"
	"github.com/okian/volleycoach/internal/domain/model"
	"github.com/okian/volleycoach/pkg/logger"
)

func init() {
	_ = logger.Init()
	_ = logger.SetLevelString("error")
}

// newTestServer serves the REST API and the websocket of a real service
// with short challenge timings.
func newTestServer(ctx context.Context) (*httptest.Server, func()) {
	hub := ws.NewHub()
	svc := service.New(
		service.WithRenderers(hub),
		service.WithWorkerCount(2),
		service.WithPolicy(challenge.Policy{
			Threshold: 0.7,
			Hold:      100 * time.Millisecond,
			Limit:     400 * time.Millisecond,
			Tick:      100 * time.Millisecond,
		}),
		service.WithReadyDelay(0),
		service.WithPointPause(20*time.Millisecond),
	)
	hub.Bind(svc)
	if err := svc.Start(ctx); err != nil {
		panic(err)
	}

	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(ctx, mux)
	hub.Register(mux)
	srv := httptest.NewServer(mux)
	return srv, func() {
		srv.Close()
		svc.Stop()
	}
}

func testConfig(baseURL string) *Config {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.Interval = 10 * time.Millisecond
	cfg.StepTimeout = 5 * time.Second
	cfg.Timeout = 2 * time.Second
	return cfg
}

func TestConfigValidate(t *testing.T) {
	Convey("Given the default config", t, func() {
		cfg := DefaultConfig()
		So(cfg.Validate(), ShouldBeNil)

		Convey("When the plan has other letters", func() {
			cfg.Plan = "wxw"
			So(errors.Is(cfg.Validate(), ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("When the plan is empty", func() {
			cfg.Plan = ""
			So(errors.Is(cfg.Validate(), ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("When the transport is unknown", func() {
			cfg.Transport = "carrier-pigeon"
			So(errors.Is(cfg.Validate(), ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("When confidence is out of range", func() {
			cfg.Confidence = 1.5
			So(errors.Is(cfg.Validate(), ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestWSURL(t *testing.T) {
	Convey("Given service base URLs", t, func() {
		u, err := wsURL("http://localhost:8080/", "abc")
		So(err, ShouldBeNil)
		So(u, ShouldEqual, "ws://localhost:8080/sessions/abc/ws")

		u, err = wsURL("https://coach.example/api", "abc")
		So(err, ShouldBeNil)
		So(u, ShouldEqual, "wss://coach.example/api/sessions/abc/ws")
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running service", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv, stop := newTestServer(ctx)
		defer stop()

		Convey("When the player follows the default plan over HTTP", func() {
			var out bytes.Buffer
			stats, err := Run(ctx, testConfig(srv.URL), &out)

			Convey("Then every pose is practiced and the player wins 3 : 1", func() {
				So(err, ShouldBeNil)
				So(stats.Winner, ShouldEqual, "player")
				So(stats.PlayerScore, ShouldEqual, 3)
				So(stats.OpponentScore, ShouldEqual, 1)
				So(stats.Events[model.EventSuccess], ShouldBeGreaterThanOrEqualTo, 6)
				So(stats.Events[model.EventMatchPoint], ShouldEqual, 4)
				So(stats.Classifications, ShouldBeGreaterThan, 0)
				So(out.String(), ShouldContainSubstring, "player wins 3 : 1")
			})

			Convey("Then the session is deleted afterwards", func() {
				So(err, ShouldBeNil)
				resp, err := http.Get(srv.URL + "/sessions/" + stats.SessionID)
				So(err, ShouldBeNil)
				_ = resp.Body.Close()
				So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the player loses every point over the websocket", func() {
			cfg := testConfig(srv.URL)
			cfg.Plan = "l"
			cfg.Transport = TransportWS
			cfg.Verbose = true
			var out bytes.Buffer
			stats, err := Run(ctx, cfg, &out)

			Convey("Then the opponent wins 0 : 3", func() {
				So(err, ShouldBeNil)
				So(stats.Winner, ShouldEqual, "opponent")
				So(stats.OpponentScore, ShouldEqual, 3)
				So(stats.Events[model.EventExpired], ShouldBeGreaterThanOrEqualTo, 3)
				So(out.String(), ShouldContainSubstring, "match-over")
			})
		})

		Convey("When the config is invalid", func() {
			cfg := testConfig(srv.URL)
			cfg.Interval = 0
			_, err := Run(ctx, cfg, &bytes.Buffer{})
			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
		})
	})

	Convey("Given no service", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		Convey("When running", func() {
			_, err := Run(context.Background(), testConfig(srv.URL), &bytes.Buffer{})

			Convey("Then the health check fails", func() {
				So(errors.Is(err, ErrUnhealthy), ShouldBeTrue)
			})
		})
	})
}
