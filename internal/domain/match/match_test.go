package match

import (
	"math/rand"
	"testing"
	"time"

	"github.com/okian/volleycoach/internal/domain/clock"
	"github.com/okian/volleycoach/internal/domain/model"
	"github.com/okian/volleycoach/internal/domain/pose"
	. "github.com/smartystreets/goconvey/convey"
)

var epoch = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type fakeNav struct{ scenes []pose.Scene }

func (n *fakeNav) ShowScene(s pose.Scene) error {
	n.scenes = append(n.scenes, s)
	return nil
}

type fixture struct {
	clock  *clock.Manual
	nav    *fakeNav
	events []model.Event
	ctrl   *Controller
}

func newFixture(seed int64) *fixture {
	f := &fixture{clock: clock.NewManual(epoch), nav: &fakeNav{}}
	f.ctrl = New(f.nav, func(ev model.Event) { f.events = append(f.events, ev) },
		WithClock(f.clock),
		WithRand(rand.New(rand.NewSource(seed))),
	)
	return f
}

// win holds the current pose until the point is taken, then waits out the pause.
func (f *fixture) win() {
	label := f.ctrl.State().Current.Label()
	for i := 0; i < 21; i++ {
		f.ctrl.OnClassification(pose.Result{Label: label, Confidence: 0.9})
		f.clock.Advance(100 * time.Millisecond)
	}
	f.clock.Advance(defaultPause)
}

// lose lets the countdown run out, then waits out the pause.
func (f *fixture) lose() {
	f.clock.Advance(5 * time.Second)
	f.clock.Advance(defaultPause)
}

func (f *fixture) find(t model.EventType) []model.Event {
	var out []model.Event
	for _, ev := range f.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func noRepeats(h []pose.Pose) bool {
	for i := 1; i < len(h); i++ {
		if h[i] == h[i-1] {
			return false
		}
	}
	return true
}

func TestMatchScenario(t *testing.T) {
	Convey("Given a started match", t, func() {
		f := newFixture(7)
		f.ctrl.Start()

		Convey("Then the first point is running", func() {
			st := f.ctrl.State()
			So(st.Status, ShouldEqual, InProgress)
			So(st.Index, ShouldEqual, 1)
			So(st.Current.Valid(), ShouldBeTrue)
			So(f.ctrl.Active(), ShouldBeTrue)

			started := f.find(model.EventChallengeStarted)
			So(len(started), ShouldEqual, 1)
			So(started[0].Hint, ShouldEqual, st.Current.Entry().MatchHint)
			So(*started[0].RemainingPoints, ShouldEqual, 3)
		})

		Convey("When the outcomes are success, expired, success, success", func() {
			f.win()
			f.lose()
			f.win()
			f.win()

			Convey("Then the player wins 3-1 with three used poses and no repeats", func() {
				st := f.ctrl.State()
				So(st.Status, ShouldEqual, PlayerWon)
				So(st.PlayerScore, ShouldEqual, 3)
				So(st.OpponentScore, ShouldEqual, 1)
				So(len(st.History), ShouldEqual, 3)
				So(noRepeats(st.History), ShouldBeTrue)
				So(len(st.Points), ShouldEqual, 4)
				So(st.Points[1].Winner, ShouldEqual, Opponent)
			})

			Convey("Then match-over is emitted once and the hub is shown", func() {
				over := f.find(model.EventMatchOver)
				So(len(over), ShouldEqual, 1)
				So(over[0].Winner, ShouldEqual, "player")
				So(over[0].Message, ShouldEqual, "You win the rally!")
				So(f.nav.scenes, ShouldResemble, []pose.Scene{pose.SceneTrainingHub})
				So(f.clock.Pending(), ShouldEqual, 0)
			})

			Convey("Then every point was announced with the scoreboard", func() {
				pts := f.find(model.EventMatchPoint)
				So(len(pts), ShouldEqual, 4)
				So(*pts[3].PlayerScore, ShouldEqual, 3)
				So(*pts[3].OpponentScore, ShouldEqual, 1)
				So(*pts[3].RemainingPoints, ShouldEqual, 0)
			})
		})

		Convey("When every point expires", func() {
			f.lose()
			f.lose()
			f.lose()

			Convey("Then the opponent wins and no fourth point starts", func() {
				st := f.ctrl.State()
				So(st.Status, ShouldEqual, OpponentWon)
				So(st.OpponentScore, ShouldEqual, 3)
				So(st.PlayerScore, ShouldEqual, 0)
				So(st.Index, ShouldEqual, 3)
				So(st.History, ShouldBeEmpty)
				So(f.find(model.EventMatchOver)[0].Message, ShouldEqual, "The opponent scores this point.")
			})

			Convey("Then further time and input change nothing", func() {
				n := len(f.events)
				f.lose()
				f.ctrl.OnClassification(pose.Result{Label: "pass", Confidence: 1})
				So(len(f.events), ShouldEqual, n)
			})
		})

		Convey("When the deciding point is scored", func() {
			f.win()
			f.win()
			label := f.ctrl.State().Current.Label()
			for i := 0; i < 21; i++ {
				f.ctrl.OnClassification(pose.Result{Label: label, Confidence: 0.9})
				f.clock.Advance(100 * time.Millisecond)
			}

			Convey("Then the match terminates before the pause ends", func() {
				So(f.ctrl.State().Status, ShouldEqual, PlayerWon)
				So(f.find(model.EventMatchOver), ShouldBeEmpty)
				f.clock.Advance(defaultPause)
				So(len(f.find(model.EventMatchOver)), ShouldEqual, 1)
			})
		})
	})
}

func TestMatchRestart(t *testing.T) {
	Convey("Given a match paused between points", t, func() {
		f := newFixture(3)
		f.ctrl.Start()
		f.clock.Advance(5 * time.Second)
		So(f.ctrl.State().OpponentScore, ShouldEqual, 1)

		Convey("When it is restarted during the pause", func() {
			f.ctrl.Restart()
			f.clock.Advance(defaultPause)

			Convey("Then the stale pause did not start a second point", func() {
				st := f.ctrl.State()
				So(st.Index, ShouldEqual, 1)
				So(st.OpponentScore, ShouldEqual, 0)
				So(st.Points, ShouldBeEmpty)
				So(f.clock.Pending(), ShouldEqual, 1)
			})
		})

		Convey("When it is stopped", func() {
			f.ctrl.Stop()
			f.clock.Advance(time.Minute)

			Convey("Then nothing else happens", func() {
				So(f.ctrl.State().Status, ShouldEqual, NotStarted)
				So(f.clock.Pending(), ShouldEqual, 0)
			})
		})
	})
}

func TestMatchPicker(t *testing.T) {
	Convey("Given many seeded matches", t, func() {
		first := map[pose.Pose]int{}

		for seed := int64(1); seed <= 60; seed++ {
			f := newFixture(seed)
			f.ctrl.Start()
			first[f.ctrl.State().Current]++
		}

		Convey("Then every pose can open a match", func() {
			So(len(first), ShouldEqual, 3)
		})
	})

	Convey("Given history with a last completed pose", t, func() {
		f := newFixture(11)
		f.ctrl.state.History = []pose.Pose{pose.Spike}
		seen := map[pose.Pose]bool{}
		for i := 0; i < 200; i++ {
			seen[f.ctrl.pick()] = true
		}

		Convey("Then only the other two poses are drawn", func() {
			So(seen[pose.Spike], ShouldBeFalse)
			So(seen[pose.Pass], ShouldBeTrue)
			So(seen[pose.Block], ShouldBeTrue)
		})
	})

	Convey("Given a point lost on spike after pass was won", t, func() {
		f := newFixture(11)
		f.ctrl.state.History = []pose.Pose{pose.Pass}
		f.ctrl.state.Current = pose.Spike
		seen := map[pose.Pose]bool{}
		for i := 0; i < 200; i++ {
			seen[f.ctrl.pick()] = true
		}

		Convey("Then spike may be called again but pass may not", func() {
			So(seen[pose.Spike], ShouldBeTrue)
			So(seen[pose.Block], ShouldBeTrue)
			So(seen[pose.Pass], ShouldBeFalse)
		})
	})
}

func TestMatchProperties(t *testing.T) {
	Convey("Given random outcome sequences", t, func() {
		for seed := int64(1); seed <= 100; seed++ {
			f := newFixture(seed)
			outcomes := rand.New(rand.NewSource(seed * 31))
			f.ctrl.Start()

			for steps := 0; f.ctrl.State().Status == InProgress && steps < 10; steps++ {
				if outcomes.Intn(2) == 0 {
					f.win()
				} else {
					f.lose()
				}
			}

			st := f.ctrl.State()
			So(st.Status.Finished(), ShouldBeTrue)
			So(st.PlayerScore, ShouldBeLessThanOrEqualTo, 3)
			So(st.OpponentScore, ShouldBeLessThanOrEqualTo, 3)
			So(st.PlayerScore == 3 || st.OpponentScore == 3, ShouldBeTrue)
			So(st.Status == PlayerWon, ShouldEqual, st.PlayerScore == 3)
			So(len(st.Points), ShouldEqual, st.PlayerScore+st.OpponentScore)
			So(len(st.History), ShouldEqual, st.PlayerScore)
			So(noRepeats(st.History), ShouldBeTrue)
			So(len(f.find(model.EventMatchOver)), ShouldEqual, 1)
		}
	})
}

func TestMatchOptions(t *testing.T) {
	Convey("Given a first-to-one match", t, func() {
		f := &fixture{clock: clock.NewManual(epoch), nav: &fakeNav{}}
		f.ctrl = New(f.nav, func(ev model.Event) { f.events = append(f.events, ev) },
			WithClock(f.clock), WithPointsToWin(1), WithPause(0))
		f.ctrl.Start()
		f.clock.Advance(5 * time.Second)

		Convey("Then one expired point ends it", func() {
			So(f.ctrl.State().Status, ShouldEqual, OpponentWon)
			So(len(f.find(model.EventMatchOver)), ShouldEqual, 1)
		})
	})
}
