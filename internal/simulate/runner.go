// Package simulate plays the tutorial against a running service: it learns
// and practices every pose, then plays a match following a win/lose plan.
package simulate

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/volleycoach/internal/domain/model"
	"github.com/okian/volleycoach/internal/domain/pose"
	"github.com/okian/volleycoach/pkg/logger"
)

// player is one simulated user bound to one session.
type player struct {
	cfg    *Config
	http   *httpClient
	stream *eventStream
	out    *printer
	stats  *Stats
	id     string

	sent     atomic.Int64
	rejected atomic.Int64
}

// Run executes the complete simulation and writes progress to out.
func Run(ctx context.Context, cfg *Config, out io.Writer) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	stats := &Stats{
		Events:    make(map[model.EventType]int),
		StartTime: time.Now(),
	}
	p := &player{
		cfg:   cfg,
		http:  newHTTPClient(cfg.BaseURL, cfg.Timeout),
		out:   newPrinter(out, cfg.Verbose),
		stats: stats,
	}

	logger.Get().Info(ctx, "starting simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("plan", cfg.Plan),
		logger.String("transport", cfg.Transport),
		logger.Duration("interval", cfg.Interval))

	// Step 1: Check service health
	p.out.step("checking service health")
	if err := p.http.health(ctx); err != nil {
		p.out.fail("service is not healthy")
		return stats, err
	}

	// Step 2: Create a session and follow its events
	snap, err := p.http.createSession(ctx)
	if err != nil {
		return stats, fmt.Errorf("session creation failed: %w", err)
	}
	p.id, stats.SessionID = snap.ID, snap.ID
	p.out.success("session %s created in scene %s", snap.ID, snap.Scene)

	if p.stream, err = openStream(ctx, cfg, p.id); err != nil {
		return stats, err
	}
	defer p.close()

	// Step 3: Learn and practice every pose
	if err := p.practiceAll(ctx); err != nil {
		return stats, fmt.Errorf("practice failed: %w", err)
	}

	// Step 4: Play the match
	if err := p.playMatch(ctx); err != nil {
		return stats, fmt.Errorf("match failed: %w", err)
	}

	// Step 5: Verify the session ended where the tutorial leaves it
	if err := p.verify(ctx); err != nil {
		return stats, fmt.Errorf("verification failed: %w", err)
	}

	stats.Classifications = int(p.sent.Load())
	stats.Rejected = int(p.rejected.Load())
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	p.out.summary(stats)
	displayFinalStats(ctx, stats)
	return stats, nil
}

func (p *player) practiceAll(ctx context.Context) error {
	for _, target := range pose.All {
		entry := target.Entry()
		p.out.step("learning %s", entry.Label)
		if err := p.navigate(ctx, entry.LearnScene); err != nil {
			return err
		}
		if err := p.navigate(ctx, entry.PracticeScene); err != nil {
			return err
		}
		if err := p.practice(ctx, target); err != nil {
			return err
		}
	}
	return nil
}

// practice holds target until the challenge succeeds, retrying expiries.
func (p *player) practice(ctx context.Context, target pose.Pose) error {
	entry := target.Entry()
	for attempt := 0; ; attempt++ {
		if _, err := p.await(ctx, func(ev model.Event) bool {
			return ev.Type == model.EventChallengeStarted && ev.Mode == model.ModePractice && ev.Pose == target
		}); err != nil {
			return fmt.Errorf("%s challenge did not start: %w", target, err)
		}

		stop := p.hold(ctx, entry.Label)
		ev, err := p.await(ctx, func(ev model.Event) bool {
			return ev.Mode == model.ModePractice && ev.Pose == target &&
				(ev.Type == model.EventSuccess || ev.Type == model.EventExpired)
		})
		stop()
		if err != nil {
			return err
		}

		if ev.Type == model.EventSuccess {
			p.out.success("%s held for %s", entry.Label, time.Duration(ev.ElapsedMS)*time.Millisecond)
			_, err := p.await(ctx, func(ev model.Event) bool {
				return ev.Type == model.EventSceneChanged && ev.Scene == entry.NextScene
			})
			return err
		}

		if attempt >= p.cfg.MaxRetries {
			p.out.fail("%s expired %d times", entry.Label, attempt+1)
			return fmt.Errorf("%w: %s", ErrPracticeFailed, target)
		}
		p.out.warn("%s expired, retrying", entry.Label)
		p.stats.Retries++
		if err := p.http.retry(ctx, p.id); err != nil {
			return err
		}
	}
}

func (p *player) playMatch(ctx context.Context) error {
	snap, err := p.http.snapshot(ctx, p.id)
	if err != nil {
		return err
	}
	if snap.Scene != pose.SceneMatch {
		if err := p.navigate(ctx, pose.SceneTransition); err != nil {
			return err
		}
		if err := p.navigate(ctx, pose.SceneMatch); err != nil {
			return err
		}
	}

	p.out.step("starting match with plan %q", p.cfg.Plan)
	if err := p.http.startMatch(ctx, p.id); err != nil {
		return err
	}
	if _, err := p.await(ctx, is(model.EventMatchStarted)); err != nil {
		return err
	}

	for point := 0; ; point++ {
		ev, err := p.await(ctx, func(ev model.Event) bool {
			return ev.Type == model.EventMatchOver ||
				(ev.Type == model.EventChallengeStarted && ev.Mode == model.ModeMatch)
		})
		if err != nil {
			return err
		}
		if ev.Type == model.EventMatchOver {
			p.stats.Winner = ev.Winner
			p.stats.PlayerScore = deref(ev.PlayerScore)
			p.stats.OpponentScore = deref(ev.OpponentScore)
			return nil
		}

		win := p.cfg.Plan[point%len(p.cfg.Plan)] == 'w'
		label := ev.Pose.Label()
		if !win {
			label = wrongPose(ev.Pose).Label()
		}
		stop := p.hold(ctx, label)
		scored, err := p.await(ctx, is(model.EventMatchPoint))
		stop()
		if err != nil {
			return err
		}

		line := fmt.Sprintf("point %d (%s): %d : %d", scored.PointNumber, scored.Pose,
			deref(scored.PlayerScore), deref(scored.OpponentScore))
		if scored.Winner == "player" {
			p.out.success("%s", line)
		} else {
			p.out.warn("%s", line)
		}
	}
}

func (p *player) verify(ctx context.Context) error {
	snap, err := p.http.snapshot(ctx, p.id)
	if err != nil {
		return err
	}
	for _, target := range pose.All {
		if !snap.Completed[string(target)] {
			return fmt.Errorf("%s not marked completed", target)
		}
	}
	if snap.Scene != pose.SceneTrainingHub {
		return fmt.Errorf("session left in scene %s", snap.Scene)
	}
	p.out.success("all poses completed, back in %s", snap.Scene)
	return nil
}

// navigate shows scene and waits until the session confirms it.
func (p *player) navigate(ctx context.Context, scene pose.Scene) error {
	if err := p.http.showScene(ctx, p.id, scene); err != nil {
		return err
	}
	_, err := p.await(ctx, func(ev model.Event) bool {
		return ev.Type == model.EventSceneChanged && ev.Scene == scene
	})
	return err
}

// hold streams label until the returned stop is called.
func (p *player) hold(ctx context.Context, label string) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()
		for {
			p.send(ctx, label)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

func (p *player) send(ctx context.Context, label string) {
	var err error
	switch p.cfg.Transport {
	case TransportWS:
		err = p.stream.classify(label, p.cfg.Confidence)
	default:
		err = p.http.classify(ctx, p.id, label, p.cfg.Confidence)
	}
	p.sent.Add(1)
	if err != nil && ctx.Err() == nil {
		p.rejected.Add(1)
		logger.Get().Warn(ctx, "classification rejected", logger.String("label", label), logger.Error(err))
	}
}

func (p *player) await(ctx context.Context, want func(model.Event) bool) (model.Event, error) {
	return p.stream.await(ctx, p.cfg.StepTimeout, p.seen, want)
}

func (p *player) seen(ev model.Event) {
	p.stats.Events[ev.Type]++
	p.out.event(ev)
}

func (p *player) close() {
	if err := p.stream.Close(); err != nil {
		logger.Get().Debug(context.Background(), "event stream close", logger.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	defer cancel()
	if err := p.http.deleteSession(ctx, p.id); err != nil {
		logger.Get().Warn(ctx, "failed to delete session", logger.String("session", p.id), logger.Error(err))
	}
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	logger.Get().Info(ctx, "final statistics",
		logger.String("session", stats.SessionID),
		logger.Int("classifications", stats.Classifications),
		logger.Int("rejected", stats.Rejected),
		logger.Int("retries", stats.Retries),
		logger.Int("events", total(stats.Events)),
		logger.String("winner", stats.Winner),
		logger.Int("playerScore", stats.PlayerScore),
		logger.Int("opponentScore", stats.OpponentScore),
		logger.Duration("duration", stats.Duration))
}

func is(t model.EventType) func(model.Event) bool {
	return func(ev model.Event) bool { return ev.Type == t }
}

// wrongPose returns a pose other than p.
func wrongPose(p pose.Pose) pose.Pose {
	for i, candidate := range pose.All {
		if candidate == p {
			return pose.All[(i+1)%len(pose.All)]
		}
	}
	return pose.Pass
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
