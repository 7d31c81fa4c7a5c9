package simulate

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/okian/volleycoach/internal/domain/model"
)

func init() {
	// NO_COLOR still wins; otherwise keep colors when piped.
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
	bold   = color.New(color.Bold)
)

type printer struct {
	w       io.Writer
	verbose bool
}

func newPrinter(w io.Writer, verbose bool) *printer {
	if w == nil {
		w = os.Stdout
	}
	return &printer{w: w, verbose: verbose}
}

func (p *printer) step(format string, a ...any) {
	_, _ = cyan.Fprintf(p.w, "→ %s\n", fmt.Sprintf(format, a...))
}

func (p *printer) success(format string, a ...any) {
	_, _ = green.Fprintf(p.w, "✓ %s\n", fmt.Sprintf(format, a...))
}

func (p *printer) warn(format string, a ...any) {
	_, _ = yellow.Fprintf(p.w, "! %s\n", fmt.Sprintf(format, a...))
}

func (p *printer) fail(format string, a ...any) {
	_, _ = red.Fprintf(p.w, "✗ %s\n", fmt.Sprintf(format, a...))
}

// event prints ev when verbose; status lines always show.
func (p *printer) event(ev model.Event) {
	switch {
	case ev.Type == model.EventStatus:
		p.warn("status: %s", ev.Message)
	case p.verbose:
		_, _ = faint.Fprintf(p.w, "  %s\n", describe(ev))
	}
}

func (p *printer) summary(s *Stats) {
	_, _ = bold.Fprintln(p.w, "\nSummary")
	_, _ = fmt.Fprintf(p.w, "  session          %s\n", s.SessionID)
	_, _ = fmt.Fprintf(p.w, "  classifications  %d (%d rejected)\n", s.Classifications, s.Rejected)
	_, _ = fmt.Fprintf(p.w, "  practice retries %d\n", s.Retries)
	_, _ = fmt.Fprintf(p.w, "  events           %d\n", total(s.Events))
	_, _ = fmt.Fprintf(p.w, "  duration         %s\n", s.Duration.Round(1e6))

	score := fmt.Sprintf("%d : %d", s.PlayerScore, s.OpponentScore)
	if s.Winner == "player" {
		_, _ = green.Fprintf(p.w, "  result           player wins %s\n", score)
	} else {
		_, _ = red.Fprintf(p.w, "  result           opponent wins %s\n", score)
	}
}

func describe(ev model.Event) string {
	out := string(ev.Type)
	if ev.Mode != "" {
		out += " [" + string(ev.Mode) + "]"
	}
	if ev.Scene != "" {
		out += " scene=" + string(ev.Scene)
	}
	if ev.Pose != "" {
		out += " pose=" + string(ev.Pose)
	}
	if ev.Remaining != nil {
		out += fmt.Sprintf(" remaining=%d", *ev.Remaining)
	}
	if ev.PlayerScore != nil && ev.OpponentScore != nil {
		out += fmt.Sprintf(" score=%d:%d", *ev.PlayerScore, *ev.OpponentScore)
	}
	if ev.Message != "" {
		out += " " + ev.Message
	}
	return out
}

func total(m map[model.EventType]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
