package classifier

import (
	"context"
	"errors"
	"time"

	"github.com/okian/volleycoach/internal/domain/pose"
	"github.com/okian/volleycoach/pkg/logger"
	"github.com/okian/volleycoach/pkg/metrics"
)

// Status lines shown to the user when classification faults.
const (
	StatusUnavailable = "Pose model unavailable. Check the server log."
	StatusFailed      = "Pose classification failed."
)

// Outcome is what one frame produced: at most one result, or a status line
// when the classifier faulted. Both are empty when nobody was detected.
type Outcome struct {
	Result *pose.Result
	Status string
}

// Adapter classifies the first detected body of a frame and keeps the top
// result.
type Adapter struct {
	c   Classifier
	log logger.Logger
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(l logger.Logger) AdapterOption {
	return func(a *Adapter) {
		if l != nil {
			a.log = l
		}
	}
}

// NewAdapter wraps c.
func NewAdapter(c Classifier, opts ...AdapterOption) *Adapter {
	a := &Adapter{c: c, log: logger.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Classify runs the classifier on bodies[0].
func (a *Adapter) Classify(ctx context.Context, bodies []pose.Body) Outcome {
	if len(bodies) == 0 || len(bodies[0]) == 0 {
		metrics.RecordClassification("no_body")
		return Outcome{}
	}

	start := time.Now()
	results, err := a.c.Classify(ctx, bodies[0].Flatten())
	metrics.RecordClassifyLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		metrics.RecordClassifierError()
		a.log.Warn(ctx, "classification failed", logger.Error(err))
		if errors.Is(err, ErrClassifierUnavailable) {
			return Outcome{Status: StatusUnavailable}
		}
		return Outcome{Status: StatusFailed}
	}
	if len(results) == 0 {
		metrics.RecordClassification("empty")
		return Outcome{}
	}

	top := results[0]
	metrics.RecordClassification("detected")
	return Outcome{Result: &top}
}
