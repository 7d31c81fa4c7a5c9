// Package classifier turns detected body keypoints into labeled pose
// confidences and keeps classifier faults away from the challenge engines.
package classifier

import (
	"context"
	"fmt"

	"github.com/okian/volleycoach/internal/domain/pose"
)

// Classifier scores a flattened keypoint vector. Results are ordered by
// confidence, highest first.
type Classifier interface {
	Classify(ctx context.Context, input []float64) ([]pose.Result, error)
}

// Func adapts a function to Classifier.
type Func func(ctx context.Context, input []float64) ([]pose.Result, error)

// Classify calls f.
func (f Func) Classify(ctx context.Context, input []float64) ([]pose.Result, error) {
	return f(ctx, input)
}

// Unavailable is the classifier used when the model could not be loaded.
type Unavailable struct {
	Cause error
}

// Classify always fails with ErrClassifierUnavailable.
func (u Unavailable) Classify(context.Context, []float64) ([]pose.Result, error) {
	if u.Cause != nil {
		return nil, fmt.Errorf("%w: %w", ErrClassifierUnavailable, u.Cause)
	}
	return nil, ErrClassifierUnavailable
}
