package api

import (
	"errors"
	"math"
	"strings"

	"github.com/okian/volleycoach/internal/domain/model"
	"github.com/okian/volleycoach/internal/domain/pose"
)

// Limits on a single frame upload.
const (
	MaxBodies    = 8
	MaxKeypoints = 64
)

// SceneRequest mirrors the OpenAPI schema for POST /sessions/{id}/scene.
type SceneRequest struct {
	Scene string `json:"scene"`
}

// FrameRequest mirrors the OpenAPI schema for POST /sessions/{id}/frames.
type FrameRequest struct {
	FrameID string      `json:"frame_id"`
	Bodies  []pose.Body `json:"bodies"`
}

// Frame converts the request to a queued frame of session id.
func (f FrameRequest) Frame(id string) model.Frame {
	return model.Frame{SessionID: id, FrameID: f.FrameID, Bodies: f.Bodies}
}

// Validate checks frame size and coordinates.
func (f FrameRequest) Validate() error {
	if len(f.Bodies) > MaxBodies {
		return errors.New("too many bodies")
	}
	for _, b := range f.Bodies {
		if len(b) > MaxKeypoints {
			return errors.New("too many keypoints")
		}
		for _, kp := range b {
			if !finite(kp.X) || !finite(kp.Y) || !finite(kp.Confidence) {
				return errors.New("keypoints must be finite")
			}
		}
	}
	return nil
}

// ClassificationRequest mirrors the OpenAPI schema for
// POST /sessions/{id}/classifications.
type ClassificationRequest struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Validate checks label and confidence range.
func (c ClassificationRequest) Validate() error {
	switch {
	case strings.TrimSpace(c.Label) == "":
		return errors.New("missing label")
	case !finite(c.Confidence) || c.Confidence < 0 || c.Confidence > 1:
		return errors.New("confidence must be in [0,1]")
	}
	return nil
}

// Result converts the request to a classification result.
func (c ClassificationRequest) Result() pose.Result {
	return pose.Result{Label: strings.TrimSpace(c.Label), Confidence: c.Confidence}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
