// Package pose holds the training pose catalog, scene names and the
// classification types passed between the classifier and the engines.
package pose

import (
	"fmt"
	"strings"
)

// Pose is one of the three trained volleyball poses.
type Pose string

const (
	Pass  Pose = "pass"
	Spike Pose = "spike"
	Block Pose = "block"
)

// All lists the poses in training order.
var All = []Pose{Pass, Spike, Block}

// Parse maps a label to a Pose, ignoring case and surrounding space.
func Parse(s string) (Pose, error) {
	p := Pose(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := catalog[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPose, s)
	}
	return p, nil
}

// Valid reports whether p is a catalogued pose.
func (p Pose) Valid() bool {
	_, ok := catalog[p]
	return ok
}

// Label is the classifier label a challenge for p targets.
func (p Pose) Label() string { return p.Entry().Label }

// Entry returns the catalog row for p; unknown poses yield a zero Entry.
func (p Pose) Entry() Entry { return catalog[p] }

// Result is one labeled confidence produced by the classifier.
type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Qualifies reports whether r counts toward holding target.
// The threshold is exclusive.
func (r Result) Qualifies(target string, threshold float64) bool {
	return strings.EqualFold(r.Label, target) && r.Confidence > threshold
}

// Keypoint is one detected body landmark in image coordinates.
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// Body is the keypoint list of one detected person.
type Body []Keypoint

// Flatten returns the classifier input vector [x0, y0, x1, y1, ...].
// Keypoint confidence is used for drawing only and is dropped.
func (b Body) Flatten() []float64 {
	out := make([]float64, 0, len(b)*2)
	for _, kp := range b {
		out = append(out, kp.X, kp.Y)
	}
	return out
}
