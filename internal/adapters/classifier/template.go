package classifier

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/volleycoach/internal/domain/pose"
)

const defaultTemperature = 0.1

// Template is the reference keypoint layout of one label.
type Template struct {
	Label     string    `koanf:"label"`
	Keypoints []float64 `koanf:"keypoints"`
}

// Model is the on-disk pose template model.
type Model struct {
	Temperature float64    `koanf:"temperature"`
	Templates   []Template `koanf:"templates"`
}

// Validate checks that every template has the same even, non-trivial shape.
func (m *Model) Validate() error {
	if len(m.Templates) == 0 {
		return fmt.Errorf("%w: no templates", ErrModelInvalid)
	}
	if m.Temperature < 0 {
		return fmt.Errorf("%w: negative temperature", ErrModelInvalid)
	}
	n := len(m.Templates[0].Keypoints)
	for i, t := range m.Templates {
		switch {
		case t.Label == "":
			return fmt.Errorf("%w: template %d has no label", ErrModelInvalid, i)
		case len(t.Keypoints) != n:
			return fmt.Errorf("%w: template %q has %d values, want %d", ErrModelInvalid, t.Label, len(t.Keypoints), n)
		case n < 4 || n%2 != 0:
			return fmt.Errorf("%w: template %q needs at least two x,y pairs", ErrModelInvalid, t.Label)
		}
	}
	return nil
}

// LoadModel reads a YAML model file.
func LoadModel(path string) (*Model, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrModelInvalid, path, err)
	}
	m := &Model{}
	if err := k.UnmarshalWithConf("", m, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrModelInvalid, path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// TemplateClassifier is a nearest-centroid classifier over normalized
// keypoint layouts. Distances are turned into confidences with a softmax.
type TemplateClassifier struct {
	temperature float64
	labels      []string
	centroids   [][]float64
}

// NewTemplateClassifier builds a classifier from m.
func NewTemplateClassifier(m *Model) (*TemplateClassifier, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	t := m.Temperature
	if t == 0 {
		t = defaultTemperature
	}
	c := &TemplateClassifier{temperature: t}
	for _, tpl := range m.Templates {
		c.labels = append(c.labels, tpl.Label)
		c.centroids = append(c.centroids, normalize(tpl.Keypoints))
	}
	return c, nil
}

// Load builds a TemplateClassifier from the model at path. When path is empty
// or the model is broken it returns Unavailable together with the cause.
func Load(path string) (Classifier, error) {
	if path == "" {
		return Unavailable{}, ErrClassifierUnavailable
	}
	m, err := LoadModel(path)
	if err != nil {
		return Unavailable{Cause: err}, err
	}
	c, err := NewTemplateClassifier(m)
	if err != nil {
		return Unavailable{Cause: err}, err
	}
	return c, nil
}

// Size returns the expected input length.
func (c *TemplateClassifier) Size() int { return len(c.centroids[0]) }

func (c *TemplateClassifier) Classify(ctx context.Context, input []float64) ([]pose.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(input) != c.Size() {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrInputShape, len(input), c.Size())
	}

	v := normalize(input)
	logits := make([]float64, len(c.centroids))
	best := math.Inf(-1)
	for i, centroid := range c.centroids {
		logits[i] = -distance(v, centroid) / c.temperature
		best = math.Max(best, logits[i])
	}

	var sum float64
	for i := range logits {
		logits[i] = math.Exp(logits[i] - best)
		sum += logits[i]
	}

	out := make([]pose.Result, len(logits))
	for i, l := range logits {
		out[i] = pose.Result{Label: c.labels[i], Confidence: l / sum}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out, nil
}

// normalize centers the x,y pairs on their mean and scales them to unit RMS
// radius, so layouts compare independent of position and distance to camera.
func normalize(v []float64) []float64 {
	n := len(v) / 2
	var cx, cy float64
	for i := 0; i < n; i++ {
		cx += v[2*i]
		cy += v[2*i+1]
	}
	cx /= float64(n)
	cy /= float64(n)

	out := make([]float64, len(v))
	var ss float64
	for i := 0; i < n; i++ {
		out[2*i] = v[2*i] - cx
		out[2*i+1] = v[2*i+1] - cy
		ss += out[2*i]*out[2*i] + out[2*i+1]*out[2*i+1]
	}
	scale := math.Sqrt(ss / float64(n))
	if scale == 0 {
		return out
	}
	for i := range out {
		out[i] /= scale
	}
	return out
}

func distance(a, b []float64) float64 {
	var d float64
	for i := range a {
		diff := a[i] - b[i]
		d += diff * diff
	}
	return math.Sqrt(d)
}
