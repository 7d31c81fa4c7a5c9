package classifier

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/volleycoach/internal/domain/pose"
)

// body builds a Body from x,y pairs shifted by (dx,dy) and scaled by s.
func body(xy []float64, dx, dy, s float64) pose.Body {
	b := make(pose.Body, 0, len(xy)/2)
	for i := 0; i < len(xy); i += 2 {
		b = append(b, pose.Keypoint{X: xy[i]*s + dx, Y: xy[i+1]*s + dy, Confidence: 0.9})
	}
	return b
}

func TestLoadModel(t *testing.T) {
	convey.Convey("Given model files", t, func() {
		convey.Convey("When loading a valid model", func() {
			m, err := LoadModel("testdata/model.yaml")

			convey.Convey("Then every template is read", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(m.Temperature, convey.ShouldEqual, 0.1)
				convey.So(len(m.Templates), convey.ShouldEqual, 3)
				convey.So(m.Templates[1].Label, convey.ShouldEqual, "spike")
				convey.So(len(m.Templates[1].Keypoints), convey.ShouldEqual, 8)
			})
		})

		convey.Convey("When the model shape is broken", func() {
			_, err := LoadModel("testdata/broken.yaml")

			convey.Convey("Then ErrModelInvalid is returned", func() {
				convey.So(errors.Is(err, ErrModelInvalid), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the file does not exist", func() {
			c, err := Load("testdata/missing.yaml")

			convey.Convey("Then an unavailable classifier is returned", func() {
				convey.So(errors.Is(err, ErrModelInvalid), convey.ShouldBeTrue)
				_, cerr := c.Classify(context.Background(), []float64{1, 2})
				convey.So(errors.Is(cerr, ErrClassifierUnavailable), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When no path is configured", func() {
			c, err := Load("")

			convey.Convey("Then the classifier is unavailable", func() {
				convey.So(errors.Is(err, ErrClassifierUnavailable), convey.ShouldBeTrue)
				convey.So(c, convey.ShouldHaveSameTypeAs, Unavailable{})
			})
		})
	})
}

func TestTemplateClassifier(t *testing.T) {
	convey.Convey("Given the template classifier", t, func() {
		m, err := LoadModel("testdata/model.yaml")
		convey.So(err, convey.ShouldBeNil)
		c, err := NewTemplateClassifier(m)
		convey.So(err, convey.ShouldBeNil)

		for _, tpl := range m.Templates {
			convey.Convey("When classifying a moved and scaled "+tpl.Label+" layout", func() {
				in := body(tpl.Keypoints, 320, 140, 1.7).Flatten()
				results, err := c.Classify(context.Background(), in)

				convey.Convey("Then it ranks first with high confidence", func() {
					convey.So(err, convey.ShouldBeNil)
					convey.So(results[0].Label, convey.ShouldEqual, tpl.Label)
					convey.So(results[0].Confidence, convey.ShouldBeGreaterThan, 0.7)
				})

				convey.Convey("Then confidences are ordered and sum to one", func() {
					sum := 0.0
					for i, r := range results {
						sum += r.Confidence
						if i > 0 {
							convey.So(r.Confidence, convey.ShouldBeLessThanOrEqualTo, results[i-1].Confidence)
						}
					}
					convey.So(math.Abs(sum-1), convey.ShouldBeLessThan, 1e-9)
				})
			})
		}

		convey.Convey("When the input has the wrong length", func() {
			_, err := c.Classify(context.Background(), []float64{1, 2, 3, 4})

			convey.Convey("Then ErrInputShape is returned", func() {
				convey.So(errors.Is(err, ErrInputShape), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When every keypoint collapses to one point", func() {
			results, err := c.Classify(context.Background(), make([]float64, c.Size()))

			convey.Convey("Then it still returns a distribution", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(results), convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := c.Classify(ctx, make([]float64, c.Size()))

			convey.Convey("Then the context error is returned", func() {
				convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
			})
		})
	})
}

func TestAdapter(t *testing.T) {
	convey.Convey("Given an adapter", t, func() {
		var got []float64
		fake := Func(func(_ context.Context, in []float64) ([]pose.Result, error) {
			got = in
			return []pose.Result{{Label: "spike", Confidence: 0.8}, {Label: "pass", Confidence: 0.2}}, nil
		})
		a := NewAdapter(fake)

		convey.Convey("When a frame has two bodies", func() {
			first := pose.Body{{X: 1, Y: 2, Confidence: 0.5}, {X: 3, Y: 4, Confidence: 0.5}}
			second := pose.Body{{X: 9, Y: 9}}
			out := a.Classify(context.Background(), []pose.Body{first, second})

			convey.Convey("Then only the first body's x,y are classified and the top result kept", func() {
				convey.So(got, convey.ShouldResemble, []float64{1, 2, 3, 4})
				convey.So(out.Result, convey.ShouldNotBeNil)
				convey.So(*out.Result, convey.ShouldResemble, pose.Result{Label: "spike", Confidence: 0.8})
				convey.So(out.Status, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When nobody is detected", func() {
			out := a.Classify(context.Background(), nil)

			convey.Convey("Then the outcome is empty", func() {
				convey.So(out.Result, convey.ShouldBeNil)
				convey.So(out.Status, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When the classifier is unavailable", func() {
			out := NewAdapter(Unavailable{}).Classify(context.Background(), []pose.Body{{{X: 1, Y: 1}}})

			convey.Convey("Then a status line replaces the result", func() {
				convey.So(out.Result, convey.ShouldBeNil)
				convey.So(out.Status, convey.ShouldEqual, StatusUnavailable)
			})
		})

		convey.Convey("When the classifier fails otherwise", func() {
			failing := Func(func(context.Context, []float64) ([]pose.Result, error) {
				return nil, ErrInputShape
			})
			out := NewAdapter(failing).Classify(context.Background(), []pose.Body{{{X: 1, Y: 1}}})

			convey.Convey("Then the generic status line is used", func() {
				convey.So(out.Status, convey.ShouldEqual, StatusFailed)
			})
		})

		convey.Convey("When the classifier returns nothing", func() {
			empty := Func(func(context.Context, []float64) ([]pose.Result, error) { return nil, nil })
			out := NewAdapter(empty).Classify(context.Background(), []pose.Body{{{X: 1, Y: 1}}})

			convey.Convey("Then no result is produced", func() {
				convey.So(out.Result, convey.ShouldBeNil)
				convey.So(out.Status, convey.ShouldBeEmpty)
			})
		})
	})
}
