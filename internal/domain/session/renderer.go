package session

import "github.com/okian/volleycoach/internal/domain/model"

// Renderer receives every signal of a session. Render is called from the
// session dispatcher and must not block.
type Renderer interface {
	Render(ev model.Event)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ev model.Event)

// Render calls f(ev).
func (f RendererFunc) Render(ev model.Event) { f(ev) }

// Multi fans one event out to several renderers.
type Multi []Renderer

// Render forwards ev to every renderer.
func (m Multi) Render(ev model.Event) {
	for _, r := range m {
		r.Render(ev)
	}
}

type discard struct{}

func (discard) Render(model.Event) {}
