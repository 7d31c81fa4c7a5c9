package simulate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/volleycoach/internal/adapters/http/ws"
	"github.com/okian/volleycoach/internal/domain/model"
)

// eventStream is the websocket of one session: events come in, inbound
// classifications go out.
type eventStream struct {
	conn   *websocket.Conn
	events chan model.Event
	done   chan struct{}
	once   sync.Once

	wmu sync.Mutex
	err error
}

func openStream(ctx context.Context, cfg *Config, id string) (*eventStream, error) {
	conn, err := dial(ctx, cfg.BaseURL, id, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	s := &eventStream{
		conn:   conn,
		events: make(chan model.Event, 64),
		done:   make(chan struct{}),
	}
	go s.read()
	return s, nil
}

func (s *eventStream) read() {
	defer close(s.events)
	for {
		var ev model.Event
		if err := s.conn.ReadJSON(&ev); err != nil {
			s.err = err
			return
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// await returns the first event accepted by want. Every event read on the
// way is handed to seen.
func (s *eventStream) await(ctx context.Context, timeout time.Duration, seen func(model.Event), want func(model.Event) bool) (model.Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return model.Event{}, ctx.Err()
		case <-timer.C:
			return model.Event{}, ErrStepTimeout
		case ev, ok := <-s.events:
			if !ok {
				return model.Event{}, fmt.Errorf("%w: %v", ErrStreamClosed, s.err)
			}
			seen(ev)
			if want(ev) {
				return ev, nil
			}
		}
	}
}

// classify sends one classification over the socket.
func (s *eventStream) classify(label string, confidence float64) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteJSON(ws.Inbound{Type: "classification", Label: label, Confidence: confidence})
}

func (s *eventStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.wmu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.wmu.Unlock()
		err = s.conn.Close()
	})
	return err
}
