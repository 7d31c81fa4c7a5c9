// Package ws streams session signals to browsers over websockets and accepts
// frames and classifications on the same connection.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/volleycoach/internal/adapters/http/api"
	service "github.com/okian/volleycoach/internal/app"
	"github.com/okian/volleycoach/internal/domain/model"
	"github.com/okian/volleycoach/internal/domain/pose"
	"github.com/okian/volleycoach/internal/domain/session"
	"github.com/okian/volleycoach/pkg/logger"
	"github.com/okian/volleycoach/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 << 10
)

// Ingest is what inbound messages are forwarded to.
type Ingest interface {
	Snapshot(ctx context.Context, id string) (session.Snapshot, error)
	SubmitFrame(ctx context.Context, f model.Frame) (bool, error)
	SubmitClassification(ctx context.Context, id string, r pose.Result) error
}

// Inbound is a client message.
type Inbound struct {
	Type       string      `json:"type"` // "frame" or "classification"
	FrameID    string      `json:"frame_id,omitempty"`
	Bodies     []pose.Body `json:"bodies,omitempty"`
	Label      string      `json:"label,omitempty"`
	Confidence float64     `json:"confidence,omitempty"`
}

// reply is sent to the one client whose message failed.
type reply struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errUnknownType = errors.New(`type must be "frame" or "classification"`)

type client struct {
	session string
	conn    *websocket.Conn
	send    chan []byte
	once    sync.Once
}

func (c *client) close() { c.once.Do(func() { close(c.send) }) }

// Hub keeps one room of websocket clients per session and implements the
// session renderer on top of it.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
	count int

	ingest       Ingest
	upgrader     websocket.Upgrader
	sendBuffer   int
	pingInterval time.Duration
	pongWait     time.Duration
	logger       logger.Logger
}

// NewHub creates an empty hub. Bind must be called before serving.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		rooms:        make(map[string]map[*client]struct{}),
		sendBuffer:   256,
		pingInterval: 54 * time.Second,
		pongWait:     60 * time.Second,
		logger:       logger.Nop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Bind sets where inbound messages go.
func (h *Hub) Bind(i Ingest) { h.ingest = i }

// Register attaches the websocket route to mux.
func (h *Hub) Register(mux *http.ServeMux) {
	mux.Handle("GET /sessions/{id}/ws", h)
}

// For returns the renderer of session id.
func (h *Hub) For(id string) session.Renderer {
	return session.RendererFunc(func(ev model.Event) { h.broadcast(id, ev) })
}

// Drop disconnects every client of session id.
func (h *Hub) Drop(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[id] {
		c.close()
		h.count--
	}
	delete(h.rooms, id)
	metrics.UpdateRendererClients(h.count)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// broadcast never blocks: it runs inside the session dispatcher.
func (h *Hub) broadcast(id string, ev model.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.rooms[id]
	if len(room) == 0 {
		return
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error(context.Background(), "event encoding failed", logger.Error(err))
		return
	}
	for c := range room {
		select {
		case c.send <- msg:
		default:
			metrics.RecordEventDropped()
		}
	}
}

// ServeHTTP upgrades GET /sessions/{id}/ws.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.ingest.Snapshot(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}

	c := &client{session: id, conn: conn, send: make(chan []byte, h.sendBuffer)}
	h.add(c)
	h.logger.Debug(r.Context(), "websocket client connected", logger.String("session", id))

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.session]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[c.session] = room
	}
	room[c] = struct{}{}
	h.count++
	metrics.UpdateRendererClients(h.count)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[c.session]
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.session)
	}
	h.count--
	c.close()
	metrics.UpdateRendererClients(h.count)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	for {
		var msg Inbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				h.reject(c, api.ErrBadRequest)
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug(context.Background(), "websocket read failed",
					logger.String("session", c.session), logger.Error(err))
			}
			return
		}
		if err := h.handle(c.session, msg); err != nil {
			h.reject(c, err)
		}
	}
}

func (h *Hub) handle(id string, msg Inbound) error {
	ctx := context.Background()
	switch msg.Type {
	case "frame":
		req := api.FrameRequest{FrameID: msg.FrameID, Bodies: msg.Bodies}
		if err := req.Validate(); err != nil {
			return fmt.Errorf("%w: %w", api.ErrBadRequest, err)
		}
		_, err := h.ingest.SubmitFrame(ctx, req.Frame(id))
		return err
	case "classification":
		req := api.ClassificationRequest{Label: msg.Label, Confidence: msg.Confidence}
		if err := req.Validate(); err != nil {
			return fmt.Errorf("%w: %w", api.ErrBadRequest, err)
		}
		return h.ingest.SubmitClassification(ctx, id, req.Result())
	default:
		return fmt.Errorf("%w: %w", api.ErrBadRequest, errUnknownType)
	}
}

func (h *Hub) reject(c *client, err error) {
	code := "error"
	switch {
	case errors.Is(err, api.ErrBadRequest):
		code = "bad_request"
	case errors.Is(err, service.ErrQueueFull):
		code = "backpressure"
	case errors.Is(err, service.ErrSessionNotFound):
		code = "not_found"
	}
	msg, _ := json.Marshal(reply{Type: "error", Code: code, Message: err.Error()})

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.rooms[c.session][c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		metrics.RecordEventDropped()
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
