package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/volleycoach/internal/adapters/http/api"
	"github.com/okian/volleycoach/internal/domain/pose"
	"github.com/okian/volleycoach/internal/domain/session"
)

// httpClient talks to the REST API of one service.
type httpClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *httpClient {
	return &httpClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// do sends body as JSON to path and decodes a 2xx response into out.
func (c *httpClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	data, err := readResponseBody(resp)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr api.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Code != "" {
			return fmt.Errorf("%w: %s %s: %d %s: %s", ErrUnexpectedStatus, method, path, resp.StatusCode, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("%w: %s %s: %d", ErrUnexpectedStatus, method, path, resp.StatusCode)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c *httpClient) health(ctx context.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &body); err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	if body.Status != "ok" {
		return fmt.Errorf("%w: status %q", ErrUnhealthy, body.Status)
	}
	return nil
}

func (c *httpClient) createSession(ctx context.Context) (session.Snapshot, error) {
	var snap session.Snapshot
	err := c.do(ctx, http.MethodPost, "/sessions", nil, &snap)
	return snap, err
}

func (c *httpClient) snapshot(ctx context.Context, id string) (session.Snapshot, error) {
	var snap session.Snapshot
	err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), nil, &snap)
	return snap, err
}

func (c *httpClient) deleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(id), nil, nil)
}

func (c *httpClient) showScene(ctx context.Context, id string, scene pose.Scene) error {
	return c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/scene",
		api.SceneRequest{Scene: string(scene)}, nil)
}

func (c *httpClient) retry(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/practice/retry", nil, nil)
}

func (c *httpClient) startMatch(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/match/start", nil, nil)
}

func (c *httpClient) classify(ctx context.Context, id, label string, confidence float64) error {
	return c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/classifications",
		api.ClassificationRequest{Label: label, Confidence: confidence}, nil)
}

// wsURL turns the base URL of the service into the websocket URL of id.
func wsURL(baseURL, id string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/sessions/" + url.PathEscape(id) + "/ws"
	return u.String(), nil
}

func dial(ctx context.Context, baseURL, id string, timeout time.Duration) (*websocket.Conn, error) {
	target, err := wsURL(baseURL, id)
	if err != nil {
		return nil, fmt.Errorf("bad base url: %w", err)
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, resp, err := dialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}
	return conn, nil
}

// readResponseBody reads and closes the response body.
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
