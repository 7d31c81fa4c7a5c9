package ws

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/volleycoach/pkg/logger"
)

// Option configures a Hub.
type Option func(*Hub)

// WithSendBuffer sets the per-client outbound buffer; events beyond it are
// dropped for that client.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithPingInterval sets the keepalive ping period. The read deadline is
// derived from it.
func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
			h.pongWait = d * 10 / 9
		}
	}
}

// WithLogger sets the hub logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithCheckOrigin replaces the upgrade origin check. Without it only
// same-origin upgrades, and clients sending no Origin header, are accepted.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Hub) {
		if fn != nil {
			h.upgrader.CheckOrigin = fn
		}
	}
}

// WithAllowedOrigins accepts upgrades from the listed origins on top of the
// same-origin default. "*" accepts any origin.
func WithAllowedOrigins(origins ...string) Option {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			allowed[strings.ToLower(o)] = struct{}{}
		}
	}
	return func(h *Hub) {
		if len(allowed) == 0 {
			return
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if _, wildcard := allowed["*"]; wildcard || origin == "" {
				return true
			}
			if _, ok := allowed[strings.ToLower(origin)]; ok {
				return true
			}
			return sameOrigin(r, origin)
		}
	}
}

func sameOrigin(r *http.Request, origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
