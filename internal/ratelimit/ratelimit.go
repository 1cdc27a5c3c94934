// Package ratelimit gates websocket handshakes with a fixed window counter.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"socketd/internal/logging"
	"socketd/internal/metrics"
	"socketd/internal/store"
	"strings"
)

type Limiter struct {
	store store.RateLimitStore
	max   int64
}

func New(s store.RateLimitStore, maxRequests int) *Limiter {
	return &Limiter{store: s, max: int64(maxRequests)}
}

// IsRateLimited counts a request for clientID and reports whether it went
// over the limit. Store errors never limit.
func (l *Limiter) IsRateLimited(ctx context.Context, clientID string) bool {
	n, err := l.store.Increment(ctx, clientID)
	if err != nil {
		logging.Warn().Err(err).Str("client", clientID).Msg("rate limit store failed, allowing request")
		return false
	}
	if n > l.max {
		metrics.RateLimited.Inc()
		return true
	}
	return false
}

// ClientIP resolves the caller address: first X-Forwarded-For hop, then
// X-Real-Ip, then RemoteAddr without the port.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-Ip")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
