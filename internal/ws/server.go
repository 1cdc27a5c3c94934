package ws

import (
	"net/http"
	"slices"
	"socketd/internal/auth"
	"socketd/internal/logging"
	"socketd/internal/metrics"
	"socketd/internal/ratelimit"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

type Config struct {
	AllowedOrigins  []string
	MaxPayloadBytes int64
	PingInterval    time.Duration
	PingTimeout     time.Duration
}

type Server struct {
	auth     *auth.AuthService
	limiter  *ratelimit.Limiter
	hub      messageHub
	upgrader *websocket.Upgrader
	cfg      Config
}

func NewServer(authService *auth.AuthService, limiter *ratelimit.Limiter, hub messageHub, cfg Config) *Server {
	s := &Server{
		auth:    authService,
		limiter: limiter,
		hub:     hub,
		cfg:     cfg,
	}
	s.upgrader = &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin allows requests without an Origin header and, unless the
// list is empty or has "*", only listed origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 || slices.Contains(s.cfg.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, origin)
}

func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	connID := uuid.NewString()

	token := auth.BearerToken(r.Header.Get("Authorization"), r.URL.Query().Get("token"), r.Header.Get("token"))
	identity, err := s.auth.Identify(token, connID)
	if err != nil && token != "" {
		logging.Debug().Err(err).Str("conn_id", connID).Msg("credential rejected, continuing anonymously")
	}

	clientIP := ratelimit.ClientIP(r)
	key := clientIP
	if identity.Authenticated {
		key = identity.UserID
	}
	if s.limiter.IsRateLimited(r.Context(), key) {
		logging.Warn().Str("client", key).Msg("connection rate limited")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Str("remote", clientIP).Msg("websocket upgrade failed")
		return
	}

	conn.SetReadLimit(s.cfg.MaxPayloadBytes)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PingInterval + s.cfg.PingTimeout))
	})

	session := &Session{
		ID:            connID,
		UserID:        identity.UserID,
		Authenticated: identity.Authenticated,
		RemoteAddr:    clientIP,
		CreatedAt:     time.Now(),
	}

	kind := "anonymous"
	if session.Authenticated {
		kind = "authenticated"
	}
	metrics.ConnectionsTotal.WithLabelValues(kind).Inc()
	logging.Info().Str("conn_id", connID).Str("user_id", session.UserID).Str("remote", clientIP).Msg("connection opened")

	c := NewConnection(s.hub, conn, session, Timing{
		PingInterval: s.cfg.PingInterval,
		PingTimeout:  s.cfg.PingTimeout,
		WriteWait:    writeWait,
	})
	if err := c.Handle(r.Context()); err != nil {
		logging.Debug().Err(err).Str("conn_id", connID).Msg("connection ended with error")
	}

	logging.Info().Str("conn_id", connID).Str("user_id", session.User()).
		Dur("duration", time.Since(session.CreatedAt)).Msg("connection closed")
}
