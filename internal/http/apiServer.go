package http

import (
	"context"
	"net"
	"net/http"
	"socketd/internal/api"
	"socketd/internal/logging"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

type APIConfig struct {
	Addr string
	// HTTPRateLimit caps side-channel requests per IP and window; 0 disables.
	HTTPRateLimit   int
	RateLimitWindow time.Duration
}

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

// NewAPIServer serves the websocket gateway and the emit-event side-channel.
// Connections inherit ctx, so cancelling it closes them.
func NewAPIServer(ctx context.Context, cfg APIConfig, socket http.HandlerFunc, apiHandlers *api.API) *APIServer {
	r := chi.NewRouter()
	r.Use(api.BlockScripts)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "token"},
		MaxAge:         300,
	}))

	r.Get("/socket", socket)
	r.Get("/ws", socket)

	r.Group(func(r chi.Router) {
		if cfg.HTTPRateLimit > 0 {
			r.Use(httprate.LimitByIP(cfg.HTTPRateLimit, cfg.RateLimitWindow))
		}
		r.Post("/emit-event", apiHandlers.EmitHandler)
	})

	r.NotFound(api.NotFound)
	r.MethodNotAllowed(api.NotFound)

	addr := cfg.Addr
	if addr == "" {
		addr = ":3001"
	}

	return &APIServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		},
	}
}

// Handler exposes the router for in-process tests.
func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *APIServer) Start() error {
	logging.Info().Str("addr", s.server.Addr).Msg("server started")
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
