package http

import (
	"context"
	"net/http"
	"socketd/internal/api"
	"socketd/internal/logging"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type AdminServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAdminServer(adminHandler *api.AdminHandler, addr string) *AdminServer {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", adminHandler.HealthHandler)
	r.Get("/presence", adminHandler.OnlineUsersHandler)
	r.Get("/presence/last-seen", adminHandler.LastSeenHandler)
	r.Get("/presence/{userId}", adminHandler.UserStatusHandler)
	r.Delete("/presence/{userId}", adminHandler.ForgetHandler)
	r.NotFound(api.NotFound)

	if addr == "" {
		addr = "localhost:3002"
	}

	return &AdminServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *AdminServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *AdminServer) Start() error {
	logging.Info().Str("addr", s.server.Addr).Msg("admin API started")
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *AdminServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
