package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"parking-spots/internal/auth"
	"parking-spots/internal/logging"
	"parking-spots/internal/parking"
)

type Server struct {
	httpServer *http.Server
	handler    *Handler
	hub        *Hub
	metrics    *Metrics
}

func NewServer(port, serviceName string, store parking.Store, gatekeeper *parking.Gatekeeper, detector parking.Detector, authz auth.Authorizer) *Server {
	metrics := NewMetrics(store)
	handler := NewHandler(serviceName, store, gatekeeper, detector, authz, metrics)

	hub := NewHub()
	store.Subscribe(hub.Publish)

	r := chi.NewRouter()

	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(TracingMiddleware(serviceName))
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)

	r.Get("/health", handler.HealthCheck)
	r.Get("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP)
	r.Get("/ws", hub.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/parking", handler.ListSpots)
		r.Get("/parking/{id}", handler.GetSpot)

		r.Post("/auth/login", handler.Login)

		r.Post("/gate/entry", handler.GateEntry)
		r.Post("/gate/check-entry", handler.CheckEntry)
		r.Post("/gate/exit", handler.GateExit)

		r.Post("/spot/{id}/review", handler.AddReview)
		r.Post("/spot/{id}/photo", handler.AddPhoto)

		r.Post("/analyze", handler.Analyze)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin(authz))
			r.Post("/spot", handler.UpsertSpot)
			r.Delete("/spot/{id}", handler.DeleteSpot)
		})
	})

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		handler:    handler,
		hub:        hub,
		metrics:    metrics,
	}
}

// Start runs the websocket hub until ctx is cancelled and blocks serving
// HTTP.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	logging.Info(ctx).Str("addr", s.httpServer.Addr).Msg("starting HTTP server")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info(ctx).Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) GetAddress() string {
	return fmt.Sprintf("http://localhost%s", s.httpServer.Addr)
}
