// Package server exposes the broker over HTTP under /erp/omem/v1.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/koustreak/omem/internal/broker"
	"github.com/koustreak/omem/internal/config"
	"github.com/koustreak/omem/internal/logger"
)

// BasePath prefixes every API route.
const BasePath = "/erp/omem/v1"

// Request headers.
const (
	HeaderGlobalKey     = "X-Global-Api-Key"
	HeaderUserKey       = "X-User-Api-Key"
	HeaderModifiedSince = "X-Modified-Since"
)

// Pinger is anything /readyz should check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP front of a Broker.
type Server struct {
	broker   *broker.Broker
	cfg      config.ServerConfig
	log      *logger.Logger
	registry *prometheus.Registry
	checks   map[string]Pinger
	limiter  *clientLimiters
	router   chi.Router
}

// New builds the router. checks are pinged by /readyz; registry is served
// on /metrics when non-nil.
func New(b *broker.Broker, cfg config.ServerConfig, log *logger.Logger, registry *prometheus.Registry, checks map[string]Pinger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		broker:   b,
		cfg:      cfg,
		log:      log,
		registry: registry,
		checks:   checks,
		limiter:  newClientLimiters(rate.Limit(cfg.RegisterRate), cfg.RegisterBurst),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logger.Middleware(s.log), middleware.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", HeaderGlobalKey, HeaderUserKey, HeaderModifiedSince},
			ExposedHeaders: []string{"Content-Length"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	}

	r.Route(BasePath, func(api chi.Router) {
		api.Put("/actors", s.handleRegister)
		api.Get("/objects", s.handleListAll)

		api.Route("/actors/{key}/objects", func(obj chi.Router) {
			obj.Get("/", s.handleGet)
			obj.Get("/{tag}", s.handleRead)
			obj.Delete("/{tag}", s.handleDelete)
			obj.Put("/{tag}/upload-url", s.handleUploadURL)
			obj.Put("/{tag}/confirm", s.handleConfirm)
		})
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for at most ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
