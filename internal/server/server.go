// Package server exposes the download service over HTTP.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ytget/yt-audio-server/internal/config"
	"github.com/ytget/yt-audio-server/internal/playlist"
	"github.com/ytget/yt-audio-server/internal/registry"
	"github.com/ytget/yt-audio-server/pkg/log"
	"github.com/ytget/yt-audio-server/pkg/metrics"
)

const gracefulShutdownTimeout = 5 * time.Second

var (
	metricMiddleware    = metrics.NewMiddleware("api_server")
	registerMetricsOnce sync.Once
)

// Submitter schedules a created job for extraction
type Submitter interface {
	Submit(jobID string, quality int)
}

type Server struct {
	cfg      *config.Config
	registry *registry.Registry
	expander *playlist.Expander
	sup      Submitter
	validate *validator.Validate
}

// New returns a new instance of the download API server
func New(cfg *config.Config, reg *registry.Registry, expander *playlist.Expander, sup Submitter) *Server {
	return &Server{
		cfg:      cfg,
		registry: reg,
		expander: expander,
		sup:      sup,
		validate: validator.New(),
	}
}

// Router assembles the full middleware chain and route table
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()

	registerMetricsOnce.Do(func() {
		metricMiddleware.MustRegisterDefault()
	})

	router.Use(
		chimiddleware.RequestID,
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "HEAD", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			MaxAge:         300,
		}),
		log.Logger("api_server"),
		chimiddleware.Recoverer,
		RateGate(s.cfg.Service.RateLimitRPS, s.cfg.Service.RateLimitBurst),
	)

	router.Get("/health", s.handleHealth)
	router.Handle("/metrics", metrics.Handler())

	router.Route("/downloads", func(r chi.Router) {
		r.Post("/start", s.handleStart)
		r.Get("/status", s.handleStatus)
		r.Get("/{id}/file", s.handleFile)
	})

	return router
}

// Run serves the API until ctx is canceled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Infow("initializing API server", "address", s.cfg.Service.Address)

	srv := http.Server{Addr: s.cfg.Service.Address, Handler: s.Router()}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
