package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"transferscope/internal/cache"
	"transferscope/internal/feed"
	"transferscope/internal/model"
)

// Stats is the slice of the aggregation engine the API serves from.
type Stats interface {
	Overview(ctx context.Context) model.Overview
	AccountStats(ctx context.Context, address string, limit int) model.AccountStats
	TransfersByRange(ctx context.Context, start, end time.Time, limit int) []model.TransferRecord
	VolumeDistribution(ctx context.Context, timeframe string) ([]model.VolumeBucket, error)
}

// HeadSource reports the chain head for health checks.
type HeadSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// Server is the REST and live feed surface.
type Server struct {
	router chi.Router
	opts   ServerOpts
	log    *zap.Logger
}

type ServerOpts struct {
	Stats     Stats
	Head      HeadSource
	Cache     *cache.Store
	Feed      *feed.Broadcaster
	Logger    *zap.Logger
	Port      int
	BlockTime time.Duration
	Decimals  uint8
}

// NewServer builds the router and handlers.
func NewServer(opts ServerOpts) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Server{
		router: chi.NewRouter(),
		opts:   opts,
		log:    opts.Logger,
	}

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	s.router.Use(s.requestLogger)
	s.router.Use(s.recoverer)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats/overview", s.handleOverview)
		r.Get("/account/{address}", s.handleAccount)
		r.Get("/transfers", s.handleTransfers)
		r.Get("/analytics/volume-distribution", s.handleVolumeDistribution)
		r.Get("/health", s.handleHealth)
		r.Get("/ws", s.handleWebSocket)
	})
	s.router.Handle("/metrics", promhttp.Handler())

	return s
}

// Listen serves HTTP until ctx ends, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context) error {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.opts.Port),
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("server shutdown failed", zap.Error(err))
		}
	}()

	s.log.Info("api server listening", zap.Int("port", s.opts.Port))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Handler exposes the router, used by handler tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(started)))
	})
}

// recoverer maps panics to the structured error body instead of a bare 500.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("handler panic", zap.Any("panic", rec), zap.String("path", r.URL.Path))
				writeError(w, r, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
