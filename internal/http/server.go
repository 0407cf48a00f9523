package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/one-folder-app/onefolder-api/internal/config"
	"github.com/one-folder-app/onefolder-api/internal/rating"
	"github.com/one-folder-app/onefolder-api/internal/store"
)

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg     config.Config
	store   *store.Store
	ratings *rating.Service
	logger  *zap.Logger
	limiter *rateLimiter
	router  chi.Router
	httpSrv *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, st *store.Store, ratings *rating.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:     cfg,
		store:   st,
		ratings: ratings,
		logger:  logger.Named("http"),
		router:  chi.NewRouter(),
	}
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst > 0 {
		s.limiter = newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	// RealIP is left out: the rate limiter keys on the connection address
	// and must not trust client supplied forwarding headers.
	s.router.Use(middleware.RequestID)
	s.router.Use(s.accessLog)
	s.router.Use(s.recoverer)
	s.registerRoutes()
	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Route("/ratings", func(r chi.Router) {
		r.Get("/", s.handleListRatings)
		r.Get("/average", s.handleGetAverage)
		r.Get("/{ratingId}", s.handleGetRating)

		r.Group(func(r chi.Router) {
			r.Use(s.requireBearer)
			r.Use(s.rateLimit)
			r.Post("/", s.handleCreateRating)
			r.Put("/{ratingId}", s.handleUpdateRating)
			r.Delete("/{ratingId}", s.handleDeleteRating)
		})
	})
}

// Start boots the HTTP server and blocks until ctx ends or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	s.logger.Info("listening", zap.String("addr", s.httpSrv.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.HealthCheck(ctx); err != nil {
		s.requestLogger(r).Warn("health check failed", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	resp := healthResponse{Status: "ok"}
	if stat := s.store.Stats(); stat != nil {
		resp.Pool = &poolStats{
			TotalConns:    stat.TotalConns(),
			IdleConns:     stat.IdleConns(),
			AcquiredConns: stat.AcquiredConns(),
			MaxConns:      stat.MaxConns(),
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}
