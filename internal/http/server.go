// Package httpserver exposes the sync pipeline over a JSON API: inspect
// the declared and live inventories, compute plans and apply them.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"pg_entity_sync/internal/config"
)

type Server struct {
	cfg           config.Config
	logger        requestLogger
	db            *pgxpool.Pool
	entityHandler *EntityHandler
	planHandler   *PlanHandler
	runHandler    *RunHandler
	scriptHandler *ScriptHandler
}

type requestLogger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

func New(cfg config.Config, logger requestLogger, db *pgxpool.Pool, entityHandler *EntityHandler, planHandler *PlanHandler, runHandler *RunHandler, scriptHandler *ScriptHandler) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		db:            db,
		entityHandler: entityHandler,
		planHandler:   planHandler,
		runHandler:    runHandler,
		scriptHandler: scriptHandler,
	}
}

func (s *Server) Start(ctx context.Context) error {
	r := s.routes()
	httpServer := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "addr", s.cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(RequestLogger(s.logger))

	r.Route("/api/v1", func(api chi.Router) {
		api.Method(http.MethodGet, "/health", HealthHandler{DB: s.db})

		api.Get("/entities", s.entityHandler.List)
		api.Get("/plan", s.planHandler.Get)

		api.Post("/apply", s.runHandler.Apply)
		api.Get("/runs", s.runHandler.List)

		api.Get("/scripts", s.scriptHandler.List)
		api.Get("/scripts/{name}", s.scriptHandler.Get)
	})

	return r
}
