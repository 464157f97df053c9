// Package server exposes the assessment engine over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/ascend/internal/assessment"
	"github.com/abhisek/ascend/internal/config"
	"github.com/abhisek/ascend/internal/identity"
	"github.com/abhisek/ascend/internal/logger"
	"github.com/abhisek/ascend/internal/session"
	"github.com/abhisek/ascend/internal/store"
)

// Deps are the services the handlers call.
type Deps struct {
	Store      *store.Store
	Assessment *assessment.Orchestrator
	Verifier   *identity.Verifier
	Log        *logger.Logger
}

// Server routes API requests to the assessment engine.
type Server struct {
	store    *store.Store
	engine   *assessment.Orchestrator
	sessions *session.Tracker
	verifier *identity.Verifier
	log      *logger.Logger
	router   *gin.Engine
}

// New builds a Server and its routes.
func New(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		store:    d.Store,
		engine:   d.Assessment,
		sessions: d.Assessment.Tracker(),
		verifier: d.Verifier,
		log:      log.With("component", "http"),
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.health)

	v1 := r.Group("/v1")
	v1.Use(s.requireStudent())
	{
		v1.POST("/sessions", s.startSession)
		v1.POST("/sessions/:id/end", s.endSession)
		v1.GET("/sessions/restore", s.restoreSession)

		v1.POST("/topics", s.createTopic)
		v1.GET("/topics/:id", s.getTopic)
		v1.POST("/topics/:id/relationships", s.addRelationship)
		v1.GET("/topics/:id/prerequisites", s.prerequisites)
		v1.GET("/topics/:id/related", s.related)
		v1.GET("/available-topics", s.availableTopics)

		v1.POST("/topics/:id/questions", s.requestQuestion)
		v1.POST("/answers", s.submitAnswer)

		v1.GET("/topics/:id/mini-lesson", s.miniLesson)
		v1.POST("/topics/:id/mini-lesson/consume", s.consumeMiniLesson)
		v1.GET("/topics/:id/mastery", s.mastery)
	}
	return r
}

// Run serves on cfg.Addr until ctx is cancelled, then drains in-flight
// requests for up to cfg.ShutdownTimeout.
func (s *Server) Run(ctx context.Context, cfg config.HTTPConfig) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("listening", "addr", cfg.Addr)

	select {
	case <-ctx.Done():
		s.log.Info("shutting down", "timeout", cfg.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) health(c *gin.Context) {
	if err := s.store.DB().PingContext(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.String(http.StatusOK, "ok")
}
