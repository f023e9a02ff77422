package probe

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Sh00ty/mec-orchestrator/internal/catalog"
	"github.com/Sh00ty/mec-orchestrator/internal/controller"
	"github.com/Sh00ty/mec-orchestrator/internal/models"
)

const shutdownTimeout = 5 * time.Second

type Contexts interface {
	GetContext(ctx context.Context, id models.ContextID) (controller.ContextInfo, error)
	ListContexts(ctx context.Context) ([]controller.ContextInfo, error)
}

type Applications interface {
	List(filter catalog.Filter) []models.AppDescriptor
}

// Pinger reports whether backing stores are reachable.
type Pinger func(ctx context.Context) error

// Server is the admin endpoint of the orchestrator: probes, metrics and
// read-only diagnostics. It never mutates contexts.
type Server struct {
	router   *gin.Engine
	srv      *http.Server
	contexts Contexts
	apps     Applications
	ready    Pinger
	started  time.Time
	logger   zerolog.Logger
}

func New(
	addr string,
	contexts Contexts,
	apps Applications,
	ready Pinger,
	metricsHandler http.Handler,
	logger zerolog.Logger,
) *Server {
	logger = logger.With().Str("component", "probe").Logger()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	s := &Server{
		router:   r,
		contexts: contexts,
		apps:     apps,
		ready:    ready,
		started:  time.Now(),
		logger:   logger,
	}
	s.registerRoutes(metricsHandler)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts the listener down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Msgf("admin server listening on %s", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) registerRoutes(metricsHandler http.Handler) {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(s.started).String(),
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		if s.ready != nil {
			if err := s.ready(c.Request.Context()); err != nil {
				s.logger.Warn().Err(err).Msg("readiness check failed")
				c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"ready": true})
	})

	if metricsHandler != nil {
		s.router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	debug := s.router.Group("/debug")
	debug.GET("/contexts", s.listContexts)
	debug.GET("/contexts/:id", s.getContext)
	debug.GET("/applications", s.listApplications)
}

func (s *Server) listContexts(c *gin.Context) {
	infos, err := s.contexts.ListContexts(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]contextDto, 0, len(infos))
	for _, info := range infos {
		out = append(out, toContextDto(info))
	}
	c.JSON(http.StatusOK, gin.H{"contexts": out})
}

func (s *Server) getContext(c *gin.Context) {
	info, err := s.contexts.GetContext(c.Request.Context(), models.ContextID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toContextDto(info))
}

func (s *Server) listApplications(c *gin.Context) {
	apps := s.apps.List(catalog.Filter{
		AppName:        c.Query("appName"),
		AppProvider:    c.Query("appProvider"),
		AppSoftVersion: c.Query("appSoftVersion"),
	})
	c.JSON(http.StatusOK, gin.H{"applications": apps})
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrValidation):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		event := logger.Debug()
		if status >= 500 {
			event = logger.Error()
		} else if status >= 400 {
			event = logger.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("http_request")
	}
}
