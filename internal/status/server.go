// Package status serves health and trigger introspection over HTTP.
package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"kabunotify/internal/scheduler"
)

// Triggers exposes the scheduler state.
type Triggers interface {
	Triggers() []scheduler.TriggerInfo
	SendNotification(ctx context.Context, channelID string) error
}

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter builds the status routes.
func NewRouter(triggers Triggers, db Pinger, log zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))

	router.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "triggers": len(triggers.Triggers())})
	})

	router.GET("/triggers", func(c *gin.Context) {
		c.JSON(http.StatusOK, triggers.Triggers())
	})

	// Sends a channel's report now, outside its schedule.
	router.POST("/channels/:id/notify", func(c *gin.Context) {
		channelID := c.Param("id")
		if err := triggers.SendNotification(c.Request.Context(), channelID); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"channel_id": channelID})
	})

	return router
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("status request")
	}
}

// Server runs the status router.
type Server struct {
	srv *http.Server
	log zerolog.Logger
}

// NewServer creates a server listening on addr.
func NewServer(addr string, handler http.Handler, log zerolog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      2 * time.Minute,
		},
		log: log.With().Str("component", "status").Logger(),
	}
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.srv.Addr).Msg("status server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("status server")
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
