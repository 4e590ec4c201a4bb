// Package api exposes the sync engine to the UI layer over HTTP.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	syncpkg "github.com/kimhsiao/resellerdesk/backend/internal/sync"
	"github.com/kimhsiao/resellerdesk/backend/internal/sync/scheduler"
)

// Opener reveals sealed payload fields for display.
type Opener interface {
	Open(payload map[string]interface{}) (map[string]interface{}, error)
}

// Server holds the handlers' dependencies.
type Server struct {
	engine    syncpkg.SyncEngineInterface
	scheduler *scheduler.Scheduler
	hub       http.Handler
	opener    Opener
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithScheduler includes scheduler status in /api/status and routes
// POST /api/sync through the scheduler.
func WithScheduler(s *scheduler.Scheduler) Option {
	return func(srv *Server) { srv.scheduler = s }
}

// WithHub serves WebSocket notifications on /ws.
func WithHub(h http.Handler) Option {
	return func(srv *Server) { srv.hub = h }
}

// WithOpener lets cache reads reveal sealed fields with ?reveal=true.
func WithOpener(o Opener) Option {
	return func(srv *Server) { srv.opener = o }
}

// NewServer creates an API server over engine.
func NewServer(engine syncpkg.SyncEngineInterface, opts ...Option) *Server {
	s := &Server{engine: engine}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRoutes builds the echo router.
func (s *Server) RegisterRoutes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.Recover())
	e.Use(requestLogger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAccept, echo.HeaderContentType},
		MaxAge:       300,
	}))

	api := e.Group("/api")
	api.GET("/health", s.health)
	api.GET("/status", s.status)
	api.POST("/mutations", s.enqueue)
	api.GET("/queue", s.listQueue)
	api.GET("/queue/:id", s.getQueued)
	api.POST("/sync", s.forceSync)
	api.GET("/cache/:table", s.readCache)
	api.GET("/cache/:table/:id", s.readCachedRecord)
	api.PUT("/cache/:table", s.replaceCache)
	api.POST("/cache/:table/refresh", s.refreshCache)
	api.POST("/connectivity", s.setConnectivity)

	if s.hub != nil {
		e.GET("/ws", echo.WrapHandler(s.hub))
	}
	return e
}
