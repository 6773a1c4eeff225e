package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"tasktrack/pkg/repo"
	"tasktrack/pkg/task"
	"tasktrack/pkg/transfer"
	"tasktrack/pkg/view"
)

// Server is the HTTP API server.
type Server struct {
	engine    *view.Engine
	repo      *repo.Repository
	router    *gin.Engine
	snapshots singleflight.Group
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	mode string
}

// WithMode sets the gin mode (debug, release or test).
func WithMode(mode string) Option {
	return func(o *serverOptions) { o.mode = mode }
}

// New creates a new Server.
func New(engine *view.Engine, r *repo.Repository, opts ...Option) *Server {
	o := serverOptions{mode: gin.ReleaseMode}
	for _, opt := range opts {
		opt(&o)
	}
	gin.SetMode(o.mode)

	s := &Server{
		engine: engine,
		repo:   r,
		router: gin.New(),
	}
	s.router.Use(requestID(), gin.Recovery())
	if o.mode != gin.TestMode {
		s.router.Use(gin.Logger())
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")

	// Tasks
	api.GET("/tasks", s.handleTaskList)
	api.POST("/tasks", s.handleTaskCreate)
	api.DELETE("/tasks", s.handleTaskDeleteAll)
	api.PUT("/tasks/:id", s.handleTaskUpdate)
	api.DELETE("/tasks/:id", s.handleTaskDelete)
	api.POST("/tasks/:id/toggle", s.handleTaskToggle)

	// Live view
	api.GET("/query", s.handleQueryGet)
	api.PUT("/query", s.handleQuerySet)
	api.GET("/view", s.handleView)
	api.GET("/view/stream", s.handleViewStream)

	// Transfer
	api.GET("/export", s.handleExport)
	api.POST("/import", s.handleImport)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requestID tags each request with an X-Request-ID, keeping one supplied by the client.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// writeError maps domain errors onto status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, task.ErrInvalid), errors.Is(err, transfer.ErrMalformedDocument):
		status = http.StatusBadRequest
	case errors.Is(err, task.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, view.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		log.Printf("api: %s %s [%s]: %v", c.Request.Method, c.Request.URL.Path, c.GetString("request_id"), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return 0, false
	}
	return id, true
}
