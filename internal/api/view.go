package api

import (
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tasktrack/pkg/task"
	"tasktrack/pkg/view"
)

type viewPayload struct {
	Query string      `json:"query"`
	State string      `json:"state"`
	Tasks []task.Task `json:"tasks"`
}

// payload labels a list with the subscription that produced it, not the engine's current state.
func payload(f view.Frame) viewPayload {
	tasks := f.Tasks
	if tasks == nil {
		tasks = []task.Task{}
	}
	return viewPayload{
		Query: f.State.Term,
		State: f.State.String(),
		Tasks: tasks,
	}
}

func (s *Server) handleQueryGet(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"query": s.engine.Query()})
}

func (s *Server) handleQuerySet(c *gin.Context) {
	var req struct {
		Query string `json:"query"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
		return
	}
	s.engine.SetQuery(req.Query)
	c.JSON(http.StatusOK, gin.H{"query": s.engine.Query(), "state": s.engine.State().String()})
}

// handleView returns the engine's retained list without attaching a consumer.
func (s *Server) handleView(c *gin.Context) {
	f, ok := s.engine.Latest()
	if !ok {
		c.JSON(http.StatusOK, viewPayload{
			Query: s.engine.Query(),
			State: s.engine.State().String(),
			Tasks: []task.Task{},
		})
		return
	}
	c.JSON(http.StatusOK, payload(f))
}

// handleViewStream attaches a consumer for the lifetime of the request and sends one "tasks"
// event per emitted list.
func (s *Server) handleViewStream(c *gin.Context) {
	consumer := uuid.NewString()
	updates := s.engine.WatchFrames(c.Request.Context())
	log.Printf("api: view consumer %s attached", consumer)
	defer log.Printf("api: view consumer %s detached", consumer)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	c.Stream(func(w io.Writer) bool {
		f, ok := <-updates
		if !ok {
			return false
		}
		c.SSEvent("tasks", payload(f))
		return true
	})
}
