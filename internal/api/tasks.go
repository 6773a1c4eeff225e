package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tasktrack/pkg/task"
)

// snapshotTimeout bounds a one-off list read shared between concurrent requests.
const snapshotTimeout = 10 * time.Second

type taskInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueAt       *time.Time `json:"dueAt"`
	Completed   bool       `json:"completed"`
}

// snapshot reads the current list for term once. Concurrent reads of the same term share one
// store query, so the result may predate a write that finished while it ran; it serves list
// reads only.
func (s *Server) snapshot(term string) ([]task.Task, error) {
	term = strings.TrimSpace(term)
	v, err, _ := s.snapshots.Do(term, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		defer cancel()
		if term == "" {
			return task.First(ctx, s.repo.ObserveAll(ctx))
		}
		return task.First(ctx, s.repo.ObserveFiltered(ctx, term))
	})
	if err != nil {
		return nil, err
	}
	return v.([]task.Task), nil
}

func (s *Server) handleTaskList(c *gin.Context) {
	tasks, err := s.snapshot(c.Query("q"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) handleTaskCreate(c *gin.Context) {
	var in taskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
		return
	}
	id, err := s.engine.Add(c.Request.Context(), in.Title, in.Description, in.DueAt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) handleTaskUpdate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in taskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
		return
	}
	if strings.TrimSpace(in.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}
	t := task.Task{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		DueAt:       in.DueAt,
		Completed:   in.Completed,
	}
	if err := s.engine.Update(c.Request.Context(), t); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "task updated"})
}

func (s *Server) handleTaskToggle(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	// read the row itself; a shared list snapshot may predate a write that already finished
	t, err := s.repo.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	updated, err := s.engine.ToggleComplete(c.Request.Context(), t)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleTaskDelete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.engine.Delete(c.Request.Context(), task.Task{ID: id}); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "task deleted"})
}

func (s *Server) handleTaskDeleteAll(c *gin.Context) {
	if err := s.engine.DeleteAll(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "all tasks deleted"})
}
