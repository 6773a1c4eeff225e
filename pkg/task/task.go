package task

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a get, update or delete references an id the store does not hold.
	ErrNotFound = errors.New("task not found")
	// ErrInvalid is returned when a task fails validation at the creation boundary.
	ErrInvalid = errors.New("invalid task")
)

// Task is a single to-do item.
type Task struct {
	ID          int64      `json:"id"` // 0 until the store assigns one
	Title       string     `json:"title"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"createdAt"`
	DueAt       *time.Time `json:"dueAt"` // nil = no deadline
	Completed   bool       `json:"completed"`
}

// Store is the contract for task persistence.
//
// ObserveAll and ObserveFiltered return live sequences: the channel receives the full ordered
// list immediately and again after every change to the underlying data, until ctx is done, at
// which point the channel is closed. Patterns use LIKE syntax with '\' as the escape character
// and match Title or Description case-insensitively.
type Store interface {
	ObserveAll(ctx context.Context) <-chan []Task
	ObserveFiltered(ctx context.Context, pattern string) <-chan []Task
	Get(ctx context.Context, id int64) (Task, error)
	Insert(ctx context.Context, t *Task) (int64, error)
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, t *Task) error
	DeleteAll(ctx context.Context) error
	EnsureTable(ctx context.Context) error
}

// Millis truncates t to the millisecond precision tasks are stored with.
func Millis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli())
}

// First returns the first snapshot of a live sequence.
func First(ctx context.Context, seq <-chan []Task) ([]Task, error) {
	select {
	case tasks, ok := <-seq:
		if !ok {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, errors.New("live sequence closed before first snapshot")
		}
		return tasks, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
