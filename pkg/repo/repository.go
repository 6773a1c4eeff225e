// Package repo is the thin facade the view engine talks to instead of a task store directly.
package repo

import (
	"context"
	"strings"

	"tasktrack/pkg/task"
)

// Repository forwards to a task.Store, translating search terms into store patterns.
type Repository struct {
	store task.Store
}

// New creates a Repository over store.
func New(store task.Store) *Repository {
	return &Repository{store: store}
}

// ObserveAll returns the live sequence of all tasks.
func (r *Repository) ObserveAll(ctx context.Context) <-chan []task.Task {
	return r.store.ObserveAll(ctx)
}

// ObserveFiltered returns the live sequence of tasks whose title or description contains term.
func (r *Repository) ObserveFiltered(ctx context.Context, term string) <-chan []task.Task {
	return r.store.ObserveFiltered(ctx, Pattern(term))
}

// Get returns the current stored state of one task.
func (r *Repository) Get(ctx context.Context, id int64) (task.Task, error) {
	return r.store.Get(ctx, id)
}

// Add inserts t and returns the id the store assigned.
func (r *Repository) Add(ctx context.Context, t *task.Task) (int64, error) {
	return r.store.Insert(ctx, t)
}

// Update replaces the stored record with t.
func (r *Repository) Update(ctx context.Context, t *task.Task) error {
	return r.store.Update(ctx, t)
}

// Delete removes t.
func (r *Repository) Delete(ctx context.Context, t *task.Task) error {
	return r.store.Delete(ctx, t)
}

// DeleteAll removes every task.
func (r *Repository) DeleteAll(ctx context.Context) error {
	return r.store.DeleteAll(ctx)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Pattern wraps term as a substring LIKE pattern, escaping the wildcard characters it contains.
func Pattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}
