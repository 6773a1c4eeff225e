package task

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// changeChannel is the LISTEN/NOTIFY channel the tasks trigger publishes to.
const changeChannel = "tasks_changed"

// PgStore is a PostgreSQL-backed task store.
type PgStore struct {
	pool *pgxpool.Pool
	feed *Feed
}

var _ Store = (*PgStore)(nil)

// NewPgStore creates a PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, feed: NewFeed()}
}

// Feed returns the change feed the store publishes to.
func (s *PgStore) Feed() *Feed { return s.feed }

// EnsureTable creates the tasks table and its change-notification trigger if they don't exist.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			id          BIGSERIAL PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			due_at      TIMESTAMPTZ,
			completed   BOOLEAN NOT NULL DEFAULT FALSE
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_order ON tasks(completed, due_at, created_at DESC)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		CREATE OR REPLACE FUNCTION notify_tasks_changed() RETURNS trigger AS $$
		BEGIN
			PERFORM pg_notify('`+changeChannel+`', TG_OP);
			RETURN NULL;
		END;
		$$ LANGUAGE plpgsql`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `DROP TRIGGER IF EXISTS tasks_changed ON tasks`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		CREATE TRIGGER tasks_changed
		AFTER INSERT OR UPDATE OR DELETE OR TRUNCATE ON tasks
		FOR EACH STATEMENT EXECUTE FUNCTION notify_tasks_changed()`)
	return err
}

// Listen bridges PostgreSQL notifications into the local feed so writes from other processes
// re-emit live sequences. It blocks until ctx is cancelled.
func (s *PgStore) Listen(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("listen: acquire: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+changeChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	for {
		var n *pgconn.Notification
		n, err = conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("listen: wait: %w", err)
		}
		if n.Channel == changeChannel {
			s.feed.Publish()
		}
	}
}

// ObserveAll returns a live sequence of every task.
func (s *PgStore) ObserveAll(ctx context.Context) <-chan []Task {
	return observe(ctx, s.feed, func(ctx context.Context) ([]Task, error) {
		return s.query(ctx, `SELECT id, title, description, created_at, due_at, completed FROM tasks `+orderBy)
	})
}

// ObserveFiltered returns a live sequence of tasks whose title or description matches pattern.
func (s *PgStore) ObserveFiltered(ctx context.Context, pattern string) <-chan []Task {
	return observe(ctx, s.feed, func(ctx context.Context) ([]Task, error) {
		return s.query(ctx, `
			SELECT id, title, description, created_at, due_at, completed FROM tasks
			WHERE title ILIKE $1 ESCAPE '\' OR description ILIKE $1 ESCAPE '\'
			`+orderBy, pattern)
	})
}

// Get returns the task with the given id, read directly rather than from a live sequence.
func (s *PgStore) Get(ctx context.Context, id int64) (Task, error) {
	tasks, err := s.query(ctx, `SELECT id, title, description, created_at, due_at, completed FROM tasks WHERE id = $1`, id)
	if err != nil {
		return Task{}, fmt.Errorf("get task %d: %w", id, err)
	}
	if len(tasks) == 0 {
		return Task{}, fmt.Errorf("get task %d: %w", id, ErrNotFound)
	}
	return tasks[0], nil
}

// Insert stores t as a new task and returns its id. Any id already on t is ignored.
func (s *PgStore) Insert(ctx context.Context, t *Task) (int64, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.CreatedAt = Millis(t.CreatedAt)

	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO tasks (title, description, created_at, due_at, completed)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		t.Title, t.Description, t.CreatedAt, millisPtr(t.DueAt), t.Completed).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	t.ID = id
	s.feed.Publish()
	return id, nil
}

// Update replaces every mutable field of the stored task with t's. CreatedAt is never written.
func (s *PgStore) Update(ctx context.Context, t *Task) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks SET title = $1, description = $2, due_at = $3, completed = $4
		WHERE id = $5`,
		t.Title, t.Description, millisPtr(t.DueAt), t.Completed, t.ID)
	if err != nil {
		return fmt.Errorf("update task %d: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update task %d: %w", t.ID, ErrNotFound)
	}
	s.feed.Publish()
	return nil
}

// Delete removes the task with t's id.
func (s *PgStore) Delete(ctx context.Context, t *Task) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, t.ID)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete task %d: %w", t.ID, ErrNotFound)
	}
	s.feed.Publish()
	return nil
}

// DeleteAll removes every task.
func (s *PgStore) DeleteAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM tasks`); err != nil {
		return fmt.Errorf("delete all tasks: %w", err)
	}
	s.feed.Publish()
	return nil
}

func (s *PgStore) query(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return scanTaskRows(rows)
}

func scanTaskRows(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Task, error) {
	tasks := []Task{}
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.CreatedAt, &t.DueAt, &t.Completed); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return tasks, nil
}

func millisPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	m := Millis(*t)
	return &m
}
