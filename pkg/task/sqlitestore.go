package task

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteStore is an embedded SQLite-backed task store. Timestamps are stored as Unix
// milliseconds. The handle should be limited to one open connection so writes are serialized
// and in-memory databases are shared across queries.
type SQLiteStore struct {
	db   *sql.DB
	feed *Feed
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a SQLiteStore.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, feed: NewFeed()}
}

// Feed returns the change feed the store publishes to.
func (s *SQLiteStore) Feed() *Feed { return s.feed }

// EnsureTable creates the tasks table if it doesn't exist.
func (s *SQLiteStore) EnsureTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at  INTEGER NOT NULL,
			due_at      INTEGER,
			completed   INTEGER NOT NULL DEFAULT 0
		)`)
	if err != nil {
		return fmt.Errorf("create tasks table: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_order ON tasks(completed, due_at, created_at)`)
	return err
}

// ObserveAll returns a live sequence of every task.
func (s *SQLiteStore) ObserveAll(ctx context.Context) <-chan []Task {
	return observe(ctx, s.feed, func(ctx context.Context) ([]Task, error) {
		return s.query(ctx, `SELECT id, title, description, created_at, due_at, completed FROM tasks `+orderBy)
	})
}

// ObserveFiltered returns a live sequence of tasks whose title or description matches pattern.
// SQLite's LIKE folds ASCII case.
func (s *SQLiteStore) ObserveFiltered(ctx context.Context, pattern string) <-chan []Task {
	return observe(ctx, s.feed, func(ctx context.Context) ([]Task, error) {
		return s.query(ctx, `
			SELECT id, title, description, created_at, due_at, completed FROM tasks
			WHERE title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\'
			`+orderBy, pattern, pattern)
	})
}

// Get returns the task with the given id, read directly rather than from a live sequence.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (Task, error) {
	tasks, err := s.query(ctx, `SELECT id, title, description, created_at, due_at, completed FROM tasks WHERE id = ?`, id)
	if err != nil {
		return Task{}, fmt.Errorf("get task %d: %w", id, err)
	}
	if len(tasks) == 0 {
		return Task{}, fmt.Errorf("get task %d: %w", id, ErrNotFound)
	}
	return tasks[0], nil
}

// Insert stores t as a new task and returns its id. Any id already on t is ignored.
func (s *SQLiteStore) Insert(ctx context.Context, t *Task) (int64, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.CreatedAt = Millis(t.CreatedAt)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (title, description, created_at, due_at, completed)
		VALUES (?, ?, ?, ?, ?)`,
		t.Title, t.Description, t.CreatedAt.UnixMilli(), nullMillis(t.DueAt), t.Completed)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	t.ID = id
	s.feed.Publish()
	return id, nil
}

// Update replaces every mutable field of the stored task with t's. CreatedAt is never written.
func (s *SQLiteStore) Update(ctx context.Context, t *Task) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET title = ?, description = ?, due_at = ?, completed = ?
		WHERE id = ?`,
		t.Title, t.Description, nullMillis(t.DueAt), t.Completed, t.ID)
	if err != nil {
		return fmt.Errorf("update task %d: %w", t.ID, err)
	}
	if err := checkAffected(res, "update", t.ID); err != nil {
		return err
	}
	s.feed.Publish()
	return nil
}

// Delete removes the task with t's id.
func (s *SQLiteStore) Delete(ctx context.Context, t *Task) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, t.ID)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", t.ID, err)
	}
	if err := checkAffected(res, "delete", t.ID); err != nil {
		return err
	}
	s.feed.Publish()
	return nil
}

// DeleteAll removes every task.
func (s *SQLiteStore) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return fmt.Errorf("delete all tasks: %w", err)
	}
	s.feed.Publish()
	return nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		var (
			t         Task
			createdAt int64
			dueAt     sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &createdAt, &dueAt, &t.Completed); err != nil {
			return nil, err
		}
		t.CreatedAt = time.UnixMilli(createdAt)
		if dueAt.Valid {
			d := time.UnixMilli(dueAt.Int64)
			t.DueAt = &d
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return tasks, nil
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func checkAffected(res sql.Result, op string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s task %d: %w", op, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s task %d: %w", op, id, ErrNotFound)
	}
	return nil
}
