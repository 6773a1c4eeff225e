package task_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasktrack/internal/db"
	"tasktrack/pkg/task"
)

func setupStore(t *testing.T) *task.SQLiteStore {
	t.Helper()
	ctx := context.Background()

	sqlDB, err := db.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	store := task.NewSQLiteStore(sqlDB)
	require.NoError(t, store.EnsureTable(ctx))
	return store
}

// next waits for the next emission of a live sequence.
func next(t *testing.T, seq <-chan []task.Task) []task.Task {
	t.Helper()
	select {
	case tasks, ok := <-seq:
		require.True(t, ok, "sequence closed")
		return tasks
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for emission")
		return nil
	}
}

func ptr(t time.Time) *time.Time { return &t }

func titles(tasks []task.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Title
	}
	return out
}

func TestSQLiteStoreInsertAssignsID(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	a := &task.Task{Title: "first"}
	id1, err := store.Insert(ctx, a)
	require.NoError(t, err)
	assert.Positive(t, id1)
	assert.Equal(t, id1, a.ID)
	assert.False(t, a.CreatedAt.IsZero(), "zero CreatedAt should be stamped")

	id2, err := store.Insert(ctx, &task.Task{ID: 99, Title: "second"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
	assert.NotEqual(t, int64(99), id2, "caller-supplied id is ignored")
}

func TestSQLiteStoreObserveAllOrdering(t *testing.T) {
	store := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Now()
	_, err := store.Insert(ctx, &task.Task{Title: "A", CreatedAt: now.Add(-2 * time.Hour), DueAt: ptr(now.Add(48 * time.Hour))})
	require.NoError(t, err)
	_, err = store.Insert(ctx, &task.Task{Title: "B", CreatedAt: now.Add(-1 * time.Hour), DueAt: ptr(now.Add(24 * time.Hour))})
	require.NoError(t, err)
	_, err = store.Insert(ctx, &task.Task{Title: "C", CreatedAt: now, Completed: true})
	require.NoError(t, err)
	_, err = store.Insert(ctx, &task.Task{Title: "D", CreatedAt: now})
	require.NoError(t, err)
	_, err = store.Insert(ctx, &task.Task{Title: "E", CreatedAt: now.Add(-3 * time.Hour)})
	require.NoError(t, err)

	tasks := next(t, store.ObserveAll(ctx))
	assert.Equal(t, []string{"B", "A", "D", "E", "C"}, titles(tasks))
	assert.True(t, task.Sorted(tasks))
}

func TestSQLiteStoreRoundTripsFields(t *testing.T) {
	store := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	created := time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.UTC)
	due := time.Date(2026, 3, 5, 17, 0, 0, 0, time.UTC)
	in := &task.Task{Title: "Pay rent", Description: "before 5pm", CreatedAt: created, DueAt: &due}
	_, err := store.Insert(ctx, in)
	require.NoError(t, err)

	tasks := next(t, store.ObserveAll(ctx))
	require.Len(t, tasks, 1)
	got := tasks[0]
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, "Pay rent", got.Title)
	assert.Equal(t, "before 5pm", got.Description)
	assert.True(t, got.CreatedAt.Equal(task.Millis(created)), "createdAt stored at ms precision")
	require.NotNil(t, got.DueAt)
	assert.True(t, got.DueAt.Equal(due))
	assert.False(t, got.Completed)
}

func TestSQLiteStoreUpdate(t *testing.T) {
	store := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orig := &task.Task{Title: "draft", Description: "d", DueAt: ptr(time.Now().Add(time.Hour))}
	_, err := store.Insert(ctx, orig)
	require.NoError(t, err)

	changed := *orig
	changed.Title = "final"
	changed.DueAt = nil
	changed.Completed = true
	changed.CreatedAt = time.Unix(0, 0)
	require.NoError(t, store.Update(ctx, &changed))

	tasks := next(t, store.ObserveAll(ctx))
	require.Len(t, tasks, 1)
	assert.Equal(t, "final", tasks[0].Title)
	assert.Equal(t, "d", tasks[0].Description)
	assert.Nil(t, tasks[0].DueAt)
	assert.True(t, tasks[0].Completed)
	assert.True(t, tasks[0].CreatedAt.Equal(orig.CreatedAt), "createdAt is never rewritten")
}

func TestSQLiteStoreMissingID(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	err := store.Update(ctx, &task.Task{ID: 42, Title: "ghost"})
	assert.True(t, errors.Is(err, task.ErrNotFound), "update: %v", err)

	err = store.Delete(ctx, &task.Task{ID: 42})
	assert.True(t, errors.Is(err, task.ErrNotFound), "delete: %v", err)
}

func TestSQLiteStoreFilter(t *testing.T) {
	store := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, tk := range []task.Task{
		{Title: "Buy MILK"},
		{Title: "Call mom", Description: "about the milkshake"},
		{Title: "100% done"},
		{Title: "file_name cleanup"},
		{Title: "filename"},
	} {
		tk := tk
		_, err := store.Insert(ctx, &tk)
		require.NoError(t, err)
	}

	cases := []struct {
		name    string
		pattern string
		want    []string
	}{
		{"case-insensitive title", `%milk%`, []string{"Buy MILK", "Call mom"}},
		{"description match", `%shake%`, []string{"Call mom"}},
		{"escaped percent", `%\%%`, []string{"100% done"}},
		{"escaped underscore", `%e\_n%`, []string{"file_name cleanup"}},
		{"no match", `%xyz%`, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tctx, tcancel := context.WithCancel(ctx)
			defer tcancel()
			got := next(t, store.ObserveFiltered(tctx, tc.pattern))
			assert.ElementsMatch(t, tc.want, titles(got))
		})
	}
}

func TestSQLiteStoreLiveSequence(t *testing.T) {
	store := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	seq := store.ObserveAll(ctx)
	assert.Empty(t, next(t, seq))

	a := &task.Task{Title: "one"}
	_, err := store.Insert(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, titles(next(t, seq)))

	a.Completed = true
	require.NoError(t, store.Update(ctx, a))
	got := next(t, seq)
	require.Len(t, got, 1)
	assert.True(t, got[0].Completed)

	require.NoError(t, store.DeleteAll(ctx))
	assert.Empty(t, next(t, seq))

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-seq:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond, "sequence not closed after cancel")
	assert.Eventually(t, func() bool { return store.Feed().Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestSQLiteStoreFilteredSequenceFollowsChanges(t *testing.T) {
	store := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seq := store.ObserveFiltered(ctx, "%report%")
	assert.Empty(t, next(t, seq))

	_, err := store.Insert(ctx, &task.Task{Title: "unrelated"})
	require.NoError(t, err)
	assert.Empty(t, next(t, seq))

	_, err = store.Insert(ctx, &task.Task{Title: "Quarterly Report"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Quarterly Report"}, titles(next(t, seq)))
}

func TestSQLiteStoreDeleteAllEmpty(t *testing.T) {
	store := setupStore(t)
	require.NoError(t, store.DeleteAll(context.Background()))
}

func TestSQLiteStoreGet(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	due := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	in := &task.Task{Title: "dentist", Description: "bring card", DueAt: &due}
	_, err := store.Insert(ctx, in)
	require.NoError(t, err)

	got, err := store.Get(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, "dentist", got.Title)
	assert.Equal(t, "bring card", got.Description)
	require.NotNil(t, got.DueAt)
	assert.True(t, got.DueAt.Equal(due))

	in.Title = "dentist at 3"
	require.NoError(t, store.Update(ctx, in))
	got, err = store.Get(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, "dentist at 3", got.Title)

	_, err = store.Get(ctx, in.ID+1)
	assert.ErrorIs(t, err, task.ErrNotFound)
}
