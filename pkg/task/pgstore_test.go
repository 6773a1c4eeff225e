package task_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasktrack/internal/db"
	"tasktrack/pkg/task"
)

// setupPgStore connects to TASKTRACK_TEST_DATABASE_URL and starts from an empty table.
func setupPgStore(t *testing.T) *task.PgStore {
	t.Helper()
	dsn := os.Getenv("TASKTRACK_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TASKTRACK_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := db.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := task.NewPgStore(pool)
	require.NoError(t, store.EnsureTable(ctx))
	require.NoError(t, store.DeleteAll(ctx))
	return store
}

func TestPgStoreCRUD(t *testing.T) {
	store := setupPgStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	due := time.Now().Add(24 * time.Hour)
	a := &task.Task{Title: "Renew passport", DueAt: &due}
	_, err := store.Insert(ctx, a)
	require.NoError(t, err)
	_, err = store.Insert(ctx, &task.Task{Title: "water plants", Description: "the PASSPORT photo too"})
	require.NoError(t, err)

	seq := store.ObserveFiltered(ctx, "%passport%")
	got := next(t, seq)
	assert.Equal(t, []string{"Renew passport", "water plants"}, titles(got))
	require.NotNil(t, got[0].DueAt)
	assert.True(t, got[0].DueAt.Equal(task.Millis(due)))

	a.Completed = true
	require.NoError(t, store.Update(ctx, a))
	assert.Equal(t, []string{"water plants", "Renew passport"}, titles(next(t, seq)))

	stored, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, stored.Completed)
	assert.Equal(t, "Renew passport", stored.Title)
	_, err = store.Get(ctx, a.ID+1000)
	assert.True(t, errors.Is(err, task.ErrNotFound))

	err = store.Delete(ctx, &task.Task{ID: a.ID + 1000})
	assert.True(t, errors.Is(err, task.ErrNotFound))
}

func TestPgStoreListenRelaysOtherWriters(t *testing.T) {
	store := setupPgStore(t)
	other := setupPgStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go store.Listen(ctx)

	seq := store.ObserveAll(ctx)
	assert.Empty(t, next(t, seq))

	// Listen may not have issued LISTEN yet; retry the foreign write until it is seen.
	require.Eventually(t, func() bool {
		if _, err := other.Insert(ctx, &task.Task{Title: "from elsewhere"}); err != nil {
			return false
		}
		select {
		case tasks := <-seq:
			return len(tasks) > 0
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}
