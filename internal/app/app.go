// Package app wires a configured store, repository and view engine together.
package app

import (
	"context"
	"fmt"
	"log"

	"tasktrack/internal/config"
	"tasktrack/internal/db"
	"tasktrack/pkg/repo"
	"tasktrack/pkg/task"
	"tasktrack/pkg/view"
)

// App is an opened tasktrack instance.
type App struct {
	Store  task.Store
	Repo   *repo.Repository
	Engine *view.Engine

	// listen relays cross-process change notifications; nil for stores without them
	listen  func(ctx context.Context) error
	closers []func()
}

// Open connects the store selected by cfg, ensures its schema and builds the engine.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := db.Connect(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		pg := task.NewPgStore(pool)
		a.Store = pg
		a.listen = pg.Listen
	default:
		sqlDB, err := db.OpenSQLite(ctx, cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { sqlDB.Close() })
		a.Store = task.NewSQLiteStore(sqlDB)
	}

	if err := a.Store.EnsureTable(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("ensure tasks table: %w", err)
	}

	a.Repo = repo.New(a.Store)
	a.Engine = view.New(a.Repo, view.WithGracePeriod(cfg.View.GracePeriod))
	a.closers = append(a.closers, a.Engine.Close)
	return a, nil
}

// Listen relays change notifications from other processes until ctx is cancelled. It returns
// immediately for stores that have none.
func (a *App) Listen(ctx context.Context) error {
	if a.listen == nil {
		return nil
	}
	log.Println("app: listening for store change notifications")
	return a.listen(ctx)
}

// Close releases everything Open acquired, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
