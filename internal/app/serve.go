package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"golang.org/x/sync/errgroup"

	"tasktrack/internal/api"
	"tasktrack/internal/config"
)

// Serve runs the HTTP API and the change listener until SIGINT/SIGTERM or ctx is done, then
// shuts both down within cfg.Server.ShutdownTimeout. It returns the process exit code. A
// component that fails on its own triggers the same shutdown and its error is returned.
func Serve(ctx context.Context, cfg *config.Config) (int, error) {
	a, err := Open(ctx, cfg)
	if err != nil {
		return 1, err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.New(a.Engine, a.Repo, api.WithMode(cfg.Server.Mode)),
	}

	// trigger starts the shutdown from inside the process
	trigger, fail := context.WithCancel(ctx)
	defer fail()
	listenCtx, stopListen := context.WithCancel(context.Background())
	defer stopListen()

	wait := gfshutdown.GracefulShutdown(
		trigger,
		cfg.Server.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				log.Println("tasktrack: shutting down http server")
				return srv.Shutdown(ctx)
			},
			"listener": func(ctx context.Context) error {
				stopListen()
				return nil
			},
		},
	)

	var g errgroup.Group
	g.Go(func() error {
		log.Printf("tasktrack listening on %s (%s store)", cfg.Server.Addr, cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fail()
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// errors after shutdown stopped the listener are expected
		if err := a.Listen(listenCtx); err != nil && listenCtx.Err() == nil {
			fail()
			return err
		}
		return nil
	})

	code := <-wait
	stopListen()
	if err := g.Wait(); err != nil {
		return 1, err
	}
	return code, nil
}
