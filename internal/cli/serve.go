package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tasktrack/internal/app"
	"tasktrack/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the task list every time it changes",
	Long: `Watch attaches to the live view and prints the list whenever it changes, until
interrupted. With a PostgreSQL store, changes made by other processes are picked up too.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	watchCmd.Flags().StringP("query", "q", "", "case-insensitive search over title and description")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	code, err := app.Serve(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	if code != 0 {
		os.Exit(code)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	q, _ := cmd.Flags().GetString("query")
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		go func() {
			if err := a.Listen(ctx); err != nil && ctx.Err() == nil {
				log.Printf("watch: listener stopped: %v", err)
			}
		}()

		a.Engine.SetQuery(q)
		w := cmd.OutOrStdout()
		for tasks := range a.Engine.Watch(ctx) {
			fmt.Fprintf(w, "--- %s (%d tasks) %s\n", a.Engine.State(), len(tasks), time.Now().Format("15:04:05"))
			if err := printTasks(w, tasks); err != nil {
				return err
			}
		}
		return nil
	})
}
