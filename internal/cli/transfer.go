package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"tasktrack/internal/app"
	"tasktrack/pkg/transfer"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every task as a JSON document",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file|->",
	Short: "Add the tasks of a JSON export as new tasks",
	Long: `Import reads a document written by export and adds each task as a new task.
Existing tasks are never replaced. Elements that are not JSON objects are skipped; a document
that is not a JSON array is rejected before anything is written.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
}

func runExport(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("output")
	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		data, err := transfer.Export(ctx, a.Repo)
		if err != nil {
			return err
		}
		if out == "" {
			_, err = cmd.OutOrStdout().Write(append(data, '\n'))
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", out)
		return nil
	})
}

func runImport(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read import: %w", err)
	}

	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		res, err := transfer.Import(ctx, a.Repo, data)
		if err != nil {
			if res.Added > 0 {
				return fmt.Errorf("import stopped after %d tasks: %w", res.Added, err)
			}
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	})
}
