package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tasktrack/internal/app"
	"tasktrack/pkg/task"
)

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a task",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAdd,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, optionally filtered by a search term",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change a task's title, description or due date",
	Args:  cobra.ExactArgs(1),
	RunE:  runEdit,
}

var toggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Flip a task between open and completed",
	Args:  cobra.ExactArgs(1),
	RunE:  runToggle,
}

var rmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a task",
	Args:    cobra.ExactArgs(1),
	RunE:    runRm,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every task",
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

func init() {
	addCmd.Flags().StringP("description", "d", "", "task description")
	addCmd.Flags().String("due", "", "due date (YYYY-MM-DD, \"YYYY-MM-DD HH:MM\" or RFC 3339)")

	listCmd.Flags().StringP("query", "q", "", "case-insensitive search over title and description")

	editCmd.Flags().StringP("title", "t", "", "new title")
	editCmd.Flags().StringP("description", "d", "", "new description")
	editCmd.Flags().String("due", "", "new due date")
	editCmd.Flags().Bool("no-due", false, "remove the due date")

	clearCmd.Flags().Bool("yes", false, "confirm deleting every task")
}

func runAdd(cmd *cobra.Command, args []string) error {
	desc, _ := cmd.Flags().GetString("description")
	dueFlag, _ := cmd.Flags().GetString("due")
	due, err := parseDue(dueFlag)
	if err != nil {
		return err
	}
	title := strings.Join(args, " ")

	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		id, err := a.Engine.Add(ctx, title, desc, due)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"id": id})
	})
}

func runList(cmd *cobra.Command, args []string) error {
	q, _ := cmd.Flags().GetString("query")
	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		tasks, err := snapshot(ctx, a, q)
		if err != nil {
			return err
		}
		return printTasks(cmd.OutOrStdout(), tasks)
	})
}

func runEdit(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if !flags.Changed("title") && !flags.Changed("description") && !flags.Changed("due") && !flags.Changed("no-due") {
		return fmt.Errorf("nothing to change: pass --title, --description, --due or --no-due")
	}

	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		t, err := findTask(ctx, a, id)
		if err != nil {
			return err
		}
		if flags.Changed("title") {
			t.Title, _ = flags.GetString("title")
			if strings.TrimSpace(t.Title) == "" {
				return fmt.Errorf("%w: title must not be blank", task.ErrInvalid)
			}
		}
		if flags.Changed("description") {
			t.Description, _ = flags.GetString("description")
		}
		if flags.Changed("due") {
			s, _ := flags.GetString("due")
			if t.DueAt, err = parseDue(s); err != nil {
				return err
			}
		}
		if noDue, _ := flags.GetBool("no-due"); noDue {
			t.DueAt = nil
		}
		if err := a.Engine.Update(ctx, t); err != nil {
			return err
		}
		return printTasks(cmd.OutOrStdout(), []task.Task{t})
	})
}

func runToggle(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		t, err := findTask(ctx, a, id)
		if err != nil {
			return err
		}
		updated, err := a.Engine.ToggleComplete(ctx, t)
		if err != nil {
			return err
		}
		return printTasks(cmd.OutOrStdout(), []task.Task{updated})
	})
}

func runRm(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		if err := a.Engine.Delete(ctx, task.Task{ID: id}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %d\n", id)
		return nil
	})
}

func runClear(cmd *cobra.Command, args []string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return fmt.Errorf("refusing to delete every task without --yes")
	}
	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		if err := a.Engine.DeleteAll(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Deleted all tasks")
		return nil
	})
}

// snapshot reads the current list once. A blank term lists everything.
func snapshot(ctx context.Context, a *app.App, term string) ([]task.Task, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if strings.TrimSpace(term) == "" {
		return task.First(ctx, a.Repo.ObserveAll(ctx))
	}
	return task.First(ctx, a.Repo.ObserveFiltered(ctx, strings.TrimSpace(term)))
}

func findTask(ctx context.Context, a *app.App, id int64) (task.Task, error) {
	return a.Repo.Get(ctx, id)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", s)
	}
	return id, nil
}
