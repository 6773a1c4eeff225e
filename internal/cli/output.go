package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"tasktrack/pkg/task"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTasks(w io.Writer, tasks []task.Task) error {
	if format == "short" {
		printShortTasks(w, tasks)
		return nil
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	return printJSON(w, tasks)
}

// printShortTasks prints one line per task: "[x] #12 title (due 2026-03-01)".
func printShortTasks(w io.Writer, tasks []task.Task) {
	for _, t := range tasks {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		line := fmt.Sprintf("[%s] #%d %s", mark, t.ID, t.Title)
		if t.DueAt != nil {
			line += fmt.Sprintf(" (due %s)", t.DueAt.Format("2006-01-02 15:04"))
		}
		if t.Description != "" {
			line += " - " + truncate(t.Description, 60)
		}
		fmt.Fprintln(w, line)
	}
}

// truncate cuts s to n characters, never inside a multibyte rune.
func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// parseDue accepts RFC 3339, "2006-01-02 15:04" and "2006-01-02" (local time). Empty means
// no due date.
func parseDue(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid due date %q (want YYYY-MM-DD, \"YYYY-MM-DD HH:MM\" or RFC 3339)", s)
}
