// Package transfer exports tasks to JSON and imports them back.
//
// The document is a JSON array with one object per task:
//
//	{"id": 7, "title": "...", "description": "...", "createdAt": 1700000000000, "dueAt": null, "completed": false}
//
// id and timestamps are integers (timestamps in Unix milliseconds). Import always adds tasks as
// new records: ids and createdAt in the document are ignored and re-minted by the store.
package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"tasktrack/pkg/task"
)

// ErrMalformedDocument is returned by Import when the input is not a JSON array. Nothing is
// written in that case.
var ErrMalformedDocument = errors.New("malformed import document: expected a JSON array of records")

// Snapshotter provides the live list Export reads its single snapshot from.
type Snapshotter interface {
	ObserveAll(ctx context.Context) <-chan []task.Task
}

// Adder receives imported tasks.
type Adder interface {
	Add(ctx context.Context, t *task.Task) (int64, error)
}

// Record is the exported form of a task.
type Record struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	CreatedAt   int64  `json:"createdAt"`
	DueAt       *int64 `json:"dueAt"`
	Completed   bool   `json:"completed"`
}

// Result summarizes an import.
type Result struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// Export encodes the current task list as an indented JSON array.
func Export(ctx context.Context, src Snapshotter) ([]byte, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel() // ends the live sequence after its first snapshot

	tasks, err := task.First(ctx, src.ObserveAll(ctx))
	if err != nil {
		return nil, fmt.Errorf("export snapshot: %w", err)
	}
	return Encode(tasks)
}

// Encode renders tasks as an indented JSON array of records.
func Encode(tasks []task.Task) ([]byte, error) {
	records := make([]Record, 0, len(tasks))
	for _, t := range tasks {
		r := Record{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
			CreatedAt:   t.CreatedAt.UnixMilli(),
			Completed:   t.Completed,
		}
		if t.DueAt != nil {
			due := t.DueAt.UnixMilli()
			r.DueAt = &due
		}
		records = append(records, r)
	}
	return json.MarshalIndent(records, "", "  ")
}

// Import parses data and adds every record as a new task. The whole document is validated
// before the first write. Elements that are not objects are skipped; missing or mistyped
// fields fall back to their zero values. A store error stops the import; the returned Result
// counts what was added before it.
func Import(ctx context.Context, dst Adder, data []byte) (Result, error) {
	tasks, skipped, err := Decode(data)
	if err != nil {
		return Result{}, err
	}

	res := Result{Skipped: skipped}
	for i := range tasks {
		if _, err := dst.Add(ctx, &tasks[i]); err != nil {
			return res, fmt.Errorf("import record %d: %w", i, err)
		}
		res.Added++
	}
	return res, nil
}

// Decode parses an export document into new tasks (no ids, fresh createdAt) and reports how
// many elements were skipped.
func Decode(data []byte) ([]task.Task, int, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if elems == nil {
		// the literal null
		return nil, 0, ErrMalformedDocument
	}

	now := task.Millis(time.Now())
	tasks := make([]task.Task, 0, len(elems))
	skipped := 0
	for _, raw := range elems {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
			skipped++
			continue
		}
		t := task.Task{
			Title:       stringField(fields["title"]),
			Description: stringField(fields["description"]),
			Completed:   boolField(fields["completed"]),
			CreatedAt:   now,
		}
		if due, ok := millisField(fields["dueAt"]); ok {
			d := time.UnixMilli(due)
			t.DueAt = &d
		}
		tasks = append(tasks, t)
	}
	return tasks, skipped, nil
}

func stringField(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// boolField accepts true/false and their string forms.
func boolField(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return b
	}
	if s := stringField(raw); s != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		return err == nil && b
	}
	return false
}

// Bounds of a due date in Unix milliseconds: years 0001 through 9999.
const (
	minMillis = -62135596800000
	maxMillis = 253402300799999
)

// millisField reads a Unix-millisecond timestamp. Values outside years 0001-9999 count as
// invalid.
func millisField(raw json.RawMessage) (int64, bool) {
	ms, ok := intField(raw)
	if !ok || ms < minMillis || ms > maxMillis {
		return 0, false
	}
	return ms, true
}

// intField accepts integral numbers and numeric strings. null, absent and anything else
// report false.
func intField(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		if v, err := n.Int64(); err == nil {
			return v, true
		}
		// float64(math.MaxInt64) rounds up to 2^63, hence the strict upper bound
		if f, err := n.Float64(); err == nil && f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return int64(f), true
		}
		return 0, false
	}
	if s := strings.TrimSpace(stringField(raw)); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}
