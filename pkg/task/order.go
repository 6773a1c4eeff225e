package task

import "sort"

// orderBy is the SQL ordering shared by every store query. It must agree with Less.
const orderBy = `ORDER BY completed ASC, due_at IS NULL, due_at ASC, created_at DESC, id DESC`

// Less reports whether a sorts before b in a materialized list: open tasks first, then tasks
// with a due date (earliest first), then most recently created.
func Less(a, b Task) bool {
	if a.Completed != b.Completed {
		return !a.Completed
	}
	if (a.DueAt == nil) != (b.DueAt == nil) {
		return a.DueAt != nil
	}
	if a.DueAt != nil && !a.DueAt.Equal(*b.DueAt) {
		return a.DueAt.Before(*b.DueAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// Sort orders tasks in place according to Less.
func Sort(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool { return Less(tasks[i], tasks[j]) })
}

// Sorted reports whether tasks already satisfy the list ordering.
func Sorted(tasks []Task) bool {
	for i := 1; i < len(tasks); i++ {
		if Less(tasks[i], tasks[i-1]) {
			return false
		}
	}
	return true
}
