package domain

import "sort"

// Board buckets todos the way the web client renders them: Active holds
// todo/doing items, Done and Archived their respective statuses, and Deleted
// everything whose soft-delete flag is set regardless of status.
type Board struct {
	Active   []Todo `json:"active"`
	Done     []Todo `json:"done"`
	Archived []Todo `json:"archived"`
	Deleted  []Todo `json:"deleted"`
}

// GroupTodos splits todos into board buckets and sorts each bucket with
// SortTodos. The input slice is not modified.
func GroupTodos(todos []Todo) Board {
	b := Board{
		Active:   []Todo{},
		Done:     []Todo{},
		Archived: []Todo{},
		Deleted:  []Todo{},
	}
	for _, t := range todos {
		switch {
		case t.Deleted != 0:
			b.Deleted = append(b.Deleted, t)
		case t.Status == StatusArchived:
			b.Archived = append(b.Archived, t)
		case t.Status == StatusDone:
			b.Done = append(b.Done, t)
		default:
			b.Active = append(b.Active, t)
		}
	}
	SortTodos(b.Active)
	SortTodos(b.Done)
	SortTodos(b.Archived)
	SortTodos(b.Deleted)
	return b
}

// SortTodos orders todos in place: priority descending, then due date
// ascending with undated items last, then manual sort position, then
// creation time. Matches the listing order served by storage.
func SortTodos(todos []Todo) {
	sort.SliceStable(todos, func(i, j int) bool {
		a, b := todos[i], todos[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if c := compareDue(a, b); c != 0 {
			return c < 0
		}
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func compareDue(a, b Todo) int {
	switch {
	case a.DueAt == nil && b.DueAt == nil:
		return 0
	case a.DueAt == nil:
		return 1
	case b.DueAt == nil:
		return -1
	case a.DueAt.Before(*b.DueAt):
		return -1
	case b.DueAt.Before(*a.DueAt):
		return 1
	}
	return 0
}
