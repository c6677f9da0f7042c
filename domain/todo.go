package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Todo statuses. A todo moves freely between them; archived keeps the row out
// of the active board without deleting it.
const (
	StatusTodo     = "todo"
	StatusDoing    = "doing"
	StatusDone     = "done"
	StatusArchived = "archived"
)

const (
	MinPriority     = 0
	MaxPriority     = 3
	DefaultPriority = 1
)

var (
	ErrTitleRequired   = errors.New("title must not be empty")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrInvalidPriority = errors.New("priority out of range")
)

// Todo is a single todo item. Deleted is an int flag (0/1) rather than a bool
// so it round-trips through SQLite unchanged.
type Todo struct {
	ID         string     `json:"id" db:"id"`
	Title      string     `json:"title" db:"title"`
	Note       *string    `json:"note" db:"note"`
	Status     string     `json:"status" db:"status"`
	Priority   int64      `json:"priority" db:"priority"`
	DueAt      *time.Time `json:"due_at" db:"due_at"`
	Tags       *string    `json:"tags" db:"tags"`
	CategoryID *string    `json:"category_id" db:"category_id"`
	SortOrder  int64      `json:"sort_order" db:"sort_order"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
	Deleted    int64      `json:"deleted" db:"deleted"`
}

// TodoCreate carries the client-settable fields for a new todo.
type TodoCreate struct {
	Title      string     `json:"title"`
	Note       *string    `json:"note"`
	Priority   *int64     `json:"priority"`
	DueAt      *time.Time `json:"due_at"`
	Tags       *string    `json:"tags"`
	CategoryID *string    `json:"category_id"`
}

// TodoUpdate supports partial updates; nil fields are left untouched.
type TodoUpdate struct {
	Title      *string    `json:"title"`
	Note       *string    `json:"note"`
	Status     *string    `json:"status"`
	Priority   *int64     `json:"priority"`
	DueAt      *time.Time `json:"due_at"`
	Tags       *string    `json:"tags"`
	CategoryID *string    `json:"category_id"`
	SortOrder  *int64     `json:"sort_order"`
	Deleted    *int64     `json:"deleted"`
}

// ReorderItem assigns a new sort position to one todo.
type ReorderItem struct {
	ID        string `json:"id"`
	SortOrder int64  `json:"sort_order"`
}

// ValidStatus reports whether s is one of the known todo statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusTodo, StatusDoing, StatusDone, StatusArchived:
		return true
	}
	return false
}

// Validate checks the create request before it reaches storage.
func (c TodoCreate) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return ErrTitleRequired
	}
	if c.Priority != nil && (*c.Priority < MinPriority || *c.Priority > MaxPriority) {
		return ErrInvalidPriority
	}
	return nil
}

// Validate checks the update request; only set fields are validated.
func (u TodoUpdate) Validate() error {
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return ErrTitleRequired
	}
	if u.Status != nil && !ValidStatus(*u.Status) {
		return ErrInvalidStatus
	}
	if u.Priority != nil && (*u.Priority < MinPriority || *u.Priority > MaxPriority) {
		return ErrInvalidPriority
	}
	return nil
}

// NewTodo builds a Todo from a validated create request, filling in id,
// defaults and timestamps.
func NewTodo(c TodoCreate) Todo {
	now := time.Now().UTC()
	t := Todo{
		ID:         uuid.NewString(),
		Title:      c.Title,
		Note:       c.Note,
		Status:     StatusTodo,
		Priority:   DefaultPriority,
		DueAt:      c.DueAt,
		Tags:       c.Tags,
		CategoryID: c.CategoryID,
		SortOrder:  0,
		CreatedAt:  now,
		UpdatedAt:  now,
		Deleted:    0,
	}
	if c.Priority != nil {
		t.Priority = *c.Priority
	}
	return t
}

// Apply merges an update into the todo and bumps updated_at.
func (t *Todo) Apply(u TodoUpdate) {
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Note != nil {
		t.Note = u.Note
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.DueAt != nil {
		t.DueAt = u.DueAt
	}
	if u.Tags != nil {
		t.Tags = u.Tags
	}
	if u.CategoryID != nil {
		t.CategoryID = u.CategoryID
	}
	if u.SortOrder != nil {
		t.SortOrder = *u.SortOrder
	}
	if u.Deleted != nil {
		t.Deleted = *u.Deleted
	}
	t.UpdatedAt = time.Now().UTC()
}
