package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/friden-zhang/raspi-todo/domain"
)

// TodoFilter narrows ListTodos. A nil Status matches every status; deleted
// rows are excluded unless IncludeDeleted is set.
type TodoFilter struct {
	Status         *string
	IncludeDeleted bool
}

const todoColumns = "id, title, note, status, priority, due_at, tags, category_id, sort_order, created_at, updated_at, deleted"

// ListTodos returns todos matching the filter, ordered the way the board
// renders them: priority descending, due date ascending with undated items
// last, manual sort position, creation time.
func (s *Storage) ListTodos(ctx context.Context, filter TodoFilter) ([]domain.Todo, error) {
	query := "SELECT " + todoColumns + " FROM todos"
	args := []any{}
	where := ""
	if !filter.IncludeDeleted {
		where = " WHERE deleted = 0"
	}
	if filter.Status != nil {
		if where == "" {
			where = " WHERE status = ?"
		} else {
			where += " AND status = ?"
		}
		args = append(args, *filter.Status)
	}
	query += where + `
		ORDER BY
			priority DESC,
			COALESCE(due_at, '9999-12-31 00:00:00') ASC,
			sort_order ASC,
			created_at ASC`

	todos := []domain.Todo{}
	if err := s.db.SelectContext(ctx, &todos, query, args...); err != nil {
		return nil, err
	}
	return todos, nil
}

// GetTodo fetches one todo by id. Soft-deleted rows stay fetchable.
func (s *Storage) GetTodo(ctx context.Context, id string) (domain.Todo, error) {
	var t domain.Todo
	err := s.db.GetContext(ctx, &t, "SELECT "+todoColumns+" FROM todos WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

// CreateTodo inserts a fully populated todo row.
func (s *Storage) CreateTodo(ctx context.Context, t domain.Todo) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO todos (`+todoColumns+`)
		VALUES (:id, :title, :note, :status, :priority, :due_at, :tags, :category_id, :sort_order, :created_at, :updated_at, :deleted)
	`, t)
	return err
}

// SaveTodo overwrites every mutable column of an existing todo.
func (s *Storage) SaveTodo(ctx context.Context, t domain.Todo) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE todos SET
			title = :title, note = :note, status = :status, priority = :priority,
			due_at = :due_at, tags = :tags, category_id = :category_id,
			sort_order = :sort_order, updated_at = :updated_at, deleted = :deleted
		WHERE id = :id
	`, t)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// SoftDeleteTodo flags the row deleted without removing it.
func (s *Storage) SoftDeleteTodo(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE todos SET deleted = 1, updated_at = ? WHERE id = ?",
		time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// ReorderTodos applies the new sort positions in a single transaction.
func (s *Storage) ReorderTodos(ctx context.Context, items []domain.ReorderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, it := range items {
		if _, err := tx.ExecContext(ctx,
			"UPDATE todos SET sort_order = ?, updated_at = ? WHERE id = ?",
			it.SortOrder, now, it.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
