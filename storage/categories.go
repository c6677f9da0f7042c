package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/friden-zhang/raspi-todo/domain"
)

const categoryColumns = "id, name, color, description, sort_order, created_at, updated_at, deleted"

// ListCategories returns all live categories ordered by sort position, then name.
func (s *Storage) ListCategories(ctx context.Context) ([]domain.Category, error) {
	cats := []domain.Category{}
	err := s.db.SelectContext(ctx, &cats,
		"SELECT "+categoryColumns+" FROM categories WHERE deleted = 0 ORDER BY sort_order ASC, name ASC")
	if err != nil {
		return nil, err
	}
	return cats, nil
}

// GetCategory fetches one category by id, including soft-deleted rows.
func (s *Storage) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	var c domain.Category
	err := s.db.GetContext(ctx, &c, "SELECT "+categoryColumns+" FROM categories WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

// CreateCategory inserts a fully populated category row.
func (s *Storage) CreateCategory(ctx context.Context, c domain.Category) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO categories (`+categoryColumns+`)
		VALUES (:id, :name, :color, :description, :sort_order, :created_at, :updated_at, :deleted)
	`, c)
	return err
}

// SaveCategory overwrites every mutable column of an existing category.
func (s *Storage) SaveCategory(ctx context.Context, c domain.Category) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE categories SET
			name = :name, color = :color, description = :description,
			sort_order = :sort_order, updated_at = :updated_at, deleted = :deleted
		WHERE id = :id
	`, c)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// SoftDeleteCategory clears the category reference on every todo pointing at
// it, then flags the category deleted. Both steps commit atomically so a todo
// never references a deleted category.
func (s *Storage) SoftDeleteCategory(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		"UPDATE todos SET category_id = NULL, updated_at = ? WHERE category_id = ?",
		now, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		"UPDATE categories SET deleted = 1, updated_at = ? WHERE id = ?",
		now, id)
	if err != nil {
		return err
	}
	if err := mustAffect(res); err != nil {
		return err
	}
	return tx.Commit()
}
