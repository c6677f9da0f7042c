package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNameRequired = errors.New("name must not be empty")

// Category groups todos. A todo references at most one category; the
// reference is cleared before a category is soft-deleted.
type Category struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Color       *string   `json:"color" db:"color"`
	Description *string   `json:"description" db:"description"`
	SortOrder   int64     `json:"sort_order" db:"sort_order"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
	Deleted     int64     `json:"deleted" db:"deleted"`
}

// CategoryCreate carries the client-settable fields for a new category.
type CategoryCreate struct {
	Name        string  `json:"name"`
	Color       *string `json:"color"`
	Description *string `json:"description"`
	SortOrder   *int64  `json:"sort_order"`
}

// CategoryUpdate supports partial updates; nil fields are left untouched.
type CategoryUpdate struct {
	Name        *string `json:"name"`
	Color       *string `json:"color"`
	Description *string `json:"description"`
	SortOrder   *int64  `json:"sort_order"`
	Deleted     *int64  `json:"deleted"`
}

// Validate checks the create request before it reaches storage.
func (c CategoryCreate) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrNameRequired
	}
	return nil
}

// Validate checks the update request; only set fields are validated.
func (u CategoryUpdate) Validate() error {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return ErrNameRequired
	}
	return nil
}

// NewCategory builds a Category from a validated create request.
func NewCategory(c CategoryCreate) Category {
	now := time.Now().UTC()
	cat := Category{
		ID:          uuid.NewString(),
		Name:        c.Name,
		Color:       c.Color,
		Description: c.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if c.SortOrder != nil {
		cat.SortOrder = *c.SortOrder
	}
	return cat
}

// Apply merges an update into the category and bumps updated_at.
func (c *Category) Apply(u CategoryUpdate) {
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.Color != nil {
		c.Color = u.Color
	}
	if u.Description != nil {
		c.Description = u.Description
	}
	if u.SortOrder != nil {
		c.SortOrder = *u.SortOrder
	}
	if u.Deleted != nil {
		c.Deleted = *u.Deleted
	}
	c.UpdatedAt = time.Now().UTC()
}
