package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/friden-zhang/raspi-todo/domain"
)

// ErrNotFound is returned when no row matches the requested id.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS categories (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	color TEXT,
	description TEXT,
	sort_order INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	deleted INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS todos (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	note TEXT,
	status TEXT NOT NULL,
	priority INTEGER NOT NULL,
	due_at DATETIME,
	tags TEXT,
	category_id TEXT,
	sort_order INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	deleted INTEGER NOT NULL,
	FOREIGN KEY (category_id) REFERENCES categories(id)
);
`

// Seeded on first start so the board is not an empty wall of grey.
var defaultCategories = []struct {
	name, color, description string
}{
	{"General", "#6B7280", "General tasks and items"},
	{"Work", "#3B82F6", "Work-related tasks"},
	{"Personal", "#EF4444", "Personal tasks and reminders"},
	{"Shopping", "#10B981", "Shopping lists and items"},
	{"Health", "#F59E0B", "Health and fitness related"},
}

// Storage provides access to the SQLite database.
type Storage struct {
	db *sqlx.DB
}

// New opens the database at dsn, applies the schema and seeds default
// categories when the table is empty.
func New(dsn string) (*Storage, error) {
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite locks the whole file per writer; a single connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.seedCategories(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Ping verifies the database connection, used by the health endpoint.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying database handle.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) seedCategories(ctx context.Context) error {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM categories WHERE deleted = 0"); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, dc := range defaultCategories {
		color := dc.color
		desc := dc.description
		cat := domain.NewCategory(domain.CategoryCreate{
			Name:        dc.name,
			Color:       &color,
			Description: &desc,
		})
		cat.CreatedAt = now
		cat.UpdatedAt = now
		if err := s.CreateCategory(ctx, cat); err != nil {
			return err
		}
	}
	return nil
}
