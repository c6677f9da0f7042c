package api

import (
	"context"

	"github.com/friden-zhang/raspi-todo/domain"
	"github.com/friden-zhang/raspi-todo/realtime"
	"github.com/friden-zhang/raspi-todo/storage"
)

// Store abstracts persistence for handlers.
type Store interface {
	Ping(ctx context.Context) error

	ListTodos(ctx context.Context, filter storage.TodoFilter) ([]domain.Todo, error)
	GetTodo(ctx context.Context, id string) (domain.Todo, error)
	CreateTodo(ctx context.Context, t domain.Todo) error
	SaveTodo(ctx context.Context, t domain.Todo) error
	SoftDeleteTodo(ctx context.Context, id string) error
	ReorderTodos(ctx context.Context, items []domain.ReorderItem) error

	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategory(ctx context.Context, id string) (domain.Category, error)
	CreateCategory(ctx context.Context, c domain.Category) error
	SaveCategory(ctx context.Context, c domain.Category) error
	SoftDeleteCategory(ctx context.Context, id string) error
}

// Notifier fans a change event out to connected clients. Implementations are
// fire-and-forget; a failed delivery never reaches the mutating request.
type Notifier interface {
	Broadcast(ev realtime.Event)
}
