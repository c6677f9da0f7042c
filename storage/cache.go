package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/friden-zhang/raspi-todo/domain"
)

const (
	todosCacheKey      = "cache:todos"
	categoriesCacheKey = "cache:categories"
)

// Cache wraps a Storage instance with Redis-backed caching for the default
// listings. Filtered listings always hit SQLite; every mutation evicts.
type Cache struct {
	*Storage
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base *Storage, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{Storage: base, redis: client, ttl: ttl}
}

func (c *Cache) ListTodos(ctx context.Context, filter TodoFilter) ([]domain.Todo, error) {
	if filter.Status != nil || filter.IncludeDeleted {
		return c.Storage.ListTodos(ctx, filter)
	}
	var todos []domain.Todo
	if c.loadCached(ctx, todosCacheKey, &todos) {
		return todos, nil
	}
	todos, err := c.Storage.ListTodos(ctx, filter)
	if err != nil {
		return nil, err
	}
	c.storeCached(ctx, todosCacheKey, todos)
	return todos, nil
}

func (c *Cache) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var cats []domain.Category
	if c.loadCached(ctx, categoriesCacheKey, &cats) {
		return cats, nil
	}
	cats, err := c.Storage.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	c.storeCached(ctx, categoriesCacheKey, cats)
	return cats, nil
}

func (c *Cache) CreateTodo(ctx context.Context, t domain.Todo) error {
	if err := c.Storage.CreateTodo(ctx, t); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

func (c *Cache) SaveTodo(ctx context.Context, t domain.Todo) error {
	if err := c.Storage.SaveTodo(ctx, t); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

func (c *Cache) SoftDeleteTodo(ctx context.Context, id string) error {
	if err := c.Storage.SoftDeleteTodo(ctx, id); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

func (c *Cache) ReorderTodos(ctx context.Context, items []domain.ReorderItem) error {
	if err := c.Storage.ReorderTodos(ctx, items); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

func (c *Cache) CreateCategory(ctx context.Context, cat domain.Category) error {
	if err := c.Storage.CreateCategory(ctx, cat); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

func (c *Cache) SaveCategory(ctx context.Context, cat domain.Category) error {
	if err := c.Storage.SaveCategory(ctx, cat); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

func (c *Cache) SoftDeleteCategory(ctx context.Context, id string) error {
	if err := c.Storage.SoftDeleteCategory(ctx, id); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

func (c *Cache) loadCached(ctx context.Context, key string, out any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) storeCached(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, todosCacheKey, categoriesCacheKey).Result()
}
