package services

import (
	"context"
	"time"

	"famfinance/internal/cache"
	"famfinance/internal/core"
)

const allCategoriesKey = "all"

// CategoryCatalog serves the seeded category list from memory. Categories
// only change with migrations, so entries just expire after ttl.
type CategoryCatalog struct {
	store  Store
	lru    *cache.LRUCache[[]core.Category]
	loader *cache.Loader[[]core.Category]
}

func NewCategoryCatalog(store Store, ttl time.Duration) *CategoryCatalog {
	lru := cache.NewLRUCache[[]core.Category](1, ttl)
	return &CategoryCatalog{store: store, lru: lru, loader: cache.NewLoader[[]core.Category](lru)}
}

// Cache exposes the backing cache for registration with a cache.Janitor.
func (c *CategoryCatalog) Cache() cache.Cleaner {
	return c.lru
}

func (c *CategoryCatalog) List(ctx context.Context) ([]core.Category, error) {
	return c.loader.Get(allCategoriesKey, func() ([]core.Category, error) {
		return c.store.Queries().ListCategories(ctx)
	})
}

// Get returns one category or core.ErrCategoryNotFound.
func (c *CategoryCatalog) Get(ctx context.Context, id int64) (core.Category, error) {
	cats, err := c.List(ctx)
	if err != nil {
		return core.Category{}, err
	}
	for _, cat := range cats {
		if cat.ID == id {
			return cat, nil
		}
	}
	return core.Category{}, core.ErrCategoryNotFound
}

// Invalidate drops the cached list.
func (c *CategoryCatalog) Invalidate() {
	c.loader.Forget(allCategoriesKey)
}
