package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryItemRepository keeps items in process memory. It is used when no
// database path is configured and in tests.
type MemoryItemRepository struct {
	mu    sync.RWMutex
	items map[string]Item
}

func NewMemoryItemRepository() *MemoryItemRepository {
	return &MemoryItemRepository{items: make(map[string]Item)}
}

func (r *MemoryItemRepository) InitSchema(ctx context.Context) error {
	return nil
}

func (r *MemoryItemRepository) Upsert(ctx context.Context, item Item) error {
	if item.ContentID == "" {
		return fmt.Errorf("failed to upsert item: content id is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.items[item.ContentID]; ok {
		item.CreatedAt = existing.CreatedAt
	} else if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	item.PublishedAt = item.PublishedAt.UTC()
	item.ImageSource = imageSourceOrNone(item.ImageSource)

	r.items[item.ContentID] = item
	return nil
}

func (r *MemoryItemRepository) ListLatest(ctx context.Context, limit int) ([]Item, error) {
	if limit <= 0 {
		return []Item{}, nil
	}

	r.mu.RLock()
	items := make([]Item, 0, len(r.items))
	for _, item := range r.items {
		items = append(items, item)
	}
	r.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].PublishedAt.Equal(items[j].PublishedAt) {
			return items[i].PublishedAt.After(items[j].PublishedAt)
		}
		return items[i].ContentID < items[j].ContentID
	})

	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (r *MemoryItemRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items), nil
}
