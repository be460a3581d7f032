package database

import (
	"context"
)

// ItemRepository is the storage contract used by ingestion and the API.
// ListLatest orders by publication time, newest first, and returns an empty
// slice when limit <= 0.
type ItemRepository interface {
	InitSchema(ctx context.Context) error
	Upsert(ctx context.Context, item Item) error
	ListLatest(ctx context.Context, limit int) ([]Item, error)
	Count(ctx context.Context) (int, error)
}

var (
	_ ItemRepository = (*SQLiteItemRepository)(nil)
	_ ItemRepository = (*MemoryItemRepository)(nil)
)
