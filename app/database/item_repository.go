package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Fixed-width UTC layout so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// SQLiteItemRepository handles database operations for feed items
type SQLiteItemRepository struct {
	db *DB
}

func NewSQLiteItemRepository(db *DB) *SQLiteItemRepository {
	return &SQLiteItemRepository{db: db}
}

func (r *SQLiteItemRepository) InitSchema(ctx context.Context) error {
	version, dirty, err := RunMigrations(r.db)
	if err != nil {
		return err
	}

	slog.Debug("Database schema ready", "version", version, "dirty", dirty)
	return nil
}

func (r *SQLiteItemRepository) Upsert(ctx context.Context, item Item) error {
	if item.ContentID == "" {
		return fmt.Errorf("failed to upsert item: content id is empty")
	}

	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO feed_items (
			content_id, title, source_name, source_url, published_at,
			image_url, image_source, image_last_checked, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_id) DO UPDATE SET
			title = excluded.title,
			source_name = excluded.source_name,
			source_url = excluded.source_url,
			published_at = excluded.published_at,
			image_url = excluded.image_url,
			image_source = excluded.image_source,
			image_last_checked = excluded.image_last_checked
	`, item.ContentID, item.Title, item.SourceName, item.SourceURL, formatTime(item.PublishedAt),
		nullString(item.ImageURL), imageSourceOrNone(item.ImageSource), nullTime(item.ImageLastChecked),
		formatTime(createdAt))

	if err != nil {
		return fmt.Errorf("failed to upsert item %s: %w", item.ContentID, err)
	}

	return nil
}

func (r *SQLiteItemRepository) ListLatest(ctx context.Context, limit int) ([]Item, error) {
	if limit <= 0 {
		return []Item{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT content_id, title, source_name, source_url, published_at,
		       image_url, image_source, image_last_checked, created_at
		FROM feed_items
		ORDER BY published_at DESC, content_id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0, min(limit, 256))
	for rows.Next() {
		var (
			item                       Item
			publishedAt, createdAt     string
			imageURL, imageLastChecked sql.NullString
		)

		err := rows.Scan(
			&item.ContentID, &item.Title, &item.SourceName, &item.SourceURL, &publishedAt,
			&imageURL, &item.ImageSource, &imageLastChecked, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}

		if item.PublishedAt, err = parseTime(publishedAt); err != nil {
			return nil, fmt.Errorf("invalid published_at for %s: %w", item.ContentID, err)
		}
		if item.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("invalid created_at for %s: %w", item.ContentID, err)
		}
		if imageLastChecked.Valid {
			if item.ImageLastChecked, err = parseTime(imageLastChecked.String); err != nil {
				return nil, fmt.Errorf("invalid image_last_checked for %s: %w", item.ContentID, err)
			}
		}
		item.ImageURL = imageURL.String

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}

func (r *SQLiteItemRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feed_items`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get item count: %w", err)
	}
	return count, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by other tools may carry an offset.
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC(), err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func imageSourceOrNone(source string) string {
	if source == "" {
		return "none"
	}
	return source
}
