package tasks

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lysyi3m/provenance-feed/app/database"
	"github.com/lysyi3m/provenance-feed/app/feed"
	"github.com/lysyi3m/provenance-feed/app/metrics"
	"github.com/lysyi3m/provenance-feed/app/observer"
)

// Ingest persists every record of every batch, in order, and hands each
// successfully stored item to obs. A failed upsert is logged and skipped;
// the record never reaches the observer. It returns the number of stored
// records together with the joined upsert errors.
func Ingest(ctx context.Context, repo database.ItemRepository, obs observer.Observer, batches [][]feed.Record) (int, error) {
	var (
		stored int
		errs   []error
	)

	for _, batch := range batches {
		for _, record := range batch {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				return stored, errors.Join(errs...)
			}

			item := toItem(record)
			if err := repo.Upsert(ctx, item); err != nil {
				metrics.ItemStoreFailures.Inc()
				slog.Error("Failed to store item", "content_id", item.ContentID, "error", err)
				errs = append(errs, err)
				continue
			}

			stored++
			metrics.ItemsStored.Inc()
			observer.SafeObserve(obs, item)
		}
	}

	return stored, errors.Join(errs...)
}

func toItem(record feed.Record) database.Item {
	return database.Item{
		ContentID:        record.ContentID,
		Title:            record.Title,
		SourceName:       record.SourceName,
		SourceURL:        record.SourceURL,
		PublishedAt:      record.PublishedAt,
		ImageURL:         record.ImageURL,
		ImageSource:      string(record.ImageSource),
		ImageLastChecked: record.ImageLastChecked,
	}
}
