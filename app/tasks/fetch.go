package tasks

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/provenance-feed/app/feed"
	"github.com/lysyi3m/provenance-feed/app/metrics"
)

// FetchSources fetches and parses every source with at most concurrency
// requests in flight. Slot i of the result holds the records of sources[i];
// a source that fails to fetch or parse leaves its slot empty.
func FetchSources(ctx context.Context, fetcher FeedFetcher, parser RecordParser, sources []feed.Source, concurrency int) [][]feed.Record {
	batches := make([][]feed.Record, len(sources))
	if concurrency < 1 {
		concurrency = 1
	}

	// Failures are isolated per source, so goroutines never return an error
	// and a plain errgroup keeps siblings running.
	var g errgroup.Group
	g.SetLimit(concurrency)

	for i, source := range sources {
		g.Go(func() error {
			records, err := fetchSource(ctx, fetcher, parser, source)
			if err != nil {
				metrics.SourceFetchFailures.WithLabelValues(source.ID).Inc()
				slog.Error("Failed to ingest source", "source", source.ID, "url", source.URL, "error", err)
				return nil
			}
			batches[i] = records
			return nil
		})
	}

	g.Wait()

	return batches
}

func fetchSource(ctx context.Context, fetcher FeedFetcher, parser RecordParser, source feed.Source) ([]feed.Record, error) {
	data, err := fetcher.FetchFeed(ctx, source.URL)
	if err != nil {
		return nil, err
	}

	records, _, err := parser.Run(ctx, data, source, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	return records, nil
}
