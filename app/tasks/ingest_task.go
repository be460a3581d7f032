package tasks

import (
	"context"
	"log/slog"

	"github.com/lysyi3m/provenance-feed/app/database"
	"github.com/lysyi3m/provenance-feed/app/metrics"
	"github.com/lysyi3m/provenance-feed/app/observer"
)

// IngestTask is one full ingestion run over the enabled sources.
type IngestTask struct {
	Task
	sources     SourceProvider
	fetcher     FeedFetcher
	parser      RecordParser
	repo        database.ItemRepository
	obs         observer.Observer
	concurrency int

	Stored int
}

func NewIngestTask(sources SourceProvider, fetcher FeedFetcher, parser RecordParser, repo database.ItemRepository, obs observer.Observer, concurrency int) *IngestTask {
	return &IngestTask{
		Task:        NewTask(TaskTypeIngest),
		sources:     sources,
		fetcher:     fetcher,
		parser:      parser,
		repo:        repo,
		obs:         obs,
		concurrency: concurrency,
	}
}

func (t *IngestTask) Execute(ctx context.Context) error {
	if t.StartedAt == nil {
		t.Start()
	}

	sources := t.sources.GetEnabledSources()
	if len(sources) == 0 {
		slog.Warn("No enabled sources, nothing to ingest", "id", t.ID)
		return nil
	}

	batches := FetchSources(ctx, t.fetcher, t.parser, sources, t.concurrency)

	records := 0
	emptySources := 0
	for _, batch := range batches {
		records += len(batch)
		if len(batch) == 0 {
			emptySources++
		}
	}

	stored, err := Ingest(ctx, t.repo, t.obs, batches)
	t.Stored = stored

	duration := t.GetDuration()
	metrics.IngestDuration.Observe(duration.Seconds())
	switch {
	case err != nil && stored == 0 && records > 0:
		metrics.IngestRuns.WithLabelValues("failure").Inc()
	case err != nil:
		metrics.IngestRuns.WithLabelValues("partial").Inc()
	default:
		metrics.IngestRuns.WithLabelValues("success").Inc()
	}

	slog.Info("Task completed",
		"type", "Ingest",
		"id", t.ID,
		"duration", duration,
		"sources", len(sources),
		"empty_sources", emptySources,
		"records", records,
		"stored", stored,
		"failed", records-stored)

	return err
}
