package tasks

import (
	"context"
	"time"

	"github.com/lysyi3m/provenance-feed/app/feed"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application and the API to run ingestion in the background.
//
//	scheduler := NewScheduler(newIngestTask, interval, runTimeout, onStartup)
//	scheduler.Start()
//	defer scheduler.Stop()
//	id, err := scheduler.TriggerIngest()
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	TriggerIngest() (string, error)
}

type FeedFetcher interface {
	FetchFeed(ctx context.Context, url string) ([]byte, error)
}

type RecordParser interface {
	Run(ctx context.Context, data []byte, source feed.Source, now time.Time) ([]feed.Record, feed.Stats, error)
}

type SourceProvider interface {
	GetEnabledSources() []feed.Source
}

var (
	_ FeedFetcher    = (*feed.Fetcher)(nil)
	_ RecordParser   = (*feed.Parser)(nil)
	_ SourceProvider = (*feed.SourceCache)(nil)
)
