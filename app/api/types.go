package api

import (
	"time"

	"github.com/lysyi3m/provenance-feed/app/database"
	"github.com/lysyi3m/provenance-feed/app/feed"
	"github.com/lysyi3m/provenance-feed/app/tasks"
)

const (
	defaultFeedLimit = 50
	maxFeedLimit     = 200
)

type GeneratorInterface interface {
	Run(channel feed.Channel, items []database.Item) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type SourceCounter interface {
	GetSourceCount() int
}

type Handler struct {
	itemRepo    database.ItemRepository
	generator   GeneratorInterface
	sourceCache SourceCounter
	scheduler   tasks.TaskSchedulerInterface
	version     string
}

// FeedItemResponse is the JSON shape of a stored item.
type FeedItemResponse struct {
	ContentID        string     `json:"content_id"`
	Title            string     `json:"title"`
	SourceName       string     `json:"source_name"`
	SourceURL        string     `json:"source_url"`
	PublishedAt      time.Time  `json:"published_at"`
	ImageURL         *string    `json:"image_url"`
	ImageSource      string     `json:"image_source"`
	ImageLastChecked *time.Time `json:"image_last_checked"`
}

func newFeedItemResponse(item database.Item) FeedItemResponse {
	resp := FeedItemResponse{
		ContentID:   item.ContentID,
		Title:       item.Title,
		SourceName:  item.SourceName,
		SourceURL:   item.SourceURL,
		PublishedAt: item.PublishedAt.UTC(),
		ImageSource: item.ImageSource,
	}

	if item.ImageURL != "" {
		imageURL := item.ImageURL
		resp.ImageURL = &imageURL
	}
	if !item.ImageLastChecked.IsZero() {
		checked := item.ImageLastChecked.UTC()
		resp.ImageLastChecked = &checked
	}
	if resp.ImageSource == "" {
		resp.ImageSource = string(feed.ImageSourceNone)
	}

	return resp
}
