package feed

import (
	"time"
)

type ImageSource string

const (
	ImageSourceRSS      ImageSource = "rss"
	ImageSourcePageMeta ImageSource = "page_meta"
	ImageSourceNone     ImageSource = "none"
)

// Source describes one configured upstream feed.
type Source struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Enabled *bool  `yaml:"enabled"`
}

func (s Source) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Record is a normalized feed entry ready for storage. ImageURL is empty when
// no image was found.
type Record struct {
	ContentID        string
	Title            string
	SourceName       string
	SourceURL        string
	PublishedAt      time.Time
	ImageURL         string
	ImageSource      ImageSource
	ImageLastChecked time.Time
}

type ImageResult struct {
	URL       string
	Source    ImageSource
	CheckedAt time.Time
}

// Stats summarizes a single Parser.Run.
type Stats struct {
	Entries int
	Kept    int
	Skipped int
}
