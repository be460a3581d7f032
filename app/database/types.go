package database

import (
	"time"
)

// Item is a stored feed item keyed by ContentID. CreatedAt is set on first
// insert and never overwritten.
type Item struct {
	ContentID        string
	Title            string
	SourceName       string
	SourceURL        string
	PublishedAt      time.Time
	ImageURL         string // empty when no image was found
	ImageSource      string // rss, page_meta or none
	ImageLastChecked time.Time
	CreatedAt        time.Time
}
