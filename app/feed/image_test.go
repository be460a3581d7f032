package feed

import (
	"context"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

func TestExtractFeedImagePrecedence(t *testing.T) {
	tests := []struct {
		name     string
		item     *gofeed.Item
		expected string
	}{
		{
			name:     "nil item",
			item:     nil,
			expected: "",
		},
		{
			name: "media content before thumbnail",
			item: &gofeed.Item{
				Extensions: ext.Extensions{"media": {
					"thumbnail": {{Attrs: map[string]string{"url": "https://cdn.example.com/thumb.jpg"}}},
					"content":   {{Attrs: map[string]string{"url": "https://cdn.example.com/content.jpg"}}},
				}},
			},
			expected: "https://cdn.example.com/content.jpg",
		},
		{
			name: "non-http media is ignored",
			item: &gofeed.Item{
				Extensions: ext.Extensions{"media": {
					"content":   {{Attrs: map[string]string{"url": "/relative.jpg"}}},
					"thumbnail": {{Attrs: map[string]string{"url": "https://cdn.example.com/thumb.jpg"}}},
				}},
			},
			expected: "https://cdn.example.com/thumb.jpg",
		},
		{
			name: "media group",
			item: &gofeed.Item{
				Extensions: ext.Extensions{"media": {
					"group": {{Children: map[string][]ext.Extension{
						"content": {{Attrs: map[string]string{"url": "https://cdn.example.com/group.jpg"}}},
					}}},
				}},
			},
			expected: "https://cdn.example.com/group.jpg",
		},
		{
			name: "image enclosure",
			item: &gofeed.Item{
				Enclosures: []*gofeed.Enclosure{
					{URL: "https://cdn.example.com/audio.mp3", Type: "audio/mpeg"},
					{URL: "https://cdn.example.com/photo.png", Type: "IMAGE/PNG"},
				},
				Image: &gofeed.Image{URL: "https://cdn.example.com/entry.jpg"},
			},
			expected: "https://cdn.example.com/photo.png",
		},
		{
			name: "entry image",
			item: &gofeed.Item{
				Image: &gofeed.Image{URL: "https://cdn.example.com/entry.jpg"},
			},
			expected: "https://cdn.example.com/entry.jpg",
		},
		{
			name: "itunes image",
			item: &gofeed.Item{
				ITunesExt: &ext.ITunesItemExtension{Image: "https://cdn.example.com/itunes.jpg"},
			},
			expected: "https://cdn.example.com/itunes.jpg",
		},
		{
			name: "inline body image is not an entry image",
			item: &gofeed.Item{
				Description: `<p><img src="https://example.com/inline.jpg?a=1&amp;b=2"></p>`,
				Image:       &gofeed.Image{URL: "https://example.com/inline.jpg?a=1&b=2"},
			},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractFeedImage(tt.item)
			if got != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, got)
			}
		})
	}
}

func TestImageResolverWithoutPageFetcher(t *testing.T) {
	now := time.Date(2025, 1, 1, 13, 0, 0, 0, time.FixedZone("CET", 3600))

	result := NewImageResolver(nil).Resolve(context.Background(), &gofeed.Item{}, "https://example.com/a", now)

	if result.Source != ImageSourceNone || result.URL != "" {
		t.Errorf("Expected no image, got %+v", result)
	}
	if !result.CheckedAt.Equal(now) || result.CheckedAt.Location() != time.UTC {
		t.Errorf("Expected checked at %v in UTC, got %v", now.UTC(), result.CheckedAt)
	}
}

func TestImageResolverTwitterOnlyIsResolved(t *testing.T) {
	fetcher := &stubPageFetcher{body: `<html><head><meta name="twitter:image" content="/img/t.png"></head></html>`}

	result := NewImageResolver(fetcher).Resolve(context.Background(), &gofeed.Item{}, "https://example.com/news/story", testNow)

	if result.URL != "https://example.com/img/t.png" {
		t.Errorf("Expected resolved twitter image, got '%s'", result.URL)
	}
	if result.Source != ImageSourcePageMeta {
		t.Errorf("Expected image source 'page_meta', got '%s'", result.Source)
	}
}
