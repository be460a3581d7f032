package feed

import (
	"context"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

type PageFetcher interface {
	FetchPage(ctx context.Context, url string) ([]byte, string, error)
}

// ImageResolver picks one representative image per entry. Feed-provided
// images win; the article page is only fetched when the feed has none.
type ImageResolver struct {
	pageFetcher PageFetcher
}

// NewImageResolver returns a resolver. A nil pageFetcher disables the page lookup.
func NewImageResolver(pageFetcher PageFetcher) *ImageResolver {
	return &ImageResolver{pageFetcher: pageFetcher}
}

func (r *ImageResolver) Resolve(ctx context.Context, item *gofeed.Item, canonicalURL string, now time.Time) ImageResult {
	result := ImageResult{Source: ImageSourceNone, CheckedAt: now.UTC()}

	if imageURL := ExtractFeedImage(item); imageURL != "" {
		result.URL = imageURL
		result.Source = ImageSourceRSS
		return result
	}

	if r == nil || r.pageFetcher == nil {
		return result
	}

	body, contentType, err := r.pageFetcher.FetchPage(ctx, canonicalURL)
	if err != nil {
		slog.Debug("Page meta fetch failed", "url", canonicalURL, "error", err)
		return result
	}

	if imageURL := ExtractMetaImage(body, contentType, canonicalURL); imageURL != "" {
		result.URL = imageURL
		result.Source = ImageSourcePageMeta
	}

	return result
}

// ExtractFeedImage looks at media elements, then image enclosures, then the
// entry image. Only absolute http(s) URLs are accepted.
func ExtractFeedImage(item *gofeed.Item) string {
	if item == nil {
		return ""
	}

	media := item.Extensions["media"]
	for _, name := range []string{"content", "thumbnail"} {
		for _, element := range mediaElements(media, name) {
			if url := element.Attrs["url"]; isHTTPURL(url) {
				return strings.TrimSpace(url)
			}
		}
	}

	for _, enclosure := range item.Enclosures {
		if enclosure == nil {
			continue
		}
		if strings.HasPrefix(strings.ToLower(enclosure.Type), "image/") && isHTTPURL(enclosure.URL) {
			return strings.TrimSpace(enclosure.URL)
		}
	}

	if item.ITunesExt != nil && isHTTPURL(item.ITunesExt.Image) {
		return strings.TrimSpace(item.ITunesExt.Image)
	}

	if item.Image != nil && isHTTPURL(item.Image.URL) && !inMarkup(item, item.Image.URL) {
		return strings.TrimSpace(item.Image.URL)
	}

	return ""
}

// inMarkup reports whether url appears in the entry body. gofeed fills
// Item.Image from inline <img> tags, which are not an entry-level image.
func inMarkup(item *gofeed.Item, url string) bool {
	for _, body := range []string{item.Description, item.Content} {
		if strings.Contains(body, url) || strings.Contains(body, html.EscapeString(url)) {
			return true
		}
	}
	return false
}

// mediaElements returns top-level media:<name> elements followed by those
// nested in media:group.
func mediaElements(media map[string][]ext.Extension, name string) []ext.Extension {
	elements := append([]ext.Extension(nil), media[name]...)
	for _, group := range media["group"] {
		elements = append(elements, group.Children[name]...)
	}
	return elements
}
