package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/lysyi3m/provenance-feed/app/metrics"
	"github.com/mmcdole/gofeed"
	"golang.org/x/text/unicode/norm"
)

var entityPattern = regexp.MustCompile(`^&(#[0-9]+|#[xX][0-9a-fA-F]+|[A-Za-z][A-Za-z0-9]*);`)

type Parser struct {
	gofeedParser  *gofeed.Parser
	imageResolver *ImageResolver
}

func NewParser(imageResolver *ImageResolver) *Parser {
	return &Parser{
		gofeedParser:  gofeed.NewParser(),
		imageResolver: imageResolver,
	}
}

// Run parses a feed payload into normalized records, one per content id.
// When several entries share a content id the one with the latest
// publication time wins, ties going to the entry seen last.
func (p *Parser) Run(ctx context.Context, data []byte, source Source, now time.Time) ([]Record, Stats, error) {
	var stats Stats

	parsed, dropped, err := p.parse(data, source)
	if err != nil {
		return nil, stats, err
	}

	stats.Entries = len(parsed.Items) + dropped
	stats.Skipped = dropped

	byContentID := make(map[string]Record, len(parsed.Items))
	order := make([]string, 0, len(parsed.Items))

	for _, item := range parsed.Items {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		record, reason := p.normalizeItem(ctx, item, source, now)
		if reason != "" {
			stats.Skipped++
			slog.Info("Item skipped", "source", source.ID, "reason", reason, "link", linkOf(item))
			continue
		}

		existing, ok := byContentID[record.ContentID]
		if !ok {
			order = append(order, record.ContentID)
			byContentID[record.ContentID] = record
			continue
		}
		if !record.PublishedAt.Before(existing.PublishedAt) {
			byContentID[record.ContentID] = record
		}
	}

	records := make([]Record, 0, len(order))
	for _, contentID := range order {
		records = append(records, byContentID[contentID])
	}
	stats.Kept = len(records)

	slog.Info("Feed parsed", "source", source.ID, "entries", stats.Entries, "kept", stats.Kept, "skipped", stats.Skipped)
	metrics.EntriesParsed.WithLabelValues(source.ID, "kept").Add(float64(stats.Kept))
	metrics.EntriesParsed.WithLabelValues(source.ID, "skipped").Add(float64(stats.Skipped))

	return records, stats, nil
}

// parse tolerates malformed XML. It retries once on a sanitized copy and
// then falls back to salvaging the well-formed entries. The returned count
// is the number of entries lost to salvage.
func (p *Parser) parse(data []byte, source Source) (*gofeed.Feed, int, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err == nil {
		return parsed, 0, nil
	}
	if errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
		return nil, 0, fmt.Errorf("failed to parse feed: %w", err)
	}

	sanitized := sanitizeXML(data)
	if retried, retryErr := p.gofeedParser.Parse(bytes.NewReader(sanitized)); retryErr == nil {
		slog.Warn("Malformed feed parsed leniently", "source", source.ID, "url", source.URL, "error", err)
		return retried, 0, nil
	}

	salvaged, dropped, ok := p.salvage(sanitized)
	if !ok {
		return nil, 0, fmt.Errorf("failed to parse feed: %w", err)
	}

	slog.Warn("Malformed feed parsed leniently", "source", source.ID, "url", source.URL,
		"error", err, "recovered", len(salvaged.Items), "dropped", dropped)
	return salvaged, dropped, nil
}

// normalizeItem returns a non-empty reason when the entry must be skipped.
func (p *Parser) normalizeItem(ctx context.Context, item *gofeed.Item, source Source, now time.Time) (Record, string) {
	if item == nil {
		return Record{}, "empty entry"
	}

	title := norm.NFC.String(strings.TrimSpace(item.Title))
	if title == "" {
		return Record{}, "missing title"
	}

	link := linkOf(item)
	if link == "" {
		return Record{}, "missing link"
	}

	publishedAt, ok := entryTimestamp(item)
	if !ok {
		return Record{}, "missing timestamp"
	}

	canonicalURL := CanonicalizeURL(link)
	contentID, err := MakeContentID(source.ID, DeriveItemID(canonicalURL))
	if err != nil {
		return Record{}, err.Error()
	}

	image := p.imageResolver.Resolve(ctx, item, canonicalURL, now)

	return Record{
		ContentID:        contentID,
		Title:            title,
		SourceName:       source.Name,
		SourceURL:        canonicalURL,
		PublishedAt:      publishedAt,
		ImageURL:         image.URL,
		ImageSource:      image.Source,
		ImageLastChecked: image.CheckedAt,
	}, ""
}

func linkOf(item *gofeed.Item) string {
	if item == nil {
		return ""
	}
	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}
	for _, link := range item.Links {
		if link = strings.TrimSpace(link); link != "" {
			return link
		}
	}
	return ""
}

// entryTimestamp prefers the published time and falls back to updated.
func entryTimestamp(item *gofeed.Item) (time.Time, bool) {
	ts := item.PublishedParsed
	if ts == nil {
		ts = item.UpdatedParsed
	}
	if ts == nil || ts.IsZero() {
		return time.Time{}, false
	}
	return ts.UTC().Truncate(time.Second), true
}

// sanitizeXML drops characters that are illegal in XML 1.0 and escapes
// ampersands that do not start an entity reference.
func sanitizeXML(data []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(data))

	for i, r := range string(data) {
		switch {
		case r == '&':
			end := min(i+32, len(data))
			if entityPattern.Match(data[i:end]) {
				buf.WriteByte('&')
			} else {
				buf.WriteString("&amp;")
			}
		case r == '\t' || r == '\n' || r == '\r':
			buf.WriteRune(r)
		case r < 0x20 || r == 0xFFFE || r == 0xFFFF:
			continue
		default:
			buf.WriteRune(r)
		}
	}

	return buf.Bytes()
}
