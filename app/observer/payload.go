package observer

import (
	"log/slog"
	"strings"
	"time"

	"github.com/lysyi3m/provenance-feed/app/database"
)

// BuildPayload maps a stored item to the observation wire format.
func BuildPayload(item database.Item) Payload {
	return Payload{
		ContentID:         item.ContentID,
		CanonicalURL:      item.SourceURL,
		Title:             item.Title,
		PublishedAt:       item.PublishedAt.UTC().Format(time.RFC3339),
		SourceKey:         SourceKey(item.ContentID),
		SourceDisplayName: item.SourceName,
	}
}

// SourceKey returns the part of a content id before the first ':', or
// "unknown" when there is none.
func SourceKey(contentID string) string {
	head, _, found := strings.Cut(contentID, ":")
	if found && head != "" {
		return head
	}
	return "unknown"
}

// SafeObserve calls obs and swallows any panic it raises.
func SafeObserve(obs Observer, item database.Item) {
	if obs == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Observer panicked, ignoring", "content_id", item.ContentID, "panic", r)
		}
	}()

	obs.Observe(item)
}
