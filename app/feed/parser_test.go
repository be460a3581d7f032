package feed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type stubPageFetcher struct {
	mu    sync.Mutex
	body  string
	err   error
	calls []string
}

func (s *stubPageFetcher) FetchPage(ctx context.Context, url string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, url)
	if s.err != nil {
		return nil, "", s.err
	}
	return []byte(s.body), "text/html; charset=utf-8", nil
}

const htmlNoImage = `<!doctype html><html><head><title>No image</title><meta name="description" content="nothing"></head><body></body></html>`

const htmlWithOGImage = `<!doctype html>
<html><head>
<meta property="og:title" content="Story">
<meta property="og:image" content="https://images.example.com/og.jpg">
<meta name="twitter:image" content="https://images.example.com/twitter.jpg">
</head><body><img src="https://images.example.com/inline.jpg"></body></html>`

var testSource = Source{ID: "test", Name: "Test", URL: "https://example.invalid"}

var testNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func TestParserSkipsEntryWithoutTimestamp(t *testing.T) {
	rssData := `<?xml version='1.0' encoding='UTF-8'?>
<rss version='2.0'>
  <channel>
    <title>Test</title>
    <item>
      <title>Hello</title>
      <link>https://example.com/a</link>
    </item>
  </channel>
</rss>`

	parser := NewParser(NewImageResolver(nil))
	records, stats, err := parser.Run(context.Background(), []byte(rssData), testSource, testNow)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(records) != 0 {
		t.Errorf("Expected 0 records, got %d", len(records))
	}
	if stats.Entries != 1 || stats.Skipped != 1 || stats.Kept != 0 {
		t.Errorf("Expected entries=1 skipped=1 kept=0, got %+v", stats)
	}
}

func TestParserSkipsEntriesMissingTitleOrLink(t *testing.T) {
	rssData := `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Test</title>
    <item>
      <title>   </title>
      <link>https://example.com/a</link>
      <pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>No link</title>
      <pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Kept</title>
      <link>https://example.com/b</link>
      <pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

	parser := NewParser(NewImageResolver(nil))
	records, stats, err := parser.Run(context.Background(), []byte(rssData), testSource, testNow)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].Title != "Kept" {
		t.Errorf("Expected title 'Kept', got '%s'", records[0].Title)
	}
	if stats.Skipped != 2 {
		t.Errorf("Expected 2 skipped, got %d", stats.Skipped)
	}
}

func TestParserDeduplicatesByCanonicalURL(t *testing.T) {
	rssData := `<?xml version='1.0' encoding='UTF-8'?>
<rss version='2.0'>
  <channel>
    <title>Test</title>
    <item>
      <title>First title</title>
      <link>https://example.com/a?utm_source=x</link>
      <pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Updated title</title>
      <link>https://example.com/a</link>
      <pubDate>Mon, 01 Jan 2024 10:05:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

	fetcher := &stubPageFetcher{body: htmlNoImage}
	parser := NewParser(NewImageResolver(fetcher))
	records, _, err := parser.Run(context.Background(), []byte(rssData), testSource, testNow)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	record := records[0]
	if record.SourceURL != "https://example.com/a" {
		t.Errorf("Expected source URL 'https://example.com/a', got '%s'", record.SourceURL)
	}
	if record.Title != "Updated title" {
		t.Errorf("Expected title 'Updated title', got '%s'", record.Title)
	}
	if !strings.HasPrefix(record.ContentID, "test:") {
		t.Errorf("Expected content id prefixed with 'test:', got '%s'", record.ContentID)
	}
	if record.ContentID != "test:"+DeriveItemID("https://example.com/a") {
		t.Errorf("Unexpected content id '%s'", record.ContentID)
	}
	if record.SourceName != "Test" {
		t.Errorf("Expected source name 'Test', got '%s'", record.SourceName)
	}
}

func TestParserDedupKeepsLatestAndTieGoesToLastSeen(t *testing.T) {
	rssData := `<?xml version='1.0' encoding='UTF-8'?>
<rss version='2.0'>
  <channel>
    <title>Test</title>
    <item>
      <title>Newest</title>
      <link>https://example.com/a</link>
      <pubDate>Mon, 01 Jan 2024 11:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Older</title>
      <link>https://example.com/a#comments</link>
      <pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Tie first</title>
      <link>https://example.com/b</link>
      <pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Tie second</title>
      <link>HTTPS://EXAMPLE.COM/b?fbclid=1</link>
      <pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

	parser := NewParser(NewImageResolver(nil))
	records, stats, err := parser.Run(context.Background(), []byte(rssData), testSource, testNow)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if stats.Kept != 2 || stats.Entries != 4 {
		t.Errorf("Expected entries=4 kept=2, got %+v", stats)
	}

	titles := map[string]string{}
	for _, record := range records {
		titles[record.SourceURL] = record.Title
	}
	if titles["https://example.com/a"] != "Newest" {
		t.Errorf("Expected 'Newest' to win, got '%s'", titles["https://example.com/a"])
	}
	if titles["https://example.com/b"] != "Tie second" {
		t.Errorf("Expected 'Tie second' to win, got '%s'", titles["https://example.com/b"])
	}
}

func TestParserUsesUpdatedWhenPublishedMissing(t *testing.T) {
	atomData := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Test Atom Feed</title>
  <id>urn:uuid:1234567890</id>
  <updated>2023-07-03T12:00:00Z</updated>
  <entry>
    <title>Test Entry</title>
    <link href="https://example.com/entry1"/>
    <id>urn:uuid:entry-1</id>
    <updated>2023-07-03T10:00:00+02:00</updated>
  </entry>
</feed>`

	parser := NewParser(NewImageResolver(nil))
	records, _, err := parser.Run(context.Background(), []byte(atomData), testSource, testNow)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	expected := time.Date(2023, 7, 3, 8, 0, 0, 0, time.UTC)
	if !records[0].PublishedAt.Equal(expected) {
		t.Errorf("Expected published at %v, got %v", expected, records[0].PublishedAt)
	}
	if records[0].PublishedAt.Location() != time.UTC {
		t.Errorf("Expected UTC timestamp, got %v", records[0].PublishedAt.Location())
	}
}

func TestParserImageFromMediaContent(t *testing.T) {
	rssData := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
  <channel>
    <title>Media</title>
    <item>
      <title>With media</title>
      <link>https://example.com/media</link>
      <pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
      <media:content url="https://cdn.example.com/image.jpg" medium="image" />
    </item>
  </channel>
</rss>`

	fetcher := &stubPageFetcher{body: htmlWithOGImage}
	parser := NewParser(NewImageResolver(fetcher))
	records, _, err := parser.Run(context.Background(), []byte(rssData), testSource, testNow)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].ImageURL != "https://cdn.example.com/image.jpg" {
		t.Errorf("Expected media image, got '%s'", records[0].ImageURL)
	}
	if records[0].ImageSource != ImageSourceRSS {
		t.Errorf("Expected image source 'rss', got '%s'", records[0].ImageSource)
	}
	if len(fetcher.calls) != 0 {
		t.Errorf("Expected no page fetch, got %d", len(fetcher.calls))
	}
	if !records[0].ImageLastChecked.Equal(testNow) {
		t.Errorf("Expected image checked at %v, got %v", testNow, records[0].ImageLastChecked)
	}
}

const rssNoMedia = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Plain</title>
    <item>
      <title>Plain story</title>
      <link>https://example.com/story?utm_campaign=rss</link>
      <description>&lt;p&gt;Text &lt;img src="https://example.com/inline.jpg"&gt;&lt;/p&gt;</description>
      <pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

func TestParserFallsBackToPageMeta(t *testing.T) {
	fetcher := &stubPageFetcher{body: htmlWithOGImage}
	parser := NewParser(NewImageResolver(fetcher))
	records, _, err := parser.Run(context.Background(), []byte(rssNoMedia), testSource, testNow)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].ImageURL != "https://images.example.com/og.jpg" {
		t.Errorf("Expected og image, got '%s'", records[0].ImageURL)
	}
	if records[0].ImageSource != ImageSourcePageMeta {
		t.Errorf("Expected image source 'page_meta', got '%s'", records[0].ImageSource)
	}
	if len(fetcher.calls) != 1 || fetcher.calls[0] != "https://example.com/story" {
		t.Errorf("Expected page fetch of canonical URL, got %v", fetcher.calls)
	}
}

func TestParserNoImageSetsNoneSource(t *testing.T) {
	fetcher := &stubPageFetcher{body: htmlNoImage}
	parser := NewParser(NewImageResolver(fetcher))
	records, _, err := parser.Run(context.Background(), []byte(rssNoMedia), testSource, testNow)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].ImageURL != "" {
		t.Errorf("Expected no image, got '%s'", records[0].ImageURL)
	}
	if records[0].ImageSource != ImageSourceNone {
		t.Errorf("Expected image source 'none', got '%s'", records[0].ImageSource)
	}
	if records[0].ImageLastChecked.IsZero() {
		t.Error("Expected image checked time to be set")
	}
}

func TestParserPageFetchFailureIsSwallowed(t *testing.T) {
	fetcher := &stubPageFetcher{err: errors.New("connection refused")}
	parser := NewParser(NewImageResolver(fetcher))
	records, _, err := parser.Run(context.Background(), []byte(rssNoMedia), testSource, testNow)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].ImageSource != ImageSourceNone {
		t.Errorf("Expected image source 'none', got '%s'", records[0].ImageSource)
	}
}

func TestParserNormalizesTitle(t *testing.T) {
	// "e" followed by a combining acute accent
	rssData := "<?xml version=\"1.0\"?><rss version=\"2.0\"><channel><title>T</title>" +
		"<item><title>  Cafe\u0301 news </title><link>https://example.com/c</link>" +
		"<pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate></item></channel></rss>"

	parser := NewParser(NewImageResolver(nil))
	records, _, err := parser.Run(context.Background(), []byte(rssData), testSource, testNow)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].Title != "Caf\u00e9 news" {
		t.Errorf("Expected NFC title, got %q", records[0].Title)
	}
}

func TestParserToleratesMalformedFeed(t *testing.T) {
	rssData := "<?xml version=\"1.0\"?><rss version=\"2.0\"><channel><title>Bozo</title>" +
		"<item><title>Hello\x0bWorld</title><link>https://example.com/bozo</link>" +
		"<pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate></item></channel></rss>"

	parser := NewParser(NewImageResolver(nil))
	records, _, err := parser.Run(context.Background(), []byte(rssData), testSource, testNow)
	if err != nil {
		t.Fatalf("Expected malformed feed to be tolerated, got: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].Title != "HelloWorld" {
		t.Errorf("Expected title 'HelloWorld', got '%s'", records[0].Title)
	}
}

const salvageHeader = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Salvage</title>
    <link>https://example.com/</link>
`

const salvageGoodItems = `    <item>
      <title>First</title>
      <link>https://example.com/first</link>
      <pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Second</title>
      <link>https://example.com/second</link>
      <pubDate>Mon, 01 Jan 2024 11:00:00 GMT</pubDate>
    </item>
`

func TestParserSalvagesBrokenFeeds(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		dropped int
	}{
		{
			name: "truncated mid item",
			data: salvageHeader + salvageGoodItems +
				"    <item>\n      <title>Third</title>\n      <link>https://exa",
			dropped: 1,
		},
		{
			name:    "missing closing tags",
			data:    salvageHeader + salvageGoodItems,
			dropped: 0,
		},
		{
			name: "bare less-than in one item",
			data: salvageHeader +
				"    <item>\n      <title>Markets < Money</title>\n      <link>https://example.com/bad</link>\n" +
				"      <pubDate>Mon, 01 Jan 2024 09:00:00 GMT</pubDate>\n    </item>\n" +
				salvageGoodItems + "  </channel>\n</rss>",
			dropped: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewParser(NewImageResolver(nil))
			records, stats, err := parser.Run(context.Background(), []byte(tt.data), testSource, testNow)
			if err != nil {
				t.Fatalf("Expected broken feed to be salvaged, got: %v", err)
			}

			if len(records) != 2 {
				t.Fatalf("Expected 2 records, got %d", len(records))
			}
			if records[0].Title != "First" || records[1].Title != "Second" {
				t.Errorf("Expected First and Second, got '%s' and '%s'", records[0].Title, records[1].Title)
			}
			if stats.Kept != 2 || stats.Skipped != tt.dropped || stats.Entries != 2+tt.dropped {
				t.Errorf("Expected entries=%d kept=2 skipped=%d, got %+v", 2+tt.dropped, tt.dropped, stats)
			}
		})
	}
}

func TestParserSalvagesAtomEntries(t *testing.T) {
	atomData := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Salvage</title>
  <entry>
    <title>Broken <</title>
    <link href="https://example.com/broken"/>
    <updated>2024-01-01T09:00:00Z</updated>
  </entry>
  <entry>
    <title>Good</title>
    <link href="https://example.com/good"/>
    <updated>2024-01-01T10:00:00Z</updated>
  </entry>
</feed>`

	parser := NewParser(NewImageResolver(nil))
	records, _, err := parser.Run(context.Background(), []byte(atomData), testSource, testNow)
	if err != nil {
		t.Fatalf("Expected broken feed to be salvaged, got: %v", err)
	}
	if len(records) != 1 || records[0].Title != "Good" {
		t.Fatalf("Expected only the good entry, got %+v", records)
	}
}

func TestParserRejectsUnsalvageableFeed(t *testing.T) {
	data := `<?xml version="1.0"?><rss version="2.0"><channel><title>Broken < header</title>`

	parser := NewParser(NewImageResolver(nil))
	if _, _, err := parser.Run(context.Background(), []byte(data), testSource, testNow); err == nil {
		t.Error("Expected error when the feed header itself is broken")
	}
}

func TestParserRejectsNonFeed(t *testing.T) {
	parser := NewParser(NewImageResolver(nil))
	_, _, err := parser.Run(context.Background(), []byte("<html><body>not a feed</body></html>"), testSource, testNow)
	if err == nil {
		t.Error("Expected error for non-feed payload")
	}
}

func TestSanitizeXML(t *testing.T) {
	input := "<t>Tom & Jerry &amp; friends &#169; &#x2F; \x01bad</t>"
	expected := "<t>Tom &amp; Jerry &amp; friends &#169; &#x2F; bad</t>"

	got := string(sanitizeXML([]byte(input)))
	if got != expected {
		t.Errorf("Expected '%s', got '%s'", expected, got)
	}
}
