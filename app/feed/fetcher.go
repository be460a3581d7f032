package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	feedAccept = "application/rss+xml, application/atom+xml, application/xml, text/xml;q=0.9, */*;q=0.1"
	pageAccept = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.1"

	// Meta tags live in the document head.
	maxPageBytes = 2 << 20
)

type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP error: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher performs the outbound GETs for feed documents and article pages.
type Fetcher struct {
	httpClient  *http.Client
	userAgent   string
	feedTimeout time.Duration
	pageTimeout time.Duration
}

func NewFetcher(httpClient *http.Client, userAgent string, feedTimeout, pageTimeout time.Duration) *Fetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Fetcher{
		httpClient:  httpClient,
		userAgent:   userAgent,
		feedTimeout: feedTimeout,
		pageTimeout: pageTimeout,
	}
}

func (f *Fetcher) FetchFeed(ctx context.Context, url string) ([]byte, error) {
	data, _, err := f.get(ctx, url, feedAccept, f.feedTimeout, -1)
	return data, err
}

// FetchPage returns at most the first 2 MiB of the page along with its Content-Type.
func (f *Fetcher) FetchPage(ctx context.Context, url string) ([]byte, string, error) {
	return f.get(ctx, url, pageAccept, f.pageTimeout, maxPageBytes)
}

func (f *Fetcher) get(ctx context.Context, url, accept string, timeout time.Duration, limit int64) ([]byte, string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", &FetchError{URL: url, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", accept)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	var body io.Reader = resp.Body
	if limit > 0 {
		body = io.LimitReader(resp.Body, limit)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", &FetchError{URL: url, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	return data, resp.Header.Get("Content-Type"), nil
}
