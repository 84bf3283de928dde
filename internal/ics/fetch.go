package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	appLog "github.com/hariharan888/faith-admin/internal/log"
)

const maxFeedBytes = 5 << 20

// FetchResult contains the outcome of fetching one feed.
type FetchResult struct {
	URL       string
	Body      []byte
	FromCache bool // true if the body was reused after a 304 or a failure
}

type cacheEntry struct {
	etag         string
	lastModified string
	body         []byte
}

// Fetcher downloads remote calendar feeds for import, honoring ETag and
// Last-Modified so repeated imports of an unchanged feed are cheap.
type Fetcher struct {
	client *http.Client

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewFetcher returns a Fetcher using client, or a client with a 15s timeout
// when nil.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cache: make(map[string]cacheEntry)}
}

// Fetch retrieves rawURL. Only http and https URLs are accepted. On network
// errors or non-OK statuses a previously cached body is returned instead,
// when there is one.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (FetchResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return FetchResult{}, fmt.Errorf("ics: invalid feed url %q", redactURL(rawURL))
	}

	f.mu.Lock()
	cached, hasCache := f.cache[rawURL]
	f.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	req.Header.Set("Accept", "text/calendar")
	if cached.etag != "" {
		req.Header.Set("If-None-Match", cached.etag)
	}
	if cached.lastModified != "" {
		req.Header.Set("If-Modified-Since", cached.lastModified)
	}

	appLog.Info("ics fetch start", "url", redactURL(rawURL))
	resp, err := f.client.Do(req)
	if err != nil {
		if hasCache {
			appLog.Error("ics fetch network error, using cached body", err, "url", redactURL(rawURL))
			return FetchResult{URL: rawURL, Body: cached.body, FromCache: true}, nil
		}
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes+1))
		if err != nil {
			return FetchResult{}, err
		}
		if len(body) > maxFeedBytes {
			return FetchResult{}, fmt.Errorf("ics: feed larger than %d bytes", maxFeedBytes)
		}
		f.mu.Lock()
		f.cache[rawURL] = cacheEntry{
			etag:         resp.Header.Get("ETag"),
			lastModified: resp.Header.Get("Last-Modified"),
			body:         body,
		}
		f.mu.Unlock()
		appLog.Info("ics fetch success", "url", redactURL(rawURL), "bytes", len(body))
		return FetchResult{URL: rawURL, Body: body}, nil

	case http.StatusNotModified:
		if !hasCache {
			return FetchResult{}, errors.New("ics: received 304 Not Modified without a cached body")
		}
		appLog.Info("ics fetch not modified; using cache", "url", redactURL(rawURL))
		return FetchResult{URL: rawURL, Body: cached.body, FromCache: true}, nil

	default:
		if hasCache {
			appLog.Error("ics fetch non-OK, using cached body", errors.New(resp.Status), "url", redactURL(rawURL))
			return FetchResult{URL: rawURL, Body: cached.body, FromCache: true}, nil
		}
		return FetchResult{}, fmt.Errorf("ics: fetch %s: %s", redactURL(rawURL), resp.Status)
	}
}

// redactURL keeps only scheme and host so feed tokens never reach the logs.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
