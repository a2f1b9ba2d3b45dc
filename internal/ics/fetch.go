package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	appLog "github.com/WordPressBugBounty/plugins-simple-tags/internal/log"
	"github.com/WordPressBugBounty/plugins-simple-tags/internal/store"
)

// Source is one calendar subscription.
type Source struct {
	ID   string
	Name string
	URL  string
}

// FetchResult contains the outcome of fetching a single source.
type FetchResult struct {
	Source    Source
	Body      []byte
	FromCache bool // the body is the cached copy (304, network error, non-OK)
}

// Cache stores feed bodies with their validators. *store.Store implements
// it.
type Cache interface {
	LoadFeed(key string) (store.FeedEntry, bool, error)
	SaveFeed(key string, e store.FeedEntry) error
}

// Fetcher downloads feeds with conditional requests (ETag /
// Last-Modified) and falls back to the cached copy when the origin fails.
type Fetcher struct {
	client *http.Client
	cache  Cache
	now    func() time.Time
}

func NewFetcher(cache Cache) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: 15 * time.Second},
		cache:  cache,
		now:    time.Now,
	}
}

// FetchAll fetches every source. Failed sources are logged and reported in
// the error slice; results only hold sources that produced a body.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]FetchResult, []error) {
	results := make([]FetchResult, 0, len(sources))
	var errs []error

	for _, src := range sources {
		res, err := f.FetchOne(ctx, src)
		if err != nil {
			errs = append(errs, fmt.Errorf("feed %s: %w", src.ID, err))
			appLog.Error("ics fetch failed", err, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

// FetchOne fetches a single source.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, errors.New("source URL is empty")
	}
	key := cacheKey(src.URL)
	cached, haveCache, err := f.cache.LoadFeed(key)
	if err != nil {
		appLog.Warn("ics cache read failed", "id", src.ID, "err", err)
		haveCache = false
	}
	if haveCache && len(cached.Body) == 0 {
		haveCache = false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if haveCache {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	appLog.Debug("ics fetch start", "id", src.ID, "url", redactURL(src.URL))
	fromCache := FetchResult{Source: src, Body: cached.Body, FromCache: true}

	resp, err := f.client.Do(req)
	if err != nil {
		if haveCache {
			appLog.Error("ics fetch network error, using cached body", err, "id", src.ID, "url", redactURL(src.URL))
			return fromCache, nil
		}
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return FetchResult{}, err
		}
		entry := store.FeedEntry{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			Body:         body,
			UpdatedAt:    f.now().Unix(),
		}
		if err := f.cache.SaveFeed(key, entry); err != nil {
			appLog.Error("ics cache save failed", err, "id", src.ID, "url", redactURL(src.URL))
		}
		appLog.Info("ics fetch success", "id", src.ID, "url", redactURL(src.URL), "bytes", len(body))
		return FetchResult{Source: src, Body: body}, nil

	case http.StatusNotModified:
		if !haveCache {
			return FetchResult{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Info("ics fetch not modified; using cache", "id", src.ID, "url", redactURL(src.URL))
		return fromCache, nil

	default:
		if haveCache {
			appLog.Error("ics fetch non-OK, using cached body", errors.New(resp.Status), "id", src.ID, "url", redactURL(src.URL), "status", resp.StatusCode)
			return fromCache, nil
		}
		return FetchResult{}, errors.New(resp.Status)
	}
}

// cacheKey names the cache slot of a feed URL.
func cacheKey(u string) string {
	sum := sha256.Sum256([]byte(u))
	return hex.EncodeToString(sum[:8])
}

// redactURL keeps only the scheme and host of a feed URL, since private
// calendar links carry their token in the path or query.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
