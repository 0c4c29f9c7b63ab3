package cities

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/urbanflow/urbanflow/internal/model"
	"github.com/urbanflow/urbanflow/internal/storage"
)

const wikiUserAgent = "UrbanFlow/1.0"

// WikiClient fetches landmark images from the Wikipedia REST API.
type WikiClient struct {
	baseURL string
	httpc   *http.Client
}

// NewWikiClient creates a client against en.wikipedia.org. baseURL
// overrides the host for tests; pass "" for the default.
func NewWikiClient(baseURL string, timeout time.Duration) *WikiClient {
	if baseURL == "" {
		baseURL = "https://en.wikipedia.org"
	}
	return &WikiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
	}
}

// ExtractWikiTitle pulls the article title out of a Wikipedia URL like
// https://en.wikipedia.org/wiki/India_Gate. Non-Wikipedia URLs report
// false.
func ExtractWikiTitle(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || !strings.Contains(u.Host, "wikipedia.org") {
		return "", false
	}
	title, ok := strings.CutPrefix(u.Path, "/wiki/")
	if !ok || title == "" {
		return "", false
	}
	title, err = url.PathUnescape(title)
	if err != nil {
		return "", false
	}
	return title, true
}

// wikiSummary is the subset of the page-summary response we read.
type wikiSummary struct {
	OriginalImage struct {
		Source string `json:"source"`
	} `json:"originalimage"`
	Thumbnail struct {
		Source string `json:"source"`
	} `json:"thumbnail"`
}

// ImageURL resolves an article's lead image, preferring the original
// over the thumbnail.
func (c *WikiClient) ImageURL(ctx context.Context, title string) (string, error) {
	endpoint := c.baseURL + "/api/rest_v1/page/summary/" + url.PathEscape(title)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("wiki: build request: %w", err)
	}
	req.Header.Set("User-Agent", wikiUserAgent)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("wiki: fetch summary for %q: %w", title, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("wiki: summary for %q: status %d", title, resp.StatusCode)
	}

	var summary wikiSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return "", fmt.Errorf("wiki: decode summary for %q: %w", title, err)
	}
	if summary.OriginalImage.Source != "" {
		return summary.OriginalImage.Source, nil
	}
	if summary.Thumbnail.Source != "" {
		return summary.Thumbnail.Source, nil
	}
	return "", fmt.Errorf("wiki: no image for %q", title)
}

// ImageCache maps normalized city keys to resolved image URLs.
type ImageCache struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewImageCache creates an empty cache.
func NewImageCache() *ImageCache {
	return &ImageCache{m: make(map[string]string)}
}

// Get returns the cached image URL for a city key.
func (c *ImageCache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key]
	return v, ok
}

// Set stores an image URL under a city key.
func (c *ImageCache) Set(key, imageURL string) {
	c.mu.Lock()
	c.m[key] = imageURL
	c.mu.Unlock()
}

// Len reports the number of cached entries.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// Warm resolves landmark images for every record that lacks one,
// fanning out up to concurrency requests at a time. Dataset-supplied
// image URLs are cached as-is without a network call. Lookup failures
// are logged and skipped; Warm itself never fails.
func (c *ImageCache) Warm(ctx context.Context, client *WikiClient, records []model.CityRecord, concurrency int, logger *slog.Logger) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, rec := range records {
		key := storage.NormalizeKey(rec.City)
		if _, ok := c.Get(key); ok {
			continue
		}
		if rec.ImageURL != "" {
			c.Set(key, rec.ImageURL)
			continue
		}
		title, ok := ExtractWikiTitle(rec.LandmarkURL)
		if !ok {
			continue
		}
		g.Go(func() error {
			img, err := client.ImageURL(ctx, title)
			if err != nil {
				logger.Debug("landmark image lookup failed", "city", key, "error", err)
				return nil
			}
			c.Set(key, img)
			return nil
		})
	}
	_ = g.Wait()
	logger.Info("landmark image cache warmed", "entries", c.Len())
}
