// Package fetch retrieves product pages. Two implementations exist: a
// headless-browser fetcher for client-rendered shops and a plain HTTP
// fetcher for static markup and tests. Both hand back the final URL so the
// extractor can read the product code off redirect targets.
package fetch

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Page is a retrieved, rendered product page.
type Page struct {
	HTML     string
	FinalURL string
}

// Fetcher retrieves the rendered content of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// CachingFetcher keeps recently fetched pages in a short-TTL LRU so a burst
// of lookups for the same URL (a bulk import, a manual check racing a tick)
// renders the page once. TTL is short enough that scheduled checks always
// see fresh content.
type CachingFetcher struct {
	inner Fetcher
	cache *expirable.LRU[string, *Page]
}

// NewCachingFetcher wraps inner with an LRU of the given size and TTL.
func NewCachingFetcher(inner Fetcher, size int, ttl time.Duration) *CachingFetcher {
	return &CachingFetcher{
		inner: inner,
		cache: expirable.NewLRU[string, *Page](size, nil, ttl),
	}
}

// Fetch returns a cached page when present, delegating otherwise.
func (f *CachingFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	if page, ok := f.cache.Get(url); ok {
		return page, nil
	}
	page, err := f.inner.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	f.cache.Add(url, page)
	return page, nil
}
