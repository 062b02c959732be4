package fetch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/mjanda/go-price-tracker/config"
)

func TestStaticFetcherReturnsBodyAndFinalURL(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://shop.test/product-123.html",
		httpmock.NewStringResponder(200, "<html><body><h1>Laptop</h1></body></html>"))

	f := NewStaticFetcher(config.DefaultConfig()).WithTransport(transport)

	page, err := f.Fetch(context.Background(), "http://shop.test/product-123.html")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if page.HTML != "<html><body><h1>Laptop</h1></body></html>" {
		t.Fatalf("html=%q", page.HTML)
	}
	if page.FinalURL != "http://shop.test/product-123.html" {
		t.Fatalf("final url=%q", page.FinalURL)
	}
}

func TestStaticFetcherErrorStatus(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://shop.test/missing.html",
		httpmock.NewStringResponder(404, "not found"))

	f := NewStaticFetcher(config.DefaultConfig()).WithTransport(transport)

	if _, err := f.Fetch(context.Background(), "http://shop.test/missing.html"); err == nil {
		t.Fatalf("expected error for 404 response")
	}
}

func TestStaticFetcherHonorsCancelledContext(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://shop.test/slow.html",
		httpmock.NewStringResponder(200, "<html></html>"))

	f := NewStaticFetcher(config.DefaultConfig()).WithTransport(transport)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.Fetch(ctx, "http://shop.test/slow.html"); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}

type countingFetcher struct {
	calls int32
	page  *Page
	err   error
}

func (c *countingFetcher) Fetch(_ context.Context, _ string) (*Page, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.page, c.err
}

func TestCachingFetcherServesRepeatsFromCache(t *testing.T) {
	inner := &countingFetcher{page: &Page{HTML: "<html></html>", FinalURL: "http://shop.test/p-1.html"}}
	f := NewCachingFetcher(inner, 8, time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := f.Fetch(context.Background(), "http://shop.test/p-1.html"); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}

	if got := atomic.LoadInt32(&inner.calls); got != 1 {
		t.Fatalf("inner fetches=%d, want 1", got)
	}
}

type flakyFetcher struct {
	calls    int32
	failures int32
	page     *Page
}

func (f *flakyFetcher) Fetch(_ context.Context, _ string) (*Page, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failures {
		return nil, errors.New("connection reset")
	}
	return f.page, nil
}

func TestRetryingFetcherRecoversAfterFailures(t *testing.T) {
	inner := &flakyFetcher{failures: 2, page: &Page{HTML: "<html></html>", FinalURL: "http://shop.test/p-1.html"}}
	f := NewRetryingFetcher(inner, 2, time.Millisecond, 10*time.Millisecond)

	page, err := f.Fetch(context.Background(), "http://shop.test/p-1.html")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if page.FinalURL != "http://shop.test/p-1.html" {
		t.Fatalf("page=%+v", page)
	}
	if got := atomic.LoadInt32(&inner.calls); got != 3 {
		t.Fatalf("attempts=%d, want 3", got)
	}
}

func TestRetryingFetcherGivesUp(t *testing.T) {
	inner := &countingFetcher{err: errors.New("boom")}
	f := NewRetryingFetcher(inner, 2, time.Millisecond, 10*time.Millisecond)

	if _, err := f.Fetch(context.Background(), "http://shop.test/p-1.html"); err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if got := atomic.LoadInt32(&inner.calls); got != 3 {
		t.Fatalf("attempts=%d, want 3", got)
	}
}

func TestCachingFetcherDoesNotCacheFailures(t *testing.T) {
	inner := &countingFetcher{err: errors.New("boom")}
	f := NewCachingFetcher(inner, 8, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := f.Fetch(context.Background(), "http://shop.test/p-1.html"); err == nil {
			t.Fatalf("expected error")
		}
	}

	if got := atomic.LoadInt32(&inner.calls); got != 2 {
		t.Fatalf("inner fetches=%d, want 2 (failures must not be cached)", got)
	}
}
