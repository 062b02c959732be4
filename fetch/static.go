package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/mjanda/go-price-tracker/config"
)

// StaticFetcher retrieves pages over plain HTTP with colly. It is the
// fetcher of choice for static markup and for tests, where the transport is
// swapped for a mock.
type StaticFetcher struct {
	userAgent string
	timeout   time.Duration
	transport http.RoundTripper
}

// NewStaticFetcher builds a fetcher from cfg.
func NewStaticFetcher(cfg *config.Config) *StaticFetcher {
	return &StaticFetcher{
		userAgent: cfg.UserAgent,
		timeout:   cfg.NavTimeout,
	}
}

// WithTransport overrides the HTTP transport, used by tests to install
// httpmock.
func (f *StaticFetcher) WithTransport(rt http.RoundTripper) *StaticFetcher {
	f.transport = rt
	return f
}

// Fetch issues one GET and returns the response body plus the URL the
// request ended on after redirects.
func (f *StaticFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	c := colly.NewCollector(
		colly.UserAgent(f.userAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(f.timeout)
	if f.transport != nil {
		c.WithTransport(f.transport)
	}

	var page *Page
	var fetchErr error

	c.OnRequest(func(r *colly.Request) {
		select {
		case <-ctx.Done():
			r.Abort()
			fetchErr = ctx.Err()
		default:
		}
	})
	c.OnResponse(func(r *colly.Response) {
		page = &Page{
			HTML:     string(r.Body),
			FinalURL: r.Request.URL.String(),
		}
	})
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(url); err != nil {
		return nil, fmt.Errorf("visit %s: %w", url, err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, fetchErr)
	}
	if page == nil {
		return nil, fmt.Errorf("fetch %s: no response", url)
	}
	return page, nil
}
