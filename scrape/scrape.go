// Package scrape composes page fetching and extraction into a single
// product lookup.
package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mjanda/go-price-tracker/extract"
	"github.com/mjanda/go-price-tracker/fetch"
	"github.com/mjanda/go-price-tracker/parser"
)

// Result is one successfully scraped product.
type Result struct {
	Name        string
	PriceCents  int64
	ProductCode string
	ImageURL    string
	Category    string
}

// Service retrieves and extracts product information. A missing price is
// not an error: ScrapeProduct returns (nil, nil) and the caller decides. An
// error means the page could not be fetched at all.
type Service struct {
	fetcher fetch.Fetcher
	Metrics *Metrics
}

// NewService builds a scrape service on top of fetcher.
func NewService(fetcher fetch.Fetcher, metrics *Metrics) *Service {
	return &Service{fetcher: fetcher, Metrics: metrics}
}

// ScrapeProduct fetches url, runs the extraction chain, and parses the
// price into integer minor units.
func (s *Service) ScrapeProduct(ctx context.Context, url string) (*Result, error) {
	start := time.Now()
	defer func() {
		s.Metrics.ObserveScrapeDuration(time.Since(start))
	}()

	page, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		s.Metrics.IncScrape("fetch_error")
		return nil, fmt.Errorf("scrape %s: %w", url, err)
	}

	info, err := extract.Extract(page.HTML, page.FinalURL)
	if err != nil {
		s.Metrics.IncScrape("parse_error")
		return nil, fmt.Errorf("scrape %s: parse document: %w", url, err)
	}

	if info.PriceText == "" {
		s.Metrics.IncScrape("no_price")
		slog.Warn("no price found on page",
			slog.String("url", url),
			slog.String("name", info.Name),
			slog.Time("at", time.Now()),
		)
		return nil, nil
	}

	cents, ok := parser.ParsePrice(info.PriceText)
	if !ok {
		s.Metrics.IncScrape("unparseable_price")
		slog.Warn("price text did not parse",
			slog.String("url", url),
			slog.String("name", info.Name),
			slog.String("price_text", info.PriceText),
			slog.Time("at", time.Now()),
		)
		return nil, nil
	}

	s.Metrics.IncScrape("ok")
	return &Result{
		Name:        info.Name,
		PriceCents:  cents,
		ProductCode: info.ProductCode,
		ImageURL:    info.ImageURL,
		Category:    info.Category,
	}, nil
}
