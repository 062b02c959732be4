package scrape

import (
	"context"
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/mjanda/go-price-tracker/config"
	"github.com/mjanda/go-price-tracker/fetch"
)

func newTestService(t *testing.T, pages map[string]string) *Service {
	t.Helper()

	transport := httpmock.NewMockTransport()
	for url, body := range pages {
		resp := httpmock.NewStringResponse(200, body)
		resp.Header.Set("Content-Type", "text/html")
		transport.RegisterResponder("GET", url, httpmock.ResponderFromResponse(resp))
	}

	fetcher := fetch.NewStaticFetcher(config.DefaultConfig()).WithTransport(transport)
	return NewService(fetcher, NewMetrics())
}

func TestScrapeProduct(t *testing.T) {
	page := `<html><head><title>Laptop ASUS - morele.net</title></head><body>
		<h1>Laptop ASUS VivoBook</h1>
		<div id="product_price">2 549,99 zł</div>
		<nav class="main-breadcrumb">
			<a href="/">Sklep</a>
			<a href="/kategoria/laptopy-31/">Laptopy</a>
		</nav>
		<img src="/images/laptop.jpg" alt="produkt Laptop ASUS">
	</body></html>`

	s := newTestService(t, map[string]string{
		"http://shop.test/laptop-asus-10751839.html": page,
	})

	result, err := s.ScrapeProduct(context.Background(), "http://shop.test/laptop-asus-10751839.html")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if result == nil {
		t.Fatalf("expected result")
	}
	if result.Name != "Laptop ASUS VivoBook" {
		t.Fatalf("name=%q", result.Name)
	}
	if result.PriceCents != 254999 {
		t.Fatalf("price=%d, want 254999", result.PriceCents)
	}
	if result.ProductCode != "10751839" {
		t.Fatalf("product code=%q", result.ProductCode)
	}
	if result.Category != "Laptopy" {
		t.Fatalf("category=%q", result.Category)
	}
}

func TestScrapeProductNoPriceReturnsNilNil(t *testing.T) {
	s := newTestService(t, map[string]string{
		"http://shop.test/laptop-10751839.html": `<html><body><h1>Laptop</h1><p>Niedostępny</p></body></html>`,
	})

	result, err := s.ScrapeProduct(context.Background(), "http://shop.test/laptop-10751839.html")
	if err != nil {
		t.Fatalf("missing price must not be an error, got %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil result, got %+v", result)
	}
}

func TestScrapeProductFetchFailureIsError(t *testing.T) {
	s := newTestService(t, map[string]string{})

	result, err := s.ScrapeProduct(context.Background(), "http://shop.test/unregistered.html")
	if err == nil {
		t.Fatalf("expected fetch error")
	}
	if result != nil {
		t.Fatalf("result must be nil on fetch failure")
	}
}
