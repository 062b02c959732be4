package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/mjanda/go-price-tracker/config"
)

// BrowserFetcher renders pages in a shared headless Chrome. The browser is
// the system's deliberate bottleneck: concurrent fetches queue on a bounded
// pool instead of fanning out one tab per timer fire.
type BrowserFetcher struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	pool        chan struct{}
	navTimeout  time.Duration
	settleDelay time.Duration
}

// NewBrowserFetcher starts a shared Chrome allocator sized from cfg.
func NewBrowserFetcher(cfg *config.Config) *BrowserFetcher {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.NoSandbox,
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.WindowSize(1920, 1080),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &BrowserFetcher{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		pool:        make(chan struct{}, cfg.BrowserPoolSize),
		navTimeout:  cfg.NavTimeout,
		settleDelay: cfg.SettleDelay,
	}
}

// Fetch acquires a pool slot, opens a tab, navigates with the configured
// ceiling, waits the settle delay for client-side rendering, and returns the
// document. The slot and the tab are released on every exit path.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	select {
	case f.pool <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-f.pool }()

	tabCtx, cancelTab := chromedp.NewContext(f.allocCtx)
	defer cancelTab()

	runCtx, cancelRun := context.WithTimeout(tabCtx, f.navTimeout+f.settleDelay)
	defer cancelRun()

	var pageHTML, finalURL string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(f.settleDelay),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &pageHTML),
	)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", url, err)
	}

	return &Page{HTML: pageHTML, FinalURL: finalURL}, nil
}

// Close tears down the shared browser.
func (f *BrowserFetcher) Close() {
	f.allocCancel()
}
