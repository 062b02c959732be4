// Package track schedules recurring price checks per product and runs the
// scrape, compare, persist, alert pipeline.
package track

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mjanda/go-price-tracker/alert"
	"github.com/mjanda/go-price-tracker/models"
	"github.com/mjanda/go-price-tracker/scrape"
	"github.com/mjanda/go-price-tracker/store"
)

// Store is the persistence surface the tracker needs.
type Store interface {
	GetProduct(id uint) (*models.Product, error)
	ListProducts() ([]models.Product, error)
	UpdateProduct(id uint, updates map[string]interface{}) error
	RecordPrice(productID uint, price int64, at time.Time) error
}

// Scraper retrieves the current state of a product page.
type Scraper interface {
	ScrapeProduct(ctx context.Context, url string) (*scrape.Result, error)
}

// CooldownError is returned when a manual check arrives before the
// per-product cooldown has elapsed.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	minutes := int(math.Ceil(e.Remaining.Minutes()))
	return fmt.Sprintf("Please wait %d more minutes before checking again", minutes)
}

// Outcome summarises one completed price check.
type Outcome struct {
	PriceCents int64
	ChangeBps  int64
	Alerted    bool
	// PriceFound is false when the page loaded but no price could be
	// extracted. Nothing is persisted in that case.
	PriceFound bool
}

// Tracker owns one shared cron runner with an entry per tracked product.
// Check intervals are expressed in minutes and mapped onto cron schedules,
// so an interval above 59 minutes rounds down to whole hours.
type Tracker struct {
	store     Store
	scraper   Scraper
	metrics   *scrape.Metrics
	evaluator *alert.Evaluator
	cron      *cron.Cron
	cooldown  time.Duration

	mu      sync.Mutex
	entries map[uint]cron.EntryID

	lockMu    sync.Mutex
	itemLocks map[uint]*sync.Mutex

	// sem bounds how many scheduled checks run at once.
	sem chan struct{}
}

// New builds a tracker. maxConcurrent bounds simultaneous scheduled checks
// and cooldown gates manual re-checks.
func New(st Store, scraper Scraper, metrics *scrape.Metrics, evaluator *alert.Evaluator, maxConcurrent int, cooldown time.Duration) *Tracker {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Tracker{
		store:     st,
		scraper:   scraper,
		metrics:   metrics,
		evaluator: evaluator,
		cron:      cron.New(cron.WithSeconds()),
		cooldown:  cooldown,
		entries:   make(map[uint]cron.EntryID),
		itemLocks: make(map[uint]*sync.Mutex),
		sem:       make(chan struct{}, maxConcurrent),
	}
}

// Start begins running scheduled checks.
func (t *Tracker) Start() {
	t.cron.Start()
}

// Stop halts the cron runner and waits for in-flight checks to finish.
func (t *Tracker) Stop() {
	<-t.cron.Stop().Done()
}

// DeriveCron maps a check interval in minutes onto a seconds-resolution
// cron expression. Intervals up to 59 minutes keep minute resolution,
// anything longer becomes every-N-hours, dropping the remainder.
func DeriveCron(intervalMinutes int) string {
	if intervalMinutes <= 59 {
		return fmt.Sprintf("0 */%d * * * *", intervalMinutes)
	}
	hours := intervalMinutes / 60
	return fmt.Sprintf("0 0 */%d * * *", hours)
}

// InitializeAll schedules every product currently in the store.
func (t *Tracker) InitializeAll() error {
	products, err := t.store.ListProducts()
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}
	for i := range products {
		if err := t.Schedule(&products[i]); err != nil {
			return err
		}
	}
	slog.Info("price check schedules initialized", slog.Int("products", len(products)))
	return nil
}

// Schedule registers a recurring check for the product, replacing any
// existing schedule so each product holds at most one cron entry.
func (t *Tracker) Schedule(p *models.Product) error {
	expr := DeriveCron(p.CheckIntervalMinutes)
	id := p.ID

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.entries[id]; ok {
		t.cron.Remove(existing)
		delete(t.entries, id)
	}
	entry, err := t.cron.AddFunc(expr, func() { t.tick(id) })
	if err != nil {
		return fmt.Errorf("schedule product %d: %w", id, err)
	}
	t.entries[id] = entry
	slog.Info("product scheduled",
		slog.Uint64("product_id", uint64(id)),
		slog.Int("interval_minutes", p.CheckIntervalMinutes),
		slog.String("cron", expr),
	)
	return nil
}

// Unschedule removes the product's schedule. Unknown ids are a no-op.
func (t *Tracker) Unschedule(productID uint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.entries[productID]; ok {
		t.cron.Remove(entry)
		delete(t.entries, productID)
	}
}

// ScheduledCount reports how many products currently hold a cron entry.
func (t *Tracker) ScheduledCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Tracker) tick(productID uint) {
	t.sem <- struct{}{}
	defer func() { <-t.sem }()

	if _, err := t.CheckPrice(context.Background(), productID, "scheduled"); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Row deleted between scheduling and firing.
			t.Unschedule(productID)
			return
		}
		slog.Error("scheduled price check failed",
			slog.Uint64("product_id", uint64(productID)),
			slog.String("error", err.Error()),
		)
	}
}

// CheckPrice runs one full check for a product. Checks for the same product
// are serialized so concurrent scheduled and manual checks cannot interleave
// their read-compare-write cycles.
func (t *Tracker) CheckPrice(ctx context.Context, productID uint, trigger string) (*Outcome, error) {
	lock := t.itemLock(productID)
	lock.Lock()
	defer lock.Unlock()
	return t.checkLocked(ctx, productID, trigger)
}

// checkLocked is CheckPrice's body; the caller holds the item lock.
func (t *Tracker) checkLocked(ctx context.Context, productID uint, trigger string) (*Outcome, error) {
	p, err := t.store.GetProduct(productID)
	if err != nil {
		return nil, err
	}

	result, err := t.scraper.ScrapeProduct(ctx, p.URL)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	// The product may have been deleted while the page was loading.
	fresh, err := t.store.GetProduct(productID)
	if err != nil {
		return nil, err
	}

	// A page without a price leaves the row untouched. The next scheduled
	// fire tries again.
	if result == nil {
		t.metrics.IncPriceCheck(trigger)
		return &Outcome{PriceFound: false}, nil
	}

	previous := fresh.CurrentPrice
	changeBps := alert.ChangeBasisPoints(previous, result.PriceCents)

	// First observation seeds previous with the scraped price so current
	// and previous are always set together.
	previousPrice := result.PriceCents
	if previous != nil {
		previousPrice = *previous
	}
	updates := map[string]interface{}{
		"current_price":        result.PriceCents,
		"previous_price":       previousPrice,
		"price_change_percent": changeBps,
		"last_checked_at":      now,
	}
	if fresh.Name == "" && result.Name != "" {
		updates["name"] = result.Name
	}
	if fresh.ImageURL == "" && result.ImageURL != "" {
		updates["image_url"] = result.ImageURL
	}
	if fresh.Category == "" && result.Category != "" {
		updates["category"] = result.Category
	}
	if err := t.store.UpdateProduct(productID, updates); err != nil {
		return nil, err
	}
	if err := t.store.RecordPrice(productID, result.PriceCents, now); err != nil {
		return nil, err
	}
	t.metrics.IncPriceCheck(trigger)

	outcome := &Outcome{PriceCents: result.PriceCents, ChangeBps: changeBps, PriceFound: true}

	if previous != nil && alert.ShouldAlert(changeBps, fresh.PriceAlertThreshold) {
		outcome.Alerted = true
		t.metrics.IncAlert()
		name := fresh.Name
		if name == "" {
			name = result.Name
		}
		slog.Info("price drop alert",
			slog.Uint64("product_id", uint64(productID)),
			slog.String("product", name),
			slog.Int64("old_price", *previous),
			slog.Int64("new_price", result.PriceCents),
			slog.Int64("change_bps", changeBps),
		)
		t.evaluator.Fire(ctx, alert.Event{
			ProductID:   productID,
			ProductName: name,
			OldPrice:    *previous,
			NewPrice:    result.PriceCents,
			DropPercent: float64(-changeBps) / 100,
		})
	}

	return outcome, nil
}

// RequestCheck runs a manual check, enforcing the per-product cooldown.
// The cooldown is read under the item lock so two simultaneous requests
// cannot both pass the gate.
func (t *Tracker) RequestCheck(ctx context.Context, productID uint) (*Outcome, error) {
	lock := t.itemLock(productID)
	lock.Lock()
	defer lock.Unlock()

	p, err := t.store.GetProduct(productID)
	if err != nil {
		return nil, err
	}
	if p.LastCheckedAt != nil {
		elapsed := time.Since(*p.LastCheckedAt)
		if elapsed < t.cooldown {
			return nil, &CooldownError{Remaining: t.cooldown - elapsed}
		}
	}
	return t.checkLocked(ctx, productID, "manual")
}

func (t *Tracker) itemLock(productID uint) *sync.Mutex {
	t.lockMu.Lock()
	defer t.lockMu.Unlock()
	lock, ok := t.itemLocks[productID]
	if !ok {
		lock = &sync.Mutex{}
		t.itemLocks[productID] = lock
	}
	return lock
}
