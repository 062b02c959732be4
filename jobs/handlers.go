package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/mjanda/go-price-tracker/models"
	"github.com/mjanda/go-price-tracker/track"
)

// ProductLister provides the products a sweep iterates over.
type ProductLister interface {
	ListProducts() ([]models.Product, error)
}

// HistoryPruner deletes old price observations.
type HistoryPruner interface {
	PrunePricePoints(cutoff time.Time) (int64, error)
}

// Checker runs one price check.
type Checker interface {
	CheckPrice(ctx context.Context, productID uint, trigger string) (*track.Outcome, error)
}

// PriceCheckHandler sweeps every tracked product once. Individual failures
// are counted, not fatal.
func PriceCheckHandler(lister ProductLister, checker Checker) Handler {
	return func(ctx context.Context, _ *models.Job) (string, error) {
		products, err := lister.ListProducts()
		if err != nil {
			return "", fmt.Errorf("list products: %w", err)
		}
		failed := 0
		for _, p := range products {
			if _, err := checker.CheckPrice(ctx, p.ID, "job"); err != nil {
				failed++
			}
		}
		return fmt.Sprintf("Checked %d products, %d failed", len(products), failed), nil
	}
}

// CleanupHandler prunes price history older than the retention window.
func CleanupHandler(pruner HistoryPruner, retentionDays int) Handler {
	return func(_ context.Context, _ *models.Job) (string, error) {
		cutoff := time.Now().AddDate(0, 0, -retentionDays)
		pruned, err := pruner.PrunePricePoints(cutoff)
		if err != nil {
			return "", fmt.Errorf("prune price history: %w", err)
		}
		return fmt.Sprintf("Pruned %d price points older than %d days", pruned, retentionDays), nil
	}
}

// ReportHandler summarises the tracked catalog.
func ReportHandler(lister ProductLister) Handler {
	return func(_ context.Context, _ *models.Job) (string, error) {
		products, err := lister.ListProducts()
		if err != nil {
			return "", fmt.Errorf("list products: %w", err)
		}
		withPrice := 0
		drops := 0
		for _, p := range products {
			if p.CurrentPrice != nil {
				withPrice++
			}
			if p.PriceChangePercent != nil && *p.PriceChangePercent < 0 {
				drops++
			}
		}
		return fmt.Sprintf("Tracking %d products, %d with price data, %d currently below previous price",
			len(products), withPrice, drops), nil
	}
}

// CustomHandler covers user defined jobs that only need their run recorded.
func CustomHandler() Handler {
	return func(_ context.Context, job *models.Job) (string, error) {
		return fmt.Sprintf("Custom job executed: %s", job.Name), nil
	}
}
