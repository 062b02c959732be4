// Package alert decides when a price movement warrants a notification and
// fans the alert out to every configured notifier.
package alert

import (
	"context"
	"log/slog"
	"math"
)

// ChangeBasisPoints returns the relative price movement in basis points
// (1/100th of a percent). A missing or zero previous price yields zero, so
// the very first observation never alerts.
func ChangeBasisPoints(previous *int64, current int64) int64 {
	if previous == nil || *previous == 0 {
		return 0
	}
	return int64(math.Round(float64(current-*previous) / float64(*previous) * 10000))
}

// ShouldAlert reports whether a movement is a drop at least as large as the
// product's threshold. The comparison is inclusive: a drop exactly on the
// threshold fires.
func ShouldAlert(changeBps int64, thresholdPercent int) bool {
	if changeBps >= 0 {
		return false
	}
	return float64(-changeBps)/100.0 >= float64(thresholdPercent)
}

// Event carries everything a notifier needs to render a price drop alert.
type Event struct {
	ProductID   uint
	ProductName string
	OldPrice    int64
	NewPrice    int64
	DropPercent float64
}

// Notifier delivers one alert over some channel.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Evaluator fans alerts out to notifiers. Delivery failures are independent:
// one notifier failing never suppresses the others, and none of them fail
// the price check that produced the event.
type Evaluator struct {
	notifiers []Notifier
}

// NewEvaluator builds an evaluator over the given notifiers.
func NewEvaluator(notifiers ...Notifier) *Evaluator {
	return &Evaluator{notifiers: notifiers}
}

// Fire delivers the event to every notifier, logging failures.
func (e *Evaluator) Fire(ctx context.Context, ev Event) {
	for _, n := range e.notifiers {
		if err := n.Notify(ctx, ev); err != nil {
			slog.Error("alert delivery failed",
				slog.Uint64("product_id", uint64(ev.ProductID)),
				slog.String("product", ev.ProductName),
				slog.String("error", err.Error()),
			)
		}
	}
}
