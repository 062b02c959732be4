package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mjanda/go-price-tracker/alert"
)

// OwnerNotifier posts price drop alerts to the owner's webhook. An empty
// webhook URL disables it.
type OwnerNotifier struct {
	client     *resty.Client
	webhookURL string
}

// NewOwnerNotifier builds a webhook notifier with the given request timeout.
func NewOwnerNotifier(webhookURL string, timeout time.Duration) *OwnerNotifier {
	return &OwnerNotifier{
		client:     resty.New().SetTimeout(timeout),
		webhookURL: webhookURL,
	}
}

// WithClient swaps the underlying resty client, used by tests.
func (o *OwnerNotifier) WithClient(client *resty.Client) *OwnerNotifier {
	o.client = client
	return o
}

type webhookPayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Notify implements alert.Notifier.
func (o *OwnerNotifier) Notify(ctx context.Context, ev alert.Event) error {
	if o.webhookURL == "" {
		return nil
	}

	payload := webhookPayload{
		Title: fmt.Sprintf("Price drop: %s", ev.ProductName),
		Content: fmt.Sprintf("%s dropped %.2f%%: %.2f zł -> %.2f zł",
			ev.ProductName, ev.DropPercent,
			float64(ev.OldPrice)/100, float64(ev.NewPrice)/100),
	}

	resp, err := o.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(o.webhookURL)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("post webhook: status %d", resp.StatusCode())
	}
	return nil
}
