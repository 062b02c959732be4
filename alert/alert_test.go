package alert

import (
	"context"
	"errors"
	"testing"
)

func ptr(v int64) *int64 { return &v }

func TestChangeBasisPoints(t *testing.T) {
	tests := []struct {
		name     string
		previous *int64
		current  int64
		want     int64
	}{
		{"no previous price", nil, 54900, 0},
		{"zero previous price", ptr(0), 54900, 0},
		{"ten percent drop", ptr(100000), 90000, -1000},
		{"ten percent rise", ptr(100000), 110000, 1000},
		{"unchanged", ptr(54900), 54900, 0},
		{"rounds to nearest", ptr(30000), 29999, 0},
		{"small drop", ptr(30000), 29990, -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChangeBasisPoints(tt.previous, tt.current); got != tt.want {
				t.Fatalf("ChangeBasisPoints(%v, %d)=%d, want %d", tt.previous, tt.current, got, tt.want)
			}
		})
	}
}

func TestShouldAlert(t *testing.T) {
	tests := []struct {
		name      string
		changeBps int64
		threshold int
		want      bool
	}{
		{"drop exactly on threshold fires", -1000, 10, true},
		{"one basis point under does not", -999, 10, false},
		{"deep drop fires", -2550, 10, true},
		{"rise never fires", 1500, 10, false},
		{"unchanged never fires", 0, 0, false},
		{"zero threshold fires on any drop", -1, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldAlert(tt.changeBps, tt.threshold); got != tt.want {
				t.Fatalf("ShouldAlert(%d, %d)=%v, want %v", tt.changeBps, tt.threshold, got, tt.want)
			}
		})
	}
}

type recordingNotifier struct {
	events []Event
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, ev Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func TestFireDeliversToAllNotifiersDespiteFailures(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("webhook down")}
	healthy := &recordingNotifier{}

	ev := Event{ProductID: 1, ProductName: "Laptop", OldPrice: 100000, NewPrice: 85000, DropPercent: 15}
	NewEvaluator(failing, healthy).Fire(context.Background(), ev)

	if len(failing.events) != 1 || len(healthy.events) != 1 {
		t.Fatalf("deliveries: failing=%d healthy=%d, want 1 each", len(failing.events), len(healthy.events))
	}
	if healthy.events[0].NewPrice != 85000 {
		t.Fatalf("event=%+v", healthy.events[0])
	}
}
