// Package export renders a product's price history as CSV or
// newline-delimited JSON for download.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/mjanda/go-price-tracker/models"
)

// FormatPrice renders minor units as a decimal string.
func FormatPrice(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// HistoryCSV writes one header row followed by one row per observation,
// newest first as given.
func HistoryCSV(w io.Writer, p *models.Product, points []models.PricePoint) error {
	cw := csv.NewWriter(w)
	header := []string{"product_code", "name", "price", "recorded_at"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, point := range points {
		record := []string{
			p.ProductCode,
			p.Name,
			FormatPrice(point.Price),
			point.RecordedAt.Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

type historyRecord struct {
	ProductCode string    `json:"productCode"`
	Name        string    `json:"name"`
	Price       int64     `json:"price"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// HistoryJSON writes observations in JSONL format, one record per line.
func HistoryJSON(w io.Writer, p *models.Product, points []models.PricePoint) error {
	encoder := json.NewEncoder(w)
	for _, point := range points {
		record := historyRecord{
			ProductCode: p.ProductCode,
			Name:        p.Name,
			Price:       point.Price,
			RecordedAt:  point.RecordedAt,
		}
		if err := encoder.Encode(record); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}
	return nil
}
