// Package csvimport ingests products in bulk from CSV. Validation is all or
// nothing: one bad row rejects the whole file before anything is written.
// Creation is best effort: rows that fail to persist are reported
// individually while the rest go through.
package csvimport

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mjanda/go-price-tracker/models"
	"github.com/mjanda/go-price-tracker/parser"
)

const (
	defaultIntervalMinutes  = 60
	defaultThresholdPercent = 10
)

// Row is one parsed CSV line. Line numbering is 1-based over data rows, the
// header does not count.
type Row struct {
	Line                 int
	URL                  string
	ProductCode          string
	CheckIntervalMinutes int
	PriceAlertThreshold  int
}

// RowError ties an error message to its 1-based row.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"error"`
}

// ValidationError rejects an entire file.
type ValidationError struct {
	Errors []RowError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, re := range e.Errors {
		parts[i] = fmt.Sprintf("Row %d: %s", re.Row, re.Message)
	}
	return "CSV validation failed: " + strings.Join(parts, "; ")
}

// Result summarises one import run.
type Result struct {
	Total      int        `json:"total"`
	Successful int        `json:"successful"`
	Failed     int        `json:"failed"`
	Errors     []RowError `json:"errors,omitempty"`
	Message    string     `json:"message"`
}

// Parse reads CSV rows in the column order url, productCode, checkInterval,
// alertThreshold. The first line is treated as a header only when it
// mentions a url column. Missing or malformed numeric cells fall back to
// defaults, range checking happens in ValidateRows.
func Parse(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) > 0 && isHeader(records[0]) {
		records = records[1:]
	}

	var rows []Row
	line := 0
	for _, record := range records {
		if isBlank(record) {
			continue
		}
		line++
		row := Row{
			Line:                 line,
			CheckIntervalMinutes: defaultIntervalMinutes,
			PriceAlertThreshold:  defaultThresholdPercent,
		}
		if len(record) > 0 {
			row.URL = strings.TrimSpace(record[0])
		}
		if len(record) > 1 {
			row.ProductCode = strings.TrimSpace(record[1])
		}
		if len(record) > 2 {
			if v, err := strconv.Atoi(strings.TrimSpace(record[2])); err == nil {
				row.CheckIntervalMinutes = v
			}
		}
		if len(record) > 3 {
			if v, err := strconv.Atoi(strings.TrimSpace(record[3])); err == nil {
				row.PriceAlertThreshold = v
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isHeader(record []string) bool {
	for _, cell := range record {
		if strings.Contains(strings.ToLower(cell), "url") {
			return true
		}
	}
	return false
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// ValidateRows checks every row and returns all problems at once, or nil
// when the whole file is acceptable.
func ValidateRows(rows []Row) *ValidationError {
	var errs []RowError
	for _, row := range rows {
		if row.URL == "" && row.ProductCode == "" {
			errs = append(errs, RowError{Row: row.Line, Message: "Either URL or product code must be provided"})
		}
		if row.URL != "" && !parser.IsWellFormedURL(row.URL) {
			errs = append(errs, RowError{Row: row.Line, Message: "Invalid URL format"})
		}
		if row.CheckIntervalMinutes < 1 || row.CheckIntervalMinutes > 1440 {
			errs = append(errs, RowError{Row: row.Line, Message: "Check interval must be between 1 and 1440 minutes"})
		}
		if row.PriceAlertThreshold < 0 || row.PriceAlertThreshold > 100 {
			errs = append(errs, RowError{Row: row.Line, Message: "Alert threshold must be between 0 and 100 percent"})
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// ProductStore persists imported products.
type ProductStore interface {
	CreateProduct(p *models.Product) error
}

// Scheduler registers a recurring check for a created product.
type Scheduler interface {
	Schedule(p *models.Product) error
}

// Importer turns validated rows into tracked products.
type Importer struct {
	store     ProductStore
	scheduler Scheduler
}

// NewImporter builds an importer.
func NewImporter(store ProductStore, scheduler Scheduler) *Importer {
	return &Importer{store: store, scheduler: scheduler}
}

// Import parses, validates, and creates products from r. A validation
// failure aborts before any write. Creation failures are collected per row
// and do not stop the remaining rows.
func (im *Importer) Import(r io.Reader) (*Result, error) {
	rows, err := Parse(r)
	if err != nil {
		return nil, err
	}
	if verr := ValidateRows(rows); verr != nil {
		return nil, verr
	}

	result := &Result{Total: len(rows)}
	for _, row := range rows {
		if err := im.importRow(row); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, RowError{Row: row.Line, Message: err.Error()})
			continue
		}
		result.Successful++
	}
	result.Message = fmt.Sprintf("Imported %d of %d products successfully", result.Successful, result.Total)
	return result, nil
}

func (im *Importer) importRow(row Row) error {
	url := row.URL
	code := row.ProductCode
	if url == "" {
		url = parser.BuildSearchURL(code)
	}
	if code == "" {
		code = parser.ExtractProductCode(url)
	}

	p := &models.Product{
		URL:                  url,
		ProductCode:          code,
		CheckIntervalMinutes: row.CheckIntervalMinutes,
		PriceAlertThreshold:  row.PriceAlertThreshold,
	}
	if err := im.store.CreateProduct(p); err != nil {
		return err
	}
	return im.scheduler.Schedule(p)
}
