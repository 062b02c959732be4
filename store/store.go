// Package store is the gorm-backed persistence layer. The rest of the
// system consumes it as plain CRUD: schedulers and services depend on small
// interfaces this type satisfies, never on gorm itself.
package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mjanda/go-price-tracker/models"
)

// Sentinel errors distinguishing rejection kinds for callers.
var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: already exists")
)

// Store wraps the database handle.
type Store struct {
	db *gorm.DB
}

// Open connects to the sqlite database at path and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(
		&models.Product{},
		&models.PricePoint{},
		&models.Job{},
		&models.JobExecution{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// CreateProduct inserts a product, rejecting duplicates by resolved product
// code or identical URL before any write.
func (s *Store) CreateProduct(p *models.Product) error {
	var count int64
	q := s.db.Model(&models.Product{}).Where("url = ?", p.URL)
	if p.ProductCode != "" {
		q = s.db.Model(&models.Product{}).Where("url = ? OR product_code = ?", p.URL, p.ProductCode)
	}
	if err := q.Count(&count).Error; err != nil {
		return fmt.Errorf("probe duplicates: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: product with same code or URL", ErrConflict)
	}
	return s.db.Create(p).Error
}

// GetProduct returns one product by id.
func (s *Store) GetProduct(id uint) (*models.Product, error) {
	var p models.Product
	if err := s.db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &p, nil
}

// ListProducts returns all products, newest first.
func (s *Store) ListProducts() ([]models.Product, error) {
	var out []models.Product
	if err := s.db.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateProduct applies a partial update to one product.
func (s *Store) UpdateProduct(id uint, updates map[string]interface{}) error {
	res := s.db.Model(&models.Product{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: product %d", ErrNotFound, id)
	}
	return nil
}

// DeleteProduct removes a product and its price points in one transaction,
// history first. The caller must have unscheduled the product already.
func (s *Store) DeleteProduct(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var p models.Product
		if err := tx.First(&p, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: product %d", ErrNotFound, id)
			}
			return err
		}
		if err := tx.Where("product_id = ?", id).Delete(&models.PricePoint{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Product{}, id).Error
	})
}

// RecordPrice appends one price observation.
func (s *Store) RecordPrice(productID uint, price int64, at time.Time) error {
	return s.db.Create(&models.PricePoint{
		ProductID:  productID,
		Price:      price,
		RecordedAt: at,
	}).Error
}

// PriceHistory returns up to limit most recent observations for a product.
func (s *Store) PriceHistory(productID uint, limit int) ([]models.PricePoint, error) {
	var out []models.PricePoint
	err := s.db.Where("product_id = ?", productID).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// PriceHistorySince returns observations for a product newer than the
// given number of days.
func (s *Store) PriceHistorySince(productID uint, daysBack int) ([]models.PricePoint, error) {
	cutoff := time.Now().AddDate(0, 0, -daysBack)
	var out []models.PricePoint
	err := s.db.Where("product_id = ? AND recorded_at >= ?", productID, cutoff).
		Order("recorded_at DESC").
		Find(&out).Error
	return out, err
}

// PrunePricePoints deletes observations recorded before cutoff and reports
// how many rows went away. Used by the cleanup job.
func (s *Store) PrunePricePoints(cutoff time.Time) (int64, error) {
	res := s.db.Where("recorded_at < ?", cutoff).Delete(&models.PricePoint{})
	return res.RowsAffected, res.Error
}

// CreateJob inserts a job definition.
func (s *Store) CreateJob(j *models.Job) error {
	return s.db.Create(j).Error
}

// GetJob returns one job by id.
func (s *Store) GetJob(id uint) (*models.Job, error) {
	var j models.Job
	if err := s.db.First(&j, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: job %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &j, nil
}

// ListJobs returns all job definitions.
func (s *Store) ListJobs() ([]models.Job, error) {
	var out []models.Job
	if err := s.db.Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateJob applies a partial update to one job.
func (s *Store) UpdateJob(id uint, updates map[string]interface{}) error {
	res := s.db.Model(&models.Job{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: job %d", ErrNotFound, id)
	}
	return nil
}

// DeleteJob removes a job and its execution history.
func (s *Store) DeleteJob(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("job_id = ?", id).Delete(&models.JobExecution{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Job{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: job %d", ErrNotFound, id)
		}
		return nil
	})
}

// CreateExecution opens a job execution record in the running state.
func (s *Store) CreateExecution(jobID uint, startedAt time.Time, logLine string) (*models.JobExecution, error) {
	exec := &models.JobExecution{
		JobID:     jobID,
		Status:    models.StatusRunning,
		StartedAt: startedAt,
		Logs:      logLine,
	}
	if err := s.db.Create(exec).Error; err != nil {
		return nil, err
	}
	return exec, nil
}

// CompleteExecution moves an execution to its terminal state, appending to
// the log text rather than replacing it.
func (s *Store) CompleteExecution(id uint, status string, completedAt time.Time, durationMs int64, result, logLine string) error {
	var exec models.JobExecution
	if err := s.db.First(&exec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: execution %d", ErrNotFound, id)
		}
		return err
	}
	logs := exec.Logs
	if logLine != "" {
		logs = logs + "\n" + logLine
	}
	return s.db.Model(&exec).Updates(map[string]interface{}{
		"status":       status,
		"completed_at": completedAt,
		"duration_ms":  durationMs,
		"result":       result,
		"logs":         logs,
	}).Error
}

// ListExecutions returns up to limit most recent executions of a job.
func (s *Store) ListExecutions(jobID uint, limit int) ([]models.JobExecution, error) {
	var out []models.JobExecution
	err := s.db.Where("job_id = ?", jobID).
		Order("started_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
