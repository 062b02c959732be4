// Package models defines the persisted entities of the tracker.
package models

import "time"

// Product is a tracked product whose price is polled on a schedule.
//
// Prices are stored as integer minor currency units (grosze), never floats.
// CurrentPrice and PreviousPrice are either both nil or both set;
// PriceChangePercent is stored as basis points (-10.50% = -1050) and is nil
// whenever either price is nil or the previous price is zero.
type Product struct {
	ID                   uint       `json:"id" gorm:"primaryKey"`
	Name                 string     `json:"name" gorm:"not null"`
	URL                  string     `json:"url" gorm:"size:2048;not null"`
	ProductCode          string     `json:"productCode" gorm:"size:64;index"`
	Category             string     `json:"category,omitempty" gorm:"size:255"`
	ImageURL             string     `json:"imageUrl,omitempty"`
	CurrentPrice         *int64     `json:"currentPrice"`
	PreviousPrice        *int64     `json:"previousPrice"`
	PriceChangePercent   *int64     `json:"priceChangePercent"`
	CheckIntervalMinutes int        `json:"checkIntervalMinutes" gorm:"not null;default:60"`
	PriceAlertThreshold  int        `json:"priceAlertThreshold" gorm:"not null;default:10"`
	LastCheckedAt        *time.Time `json:"lastCheckedAt"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// PricePoint is one observed price for a product. Append-only: a row is
// written on every successful scrape whether or not the price moved, and
// rows are only ever removed when the parent product is deleted or by the
// cleanup job's retention pruning.
type PricePoint struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	ProductID  uint      `json:"productId" gorm:"index;not null"`
	Price      int64     `json:"price" gorm:"not null"`
	RecordedAt time.Time `json:"recordedAt" gorm:"index;not null"`
}

// Job is a named recurring action with its own cron cadence, independent of
// any single product. JobType keys into the scheduler's handler registry.
type Job struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	Name            string     `json:"name" gorm:"not null"`
	Description     string     `json:"description"`
	JobType         string     `json:"jobType" gorm:"size:64;not null"`
	CronExpression  string     `json:"cronExpression" gorm:"size:128;not null"`
	IsActive        bool       `json:"isActive" gorm:"not null;default:true"`
	LastExecutedAt  *time.Time `json:"lastExecutedAt"`
	NextExecutionAt *time.Time `json:"nextExecutionAt"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Job execution statuses. An execution is created in StatusRunning and moves
// exactly once to StatusSuccess or StatusFailed.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// JobExecution is the audit record of one job run. It is created and
// completed by the same invocation; nothing else mutates it.
type JobExecution struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	JobID       uint       `json:"jobId" gorm:"index;not null"`
	Status      string     `json:"status" gorm:"size:16;not null"`
	StartedAt   time.Time  `json:"startedAt" gorm:"not null"`
	CompletedAt *time.Time `json:"completedAt"`
	DurationMs  *int64     `json:"durationMs"`
	Logs        string     `json:"logs"`
	Result      string     `json:"result"`
}
