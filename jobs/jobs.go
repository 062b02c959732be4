// Package jobs runs background jobs on cron schedules and records an audit
// trail of every execution.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mjanda/go-price-tracker/models"
	"github.com/mjanda/go-price-tracker/scrape"
)

// Store is the persistence surface the scheduler needs.
type Store interface {
	ListJobs() ([]models.Job, error)
	GetJob(id uint) (*models.Job, error)
	UpdateJob(id uint, updates map[string]interface{}) error
	CreateExecution(jobID uint, startedAt time.Time, logLine string) (*models.JobExecution, error)
	CompleteExecution(id uint, status string, completedAt time.Time, durationMs int64, result, logLine string) error
}

// Handler performs one job run and returns a human readable result.
type Handler func(ctx context.Context, job *models.Job) (result string, err error)

// cronParser accepts six field expressions with a seconds column.
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Scheduler dispatches jobs to handlers registered per job type. A job with
// an invalid cron expression or unknown type stays in the store untouched,
// it just never gets a cron entry.
type Scheduler struct {
	store   Store
	metrics *scrape.Metrics
	cron    *cron.Cron

	mu       sync.Mutex
	entries  map[uint]cron.EntryID
	handlers map[string]Handler
}

// NewScheduler builds a scheduler with an empty handler registry.
func NewScheduler(st Store, metrics *scrape.Metrics) *Scheduler {
	return &Scheduler{
		store:    st,
		metrics:  metrics,
		cron:     cron.New(cron.WithSeconds()),
		entries:  make(map[uint]cron.EntryID),
		handlers: make(map[string]Handler),
	}
}

// RegisterHandler binds a job type to its handler.
func (s *Scheduler) RegisterHandler(jobType string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[jobType] = h
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the runner and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// InitializeAll schedules every active job. Jobs that fail to schedule are
// logged and skipped so one bad expression cannot block the rest.
func (s *Scheduler) InitializeAll() {
	jobsList, err := s.store.ListJobs()
	if err != nil {
		slog.Error("list jobs", slog.String("error", err.Error()))
		return
	}
	scheduled := 0
	for i := range jobsList {
		if !jobsList[i].IsActive {
			continue
		}
		if err := s.Schedule(&jobsList[i]); err != nil {
			slog.Error("job not scheduled",
				slog.Uint64("job_id", uint64(jobsList[i].ID)),
				slog.String("name", jobsList[i].Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		scheduled++
	}
	slog.Info("job schedules initialized", slog.Int("jobs", scheduled))
}

// Schedule validates the job's cron expression and registers it, replacing
// any existing entry for the same job. Validation happens before touching
// the registry so an invalid expression leaves no partial state.
func (s *Scheduler) Schedule(job *models.Job) error {
	schedule, err := cronParser.Parse(job.CronExpression)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", job.CronExpression, err)
	}

	id := job.ID
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[id]; ok {
		s.cron.Remove(existing)
		delete(s.entries, id)
	}
	entry := s.cron.Schedule(schedule, cron.FuncJob(func() {
		if _, err := s.Execute(context.Background(), id); err != nil {
			slog.Error("job execution failed",
				slog.Uint64("job_id", uint64(id)),
				slog.String("error", err.Error()),
			)
		}
	}))
	s.entries[id] = entry

	next := schedule.Next(time.Now())
	if err := s.store.UpdateJob(id, map[string]interface{}{"next_execution_at": next}); err != nil {
		slog.Warn("next execution stamp failed",
			slog.Uint64("job_id", uint64(id)),
			slog.String("error", err.Error()),
		)
	}
	slog.Info("job scheduled",
		slog.Uint64("job_id", uint64(id)),
		slog.String("name", job.Name),
		slog.String("cron", job.CronExpression),
	)
	return nil
}

// Unschedule removes the job's cron entry. Unknown ids are a no-op.
func (s *Scheduler) Unschedule(jobID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[jobID]; ok {
		s.cron.Remove(entry)
		delete(s.entries, jobID)
	}
}

// ScheduledCount reports how many jobs hold a cron entry.
func (s *Scheduler) ScheduledCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// ScheduledJobs returns the ids of jobs holding a live cron entry, sorted.
// Jobs whose expression failed validation never appear here.
func (s *Scheduler) ScheduledJobs() []uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Execute runs a job once, right now. Every run produces exactly one
// execution record that moves from running to a single terminal state, even
// when the handler panics.
func (s *Scheduler) Execute(ctx context.Context, jobID uint) (*models.JobExecution, error) {
	job, err := s.store.GetJob(jobID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	exec, err := s.store.CreateExecution(jobID, started, fmt.Sprintf("Starting job: %s", job.Name))
	if err != nil {
		return nil, fmt.Errorf("open execution: %w", err)
	}

	s.mu.Lock()
	handler, ok := s.handlers[job.JobType]
	s.mu.Unlock()

	var result, stack string
	var runErr error
	if !ok {
		runErr = fmt.Errorf("no handler for job type: %s", job.JobType)
	} else {
		result, stack, runErr = s.runHandler(ctx, handler, job)
	}

	completed := time.Now()
	durationMs := completed.Sub(started).Milliseconds()

	status := models.StatusSuccess
	finalResult := result
	logLine := fmt.Sprintf("Job completed in %dms", durationMs)
	if runErr != nil {
		status = models.StatusFailed
		finalResult = runErr.Error()
		logLine = fmt.Sprintf("Job failed: %s", runErr.Error())
		if stack != "" {
			logLine += "\n" + stack
		}
	}
	if err := s.store.CompleteExecution(exec.ID, status, completed, durationMs, finalResult, logLine); err != nil {
		return nil, fmt.Errorf("close execution: %w", err)
	}
	s.metrics.IncJobExecution(status)

	if runErr == nil {
		updates := map[string]interface{}{"last_executed_at": completed}
		s.mu.Lock()
		_, stillScheduled := s.entries[jobID]
		s.mu.Unlock()
		if stillScheduled {
			if schedule, perr := cronParser.Parse(job.CronExpression); perr == nil {
				updates["next_execution_at"] = schedule.Next(completed)
			}
		}
		if err := s.store.UpdateJob(jobID, updates); err != nil {
			slog.Warn("job stamp failed",
				slog.Uint64("job_id", uint64(jobID)),
				slog.String("error", err.Error()),
			)
		}
	}

	exec.Status = status
	exec.CompletedAt = &completed
	exec.DurationMs = &durationMs
	exec.Result = finalResult
	return exec, runErr
}

// runHandler isolates handler panics so a bad job cannot take the runner
// down and the execution record still reaches a terminal state. A panic's
// stack trace goes into the execution log.
func (s *Scheduler) runHandler(ctx context.Context, handler Handler, job *models.Job) (result, stack string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
			stack = string(debug.Stack())
		}
	}()
	result, err = handler(ctx, job)
	return result, "", err
}
