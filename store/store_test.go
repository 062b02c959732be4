package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mjanda/go-price-tracker/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "tracker.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func TestCreateProductRejectsDuplicates(t *testing.T) {
	s := newTestStore(t)

	first := &models.Product{
		Name:        "Laptop ASUS",
		URL:         "https://shop.test/laptop-asus-10751839.html",
		ProductCode: "10751839",
	}
	if err := s.CreateProduct(first); err != nil {
		t.Fatalf("create: %v", err)
	}

	sameCode := &models.Product{
		Name:        "Laptop ASUS again",
		URL:         "https://shop.test/other-url-10751839.html",
		ProductCode: "10751839",
	}
	if err := s.CreateProduct(sameCode); !errors.Is(err, ErrConflict) {
		t.Fatalf("same code: err=%v, want ErrConflict", err)
	}

	sameURL := &models.Product{
		Name: "Same URL",
		URL:  "https://shop.test/laptop-asus-10751839.html",
	}
	if err := s.CreateProduct(sameURL); !errors.Is(err, ErrConflict) {
		t.Fatalf("same url: err=%v, want ErrConflict", err)
	}
}

func TestGetProductNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetProduct(42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestUpdateProduct(t *testing.T) {
	s := newTestStore(t)

	p := &models.Product{Name: "Monitor", URL: "https://shop.test/monitor-555.html", ProductCode: "555"}
	if err := s.CreateProduct(p); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.UpdateProduct(p.ID, map[string]interface{}{"check_interval_minutes": 30}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetProduct(p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CheckIntervalMinutes != 30 {
		t.Fatalf("interval=%d, want 30", got.CheckIntervalMinutes)
	}

	if err := s.UpdateProduct(9999, map[string]interface{}{"name": "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing id: err=%v, want ErrNotFound", err)
	}
}

func TestDeleteProductRemovesHistory(t *testing.T) {
	s := newTestStore(t)

	p := &models.Product{Name: "GPU", URL: "https://shop.test/gpu-777.html", ProductCode: "777"}
	if err := s.CreateProduct(p); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.RecordPrice(p.ID, int64(100000+i), time.Now()); err != nil {
			t.Fatalf("record price: %v", err)
		}
	}

	if err := s.DeleteProduct(p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetProduct(p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("product should be gone, err=%v", err)
	}
	points, err := s.PriceHistory(p.ID, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(points) != 0 {
		t.Fatalf("orphaned price points: %d", len(points))
	}

	if err := s.DeleteProduct(p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete: err=%v, want ErrNotFound", err)
	}
}

func TestPriceHistoryOrderingAndLimit(t *testing.T) {
	s := newTestStore(t)

	p := &models.Product{Name: "SSD", URL: "https://shop.test/ssd-888.html", ProductCode: "888"}
	if err := s.CreateProduct(p); err != nil {
		t.Fatalf("create: %v", err)
	}

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		if err := s.RecordPrice(p.ID, int64(50000-i*100), base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	points, err := s.PriceHistory(p.ID, 3)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("len=%d, want 3", len(points))
	}
	if points[0].Price != 49600 {
		t.Fatalf("newest first expected, got price=%d", points[0].Price)
	}
}

func TestPrunePricePoints(t *testing.T) {
	s := newTestStore(t)

	p := &models.Product{Name: "RAM", URL: "https://shop.test/ram-999.html", ProductCode: "999"}
	if err := s.CreateProduct(p); err != nil {
		t.Fatalf("create: %v", err)
	}

	old := time.Now().AddDate(0, 0, -200)
	recent := time.Now().Add(-time.Hour)
	if err := s.RecordPrice(p.ID, 20000, old); err != nil {
		t.Fatalf("record old: %v", err)
	}
	if err := s.RecordPrice(p.ID, 19000, recent); err != nil {
		t.Fatalf("record recent: %v", err)
	}

	pruned, err := s.PrunePricePoints(time.Now().AddDate(0, 0, -180))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("pruned=%d, want 1", pruned)
	}

	points, err := s.PriceHistory(p.ID, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(points) != 1 || points[0].Price != 19000 {
		t.Fatalf("remaining points=%+v", points)
	}
}

func TestJobExecutionLifecycle(t *testing.T) {
	s := newTestStore(t)

	job := &models.Job{
		Name:           "nightly cleanup",
		JobType:        "cleanup",
		CronExpression: "0 0 3 * * *",
		IsActive:       true,
	}
	if err := s.CreateJob(job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	started := time.Now()
	exec, err := s.CreateExecution(job.ID, started, "Starting cleanup")
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}
	if exec.Status != models.StatusRunning {
		t.Fatalf("status=%q, want running", exec.Status)
	}

	completed := started.Add(2 * time.Second)
	if err := s.CompleteExecution(exec.ID, models.StatusSuccess, completed, 2000, "pruned 7 rows", "Cleanup finished"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	execs, err := s.ListExecutions(job.ID, 10)
	if err != nil {
		t.Fatalf("list executions: %v", err)
	}
	if len(execs) != 1 {
		t.Fatalf("executions=%d, want 1", len(execs))
	}
	got := execs[0]
	if got.Status != models.StatusSuccess {
		t.Fatalf("status=%q", got.Status)
	}
	if got.DurationMs == nil || *got.DurationMs != 2000 {
		t.Fatalf("duration=%v", got.DurationMs)
	}
	if got.Logs != "Starting cleanup\nCleanup finished" {
		t.Fatalf("logs=%q", got.Logs)
	}
}

func TestDeleteJobRemovesExecutions(t *testing.T) {
	s := newTestStore(t)

	job := &models.Job{Name: "sweep", JobType: "price_check", CronExpression: "0 */5 * * * *", IsActive: true}
	if err := s.CreateJob(job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if _, err := s.CreateExecution(job.ID, time.Now(), "start"); err != nil {
		t.Fatalf("create execution: %v", err)
	}

	if err := s.DeleteJob(job.ID); err != nil {
		t.Fatalf("delete job: %v", err)
	}
	if _, err := s.GetJob(job.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("job should be gone, err=%v", err)
	}
	execs, err := s.ListExecutions(job.ID, 10)
	if err != nil {
		t.Fatalf("list executions: %v", err)
	}
	if len(execs) != 0 {
		t.Fatalf("orphaned executions: %d", len(execs))
	}
}
