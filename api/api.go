// Package api exposes the tracker over HTTP: product CRUD, manual checks,
// bulk import, job management, websocket notifications, and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mjanda/go-price-tracker/csvimport"
	"github.com/mjanda/go-price-tracker/export"
	"github.com/mjanda/go-price-tracker/jobs"
	"github.com/mjanda/go-price-tracker/models"
	"github.com/mjanda/go-price-tracker/notify"
	"github.com/mjanda/go-price-tracker/parser"
	"github.com/mjanda/go-price-tracker/scrape"
	"github.com/mjanda/go-price-tracker/store"
	"github.com/mjanda/go-price-tracker/track"
)

// Server wires the HTTP surface to the tracking engine.
type Server struct {
	store     *store.Store
	tracker   *track.Tracker
	scheduler *jobs.Scheduler
	importer  *csvimport.Importer
	hub       *notify.Hub
	metrics   *scrape.Metrics

	allowedOrigins []string
}

// NewServer builds the HTTP server over already constructed components.
func NewServer(st *store.Store, tracker *track.Tracker, scheduler *jobs.Scheduler, importer *csvimport.Importer, hub *notify.Hub, metrics *scrape.Metrics, allowedOrigins []string) *Server {
	return &Server{
		store:          st,
		tracker:        tracker,
		scheduler:      scheduler,
		importer:       importer,
		hub:            hub,
		metrics:        metrics,
		allowedOrigins: allowedOrigins,
	}
}

// Router assembles the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/notifications", s.hub.HandleWS)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", s.handleListProducts)
			r.Post("/", s.handleAddProduct)
			r.Post("/import", s.handleImport)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetProduct)
				r.Delete("/", s.handleDeleteProduct)
				r.Get("/history", s.handleHistory)
				r.Get("/export", s.handleExport)
				r.Post("/check", s.handleManualCheck)
				r.Patch("/interval", s.handleUpdateInterval)
				r.Patch("/threshold", s.handleUpdateThreshold)
			})
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/", s.handleCreateJob)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetJob)
				r.Patch("/", s.handleUpdateJob)
				r.Delete("/", s.handleDeleteJob)
				r.Post("/run", s.handleRunJob)
				r.Get("/executions", s.handleListExecutions)
			})
		})
	})

	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListProducts(w http.ResponseWriter, _ *http.Request) {
	products, err := s.store.ListProducts()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

type addProductRequest struct {
	URL                  string `json:"url"`
	ProductCode          string `json:"productCode"`
	Name                 string `json:"name"`
	CheckIntervalMinutes *int   `json:"checkIntervalMinutes"`
	PriceAlertThreshold  *int   `json:"priceAlertThreshold"`
}

func (s *Server) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	var req addProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.URL == "" && req.ProductCode == "" {
		writeMessage(w, http.StatusBadRequest, "Either URL or product code must be provided")
		return
	}

	url := req.URL
	code := req.ProductCode
	if url == "" {
		url = parser.BuildSearchURL(code)
	} else if !parser.IsWellFormedURL(url) {
		writeMessage(w, http.StatusBadRequest, "Invalid URL format")
		return
	}
	if code == "" {
		code = parser.ExtractProductCode(url)
	}

	p := &models.Product{
		Name:                 req.Name,
		URL:                  url,
		ProductCode:          code,
		CheckIntervalMinutes: 60,
		PriceAlertThreshold:  10,
	}
	if req.CheckIntervalMinutes != nil {
		if *req.CheckIntervalMinutes < 1 || *req.CheckIntervalMinutes > 1440 {
			writeMessage(w, http.StatusBadRequest, "Check interval must be between 1 and 1440 minutes")
			return
		}
		p.CheckIntervalMinutes = *req.CheckIntervalMinutes
	}
	if req.PriceAlertThreshold != nil {
		if *req.PriceAlertThreshold < 0 || *req.PriceAlertThreshold > 100 {
			writeMessage(w, http.StatusBadRequest, "Alert threshold must be between 0 and 100 percent")
			return
		}
		p.PriceAlertThreshold = *req.PriceAlertThreshold
	}

	if err := s.store.CreateProduct(p); err != nil {
		writeError(w, err)
		return
	}
	if err := s.tracker.Schedule(p); err != nil {
		writeError(w, err)
		return
	}

	// Populate name and price without blocking the response.
	go func(id uint) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.tracker.CheckPrice(ctx, id, "initial"); err != nil {
			slog.Warn("initial price check failed",
				slog.Uint64("product_id", uint64(id)),
				slog.String("error", err.Error()),
			)
		}
	}(p.ID)

	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	p, err := s.store.GetProduct(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	s.tracker.Unschedule(id)
	if err := s.store.DeleteProduct(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Product deleted"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if _, err := s.store.GetProduct(id); err != nil {
		writeError(w, err)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("days"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			points, err := s.store.PriceHistorySince(id, days)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, points)
			return
		}
	}

	points, err := s.store.PriceHistory(id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// handleExport streams the full price history as CSV or JSONL.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	p, err := s.store.GetProduct(id)
	if err != nil {
		writeError(w, err)
		return
	}
	points, err := s.store.PriceHistory(id, 10000)
	if err != nil {
		writeError(w, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "json":
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=history-%d.jsonl", id))
		if err := export.HistoryJSON(w, p, points); err != nil {
			slog.Error("history export failed", slog.String("error", err.Error()))
		}
	case "", "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=history-%d.csv", id))
		if err := export.HistoryCSV(w, p, points); err != nil {
			slog.Error("history export failed", slog.String("error", err.Error()))
		}
	default:
		writeMessage(w, http.StatusBadRequest, "format must be csv or json")
	}
}

func (s *Server) handleManualCheck(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	outcome, err := s.tracker.RequestCheck(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := s.store.GetProduct(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"product":    p,
		"priceFound": outcome.PriceFound,
		"alerted":    outcome.Alerted,
	})
}

func (s *Server) handleUpdateInterval(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req struct {
		CheckIntervalMinutes int `json:"checkIntervalMinutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CheckIntervalMinutes < 1 || req.CheckIntervalMinutes > 1440 {
		writeMessage(w, http.StatusBadRequest, "Check interval must be between 1 and 1440 minutes")
		return
	}
	if err := s.store.UpdateProduct(id, map[string]interface{}{"check_interval_minutes": req.CheckIntervalMinutes}); err != nil {
		writeError(w, err)
		return
	}
	p, err := s.store.GetProduct(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.tracker.Schedule(p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateThreshold(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req struct {
		PriceAlertThreshold int `json:"priceAlertThreshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PriceAlertThreshold < 0 || req.PriceAlertThreshold > 100 {
		writeMessage(w, http.StatusBadRequest, "Alert threshold must be between 0 and 100 percent")
		return
	}
	if err := s.store.UpdateProduct(id, map[string]interface{}{"price_alert_threshold": req.PriceAlertThreshold}); err != nil {
		writeError(w, err)
		return
	}
	p, err := s.store.GetProduct(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleImport accepts a CSV either as a multipart "file" field or as the
// raw request body.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var reader io.Reader = r.Body
	if file, _, err := r.FormFile("file"); err == nil {
		defer file.Close()
		reader = file
	}

	result, err := s.importer.Import(reader)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	jobsList, err := s.store.ListJobs()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobsList)
}

type jobRequest struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	JobType        string `json:"jobType"`
	CronExpression string `json:"cronExpression"`
	IsActive       *bool  `json:"isActive"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" || req.JobType == "" || req.CronExpression == "" {
		writeMessage(w, http.StatusBadRequest, "name, jobType, and cronExpression are required")
		return
	}

	job := &models.Job{
		Name:           req.Name,
		Description:    req.Description,
		JobType:        req.JobType,
		CronExpression: req.CronExpression,
		IsActive:       true,
	}
	if req.IsActive != nil {
		job.IsActive = *req.IsActive
	}
	if err := s.store.CreateJob(job); err != nil {
		writeError(w, err)
		return
	}
	if job.IsActive {
		if err := s.scheduler.Schedule(job); err != nil {
			// The job stays stored but dormant until its expression is fixed.
			slog.Error("job not scheduled",
				slog.Uint64("job_id", uint64(job.ID)),
				slog.String("error", err.Error()),
			)
		}
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	job, err := s.store.GetJob(id)
	if err != nil {
		writeError(w, err)
		return
	}
	execs, err := s.store.ListExecutions(id, 20)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job":        job,
		"executions": execs,
	})
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}
	if req.JobType != "" {
		updates["job_type"] = req.JobType
	}
	if req.CronExpression != "" {
		updates["cron_expression"] = req.CronExpression
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) > 0 {
		if err := s.store.UpdateJob(id, updates); err != nil {
			writeError(w, err)
			return
		}
	}

	job, err := s.store.GetJob(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if job.IsActive {
		if err := s.scheduler.Schedule(job); err != nil {
			slog.Error("job not rescheduled",
				slog.Uint64("job_id", uint64(job.ID)),
				slog.String("error", err.Error()),
			)
		}
	} else {
		s.scheduler.Unschedule(id)
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	s.scheduler.Unschedule(id)
	if err := s.store.DeleteJob(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Job deleted"})
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	exec, err := s.scheduler.Execute(r.Context(), id)
	if err != nil && exec == nil {
		writeError(w, err)
		return
	}
	// A failed run still returns its execution record.
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if _, err := s.store.GetJob(id); err != nil {
		writeError(w, err)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	execs, err := s.store.ListExecutions(id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, execs)
}

func idParam(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return uint(id), true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", slog.String("error", err.Error()))
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var cooldown *track.CooldownError
	var validation *csvimport.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict):
		writeMessage(w, http.StatusConflict, err.Error())
	case errors.As(err, &cooldown):
		writeMessage(w, http.StatusTooManyRequests, err.Error())
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  "CSV validation failed",
			"errors": validation.Errors,
		})
	default:
		writeMessage(w, http.StatusInternalServerError, err.Error())
	}
}
