package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mjanda/go-price-tracker/alert"
	"github.com/mjanda/go-price-tracker/api"
	"github.com/mjanda/go-price-tracker/config"
	"github.com/mjanda/go-price-tracker/csvimport"
	"github.com/mjanda/go-price-tracker/fetch"
	"github.com/mjanda/go-price-tracker/jobs"
	"github.com/mjanda/go-price-tracker/models"
	"github.com/mjanda/go-price-tracker/notify"
	"github.com/mjanda/go-price-tracker/scrape"
	"github.com/mjanda/go-price-tracker/store"
	"github.com/mjanda/go-price-tracker/track"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid environment", slog.Any("error", err))
		os.Exit(1)
	}

	addr := flag.String("addr", cfg.ListenAddr, "HTTP listen address")
	dbPath := flag.String("db", cfg.DatabasePath, "SQLite database path")
	fetchMode := flag.String("fetch-mode", cfg.FetchMode, "Page fetch mode: browser or static")
	webhook := flag.String("owner-webhook", cfg.OwnerWebhookURL, "Webhook URL for owner notifications")
	origins := flag.String("origins", strings.Join(cfg.AllowedOrigins, ","), "Comma-separated allowed CORS origins")
	verbose := flag.Bool("v", cfg.Verbose, "Enable verbose logging")
	flag.Parse()

	cfg.ListenAddr = *addr
	cfg.DatabasePath = *dbPath
	cfg.FetchMode = strings.ToLower(*fetchMode)
	cfg.OwnerWebhookURL = *webhook
	cfg.AllowedOrigins = strings.Split(*origins, ",")
	cfg.Verbose = *verbose

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("creating database directory", slog.Any("error", err))
			os.Exit(1)
		}
	}
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		slog.Error("opening store", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := scrape.NewMetrics()

	var fetcher fetch.Fetcher
	var browser *fetch.BrowserFetcher
	if cfg.FetchMode == config.FetchModeBrowser {
		browser = fetch.NewBrowserFetcher(cfg)
		fetcher = browser
	} else {
		fetcher = fetch.NewStaticFetcher(cfg)
	}
	if cfg.MaxRetries > 0 {
		fetcher = fetch.NewRetryingFetcher(fetcher, cfg.MaxRetries, cfg.RetryBackoff, cfg.RetryBackoffMax)
	}
	if cfg.PageCacheSize > 0 {
		fetcher = fetch.NewCachingFetcher(fetcher, cfg.PageCacheSize, cfg.PageCacheTTL)
	}

	scraper := scrape.NewService(fetcher, metrics)
	hub := notify.NewHub(originChecker(cfg.AllowedOrigins))
	owner := notify.NewOwnerNotifier(cfg.OwnerWebhookURL, cfg.OwnerTimeout)
	evaluator := alert.NewEvaluator(hub, owner)

	tracker := track.New(st, scraper, metrics, evaluator, cfg.MaxConcurrentChecks, cfg.ManualCheckCooldown)
	scheduler := jobs.NewScheduler(st, metrics)
	scheduler.RegisterHandler("price_check", jobs.PriceCheckHandler(st, tracker))
	scheduler.RegisterHandler("cleanup", jobs.CleanupHandler(st, cfg.HistoryRetentionDays))
	scheduler.RegisterHandler("report", jobs.ReportHandler(st))
	scheduler.RegisterHandler("custom", jobs.CustomHandler())

	if err := ensureDefaultJobs(st); err != nil {
		slog.Error("seeding default jobs", slog.Any("error", err))
		os.Exit(1)
	}
	if err := tracker.InitializeAll(); err != nil {
		slog.Error("initialising product schedules", slog.Any("error", err))
		os.Exit(1)
	}
	scheduler.InitializeAll()
	tracker.Start()
	scheduler.Start()

	importer := csvimport.NewImporter(st, tracker)
	server := api.NewServer(st, tracker, scheduler, importer, hub, metrics, cfg.AllowedOrigins)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("tracker listening",
			slog.String("addr", cfg.ListenAddr),
			slog.String("fetch_mode", cfg.FetchMode),
			slog.String("db", cfg.DatabasePath),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received, waiting for in-flight work to finish")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", slog.Any("error", err))
	}
	tracker.Stop()
	scheduler.Stop()
	hub.Close()
	if browser != nil {
		browser.Close()
	}
	slog.Info("tracker stopped")
}

// ensureDefaultJobs seeds a nightly cleanup job on first boot so price
// history never grows unbounded.
func ensureDefaultJobs(st *store.Store) error {
	existing, err := st.ListJobs()
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	return st.CreateJob(&models.Job{
		Name:           "Nightly history cleanup",
		Description:    "Prunes price observations past the retention window",
		JobType:        "cleanup",
		CronExpression: "0 0 3 * * *",
		IsActive:       true,
	})
}

func originChecker(allowed []string) func(*http.Request) bool {
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		allowedSet[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := allowedSet[r.Header.Get("Origin")]
		return ok
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
