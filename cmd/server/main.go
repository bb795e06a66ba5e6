package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"jobpilot/internal/api/handlers"
	"jobpilot/internal/api/routes"
	"jobpilot/internal/applicator"
	"jobpilot/internal/automation"
	"jobpilot/internal/background"
	"jobpilot/internal/browser"
	"jobpilot/internal/captcha"
	"jobpilot/internal/config"
	"jobpilot/internal/credentials"
	"jobpilot/internal/discovery"
	"jobpilot/internal/lock"
	"jobpilot/internal/logging"
	"jobpilot/internal/logging/types"
	"jobpilot/internal/maintenance"
	"jobpilot/internal/metrics"
	"jobpilot/internal/notify"
	"jobpilot/internal/queue"
	"jobpilot/internal/ratelimit"
	"jobpilot/internal/scheduler"
	"jobpilot/internal/scraper"
	"jobpilot/internal/scraper/throttle"
	"jobpilot/internal/store"
	"jobpilot/pkg/utils"
)

// staleGrace is how far past the hard ceiling a processing item may sit
// before the cleanup sweep reclaims it. It outlasts the apply lock TTL.
const staleGrace = 5 * time.Minute

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logging.InitializeLogging(cfg); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.CloseLogging()

	logger := logging.GetGlobalLogger()
	logger.Info("Starting jobpilot", map[string]interface{}{"version": handlers.Version})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open store", map[string]interface{}{"error": err.Error()})
	}
	defer st.Close()

	// Redis backs locks, task results and notifications when enabled
	var rc *utils.RedisClient
	if cfg.Redis.Enabled {
		rc = utils.NewRedisClient(cfg)
		pingCtx, pingCancel := context.WithTimeout(ctx, cfg.Redis.Timeout)
		err := rc.Ping(pingCtx)
		pingCancel()
		if err != nil {
			logger.Warn("Redis unavailable, falling back to in-process locks and stores", map[string]interface{}{
				"error": err.Error(),
			})
			_ = rc.Close()
			rc = nil
		} else {
			defer rc.Close()
		}
	}

	var locker lock.Locker = lock.NewLocalLocker()
	var taskStore background.TaskStore = background.NewInMemoryTaskStore()
	var sink notify.Sink = notify.NewLogSink(logger)
	if rc != nil {
		locker = lock.NewRedisLocker(rc.Client(), rc.Key("lock")+":")
		if cfg.BackgroundTasks.Store == "redis" {
			taskStore = background.NewRedisTaskStore(rc, cfg.BackgroundTasks.MaxTaskAge)
		}
		if cfg.Notifications.Sink == "redis" {
			sink = notify.NewRedisSink(rc, cfg.Notifications.Channel)
		}
	}

	creds, err := credentialProvider(cfg, st, logger)
	if err != nil {
		logger.Fatal("Failed to configure credentials", map[string]interface{}{"error": err.Error()})
	}

	// Browser shared by the headed scraping engine and the apply flows
	launcher := browser.NewRodLauncher(browser.LaunchConfig{
		Headless:        cfg.Browser.Headless,
		Stealth:         cfg.Browser.StealthMode,
		UserAgent:       cfg.Browser.UserAgent,
		ChromePath:      cfg.Browser.ChromePath,
		PageLoadTimeout: cfg.Automation.PageLoad,
		ElementTimeout:  cfg.Automation.ElementWait,
	}, logger)
	defer launcher.Close()

	// Discovery
	hostLimiter := throttle.New(throttle.Config{RequestsPerMinute: cfg.Scraper.RequestsPerMin}, logger)
	sources, err := scraper.NewFactory(cfg, launcher, hostLimiter, logger).Sources()
	if err != nil {
		logger.Fatal("Failed to build scrapers", map[string]interface{}{"error": err.Error()})
	}

	queueManager := queue.NewManager(st, cfg.Automation.MaxRetries, logger)
	discoveryService := discovery.New(st, queueManager, sources, discovery.Options{
		Threshold: cfg.Automation.MatchThreshold,
	}, logger)

	// Application
	solver := captcha.NewTwoCaptchaSolver(captcha.Config{
		APIKey:  cfg.Scraper.Captcha.APIKey,
		Timeout: cfg.Scraper.Captcha.Timeout,
		Enabled: cfg.Scraper.Captcha.EnableAutoSolve,
	}, logger)
	platformOpts := automation.Options{
		ElementWait:  cfg.Automation.ElementWait,
		MaxFormSteps: cfg.Automation.MaxFormSteps,
		Solver:       solver,
		Logger:       logger,
	}
	executor := automation.NewExecutor(
		automation.NewRegistry(automation.NewIndeed(platformOpts), automation.NewLinkedIn(platformOpts)),
		launcher, cfg.Automation.SoftTimeout, logger,
	)

	rateLimiter := ratelimit.New(st, cfg.RateLimits, logger)
	app := applicator.New(st, rateLimiter, executor, creds, locker, sink, applicator.Options{
		MaxRetries:   cfg.Automation.MaxRetries,
		RetryBackoff: cfg.Automation.RetryBackoff,
		HardTimeout:  cfg.Automation.HardTimeout,
		DefaultYears: cfg.Automation.DefaultYears,
		ResumeDir:    cfg.Automation.ResumeDir,
	}, logger)

	retention := maintenance.DefaultRetention()
	retention.StaleProcessing = cfg.Automation.HardTimeout + staleGrace
	retention.RetryBackoff = cfg.Automation.RetryBackoff
	retention.MaxRetries = cfg.Automation.MaxRetries
	maintenanceService := maintenance.New(st, sink, retention, logger)

	// Initialize background task manager
	taskManager := background.NewManager(background.Config{
		Workers:         cfg.Workers.PoolSize,
		QueueSize:       cfg.Workers.QueueSize,
		TaskTimeout:     cfg.BackgroundTasks.TaskTimeout,
		CleanupInterval: cfg.BackgroundTasks.CleanupInterval,
		MaxTaskAge:      cfg.BackgroundTasks.MaxTaskAge,
	}, taskStore, logger)
	if err := taskManager.Start(ctx); err != nil {
		logger.Fatal("Failed to start task manager", map[string]interface{}{"error": err.Error()})
	}

	sched := scheduler.New(scheduler.Config{
		ScrapeSpec:    cfg.Scheduler.ScrapeSpec,
		DrainSpec:     cfg.Scheduler.DrainSpec,
		CleanupSpec:   cfg.Scheduler.CleanupSpec,
		SummarySpec:   cfg.Scheduler.SummarySpec,
		DrainBatch:    cfg.Scheduler.DrainBatch,
		LockTTL:       cfg.Scheduler.SweepLockTTL,
		ScrapeOnStart: cfg.Scheduler.ScrapeOnStart,
	}, scheduler.Deps{
		Discovery:   discoveryService,
		Queue:       queueManager,
		Applicator:  app,
		Maintenance: maintenanceService,
		Pool:        taskManager,
		Locker:      locker,
	}, logger)
	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			logger.Fatal("Failed to start scheduler", map[string]interface{}{"error": err.Error()})
		}
	} else {
		logger.Info("Scheduler disabled; sweeps run only on demand")
	}

	if cfg.Metrics.Enabled {
		metrics.MustRegister()
	}

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	e.Server.IdleTimeout = cfg.Server.IdleTimeout

	checks := []handlers.ReadinessCheck{
		{Name: "database", Check: st.Ping},
		{Name: "workers", Check: func(context.Context) error {
			if !taskManager.IsHealthy() {
				return errors.New("task manager not running")
			}
			return nil
		}},
	}
	if rc != nil {
		checks = append(checks, handlers.ReadinessCheck{Name: "redis", Check: rc.Ping})
	}

	routes.SetupRoutes(e, cfg, routes.Deps{
		Queue:    queueManager,
		Rates:    rateLimiter,
		Accounts: st,
		Logs:     st,
		Listings: st,
		Scraper:  sched,
		Tasks:    taskManager,
		Checks:   checks,
		Logger:   logger,
	})

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		logger.Info("Stopping HTTP server...")
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down server", map[string]interface{}{"error": err.Error()})
		}

		logger.Info("Stopping scheduler...")
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping scheduler", map[string]interface{}{"error": err.Error()})
		}

		logger.Info("Stopping background task manager...")
		if err := taskManager.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping task manager", map[string]interface{}{"error": err.Error()})
		}

		cancel()
	}()

	// Start server
	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("Server starting", map[string]interface{}{"address": address})

	if err := e.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed", map[string]interface{}{"error": err.Error()})
		return
	}
	<-ctx.Done()
	logger.Info("Server shutdown complete")
}

func openStore(ctx context.Context, cfg *config.Config, logger types.Logger) (store.Store, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory store; data is lost on restart")
		return store.NewMemoryStore(), nil
	}

	pool, err := store.NewPostgresPool(ctx, store.PoolConfig{
		URL:            cfg.Database.URL,
		MaxConns:       cfg.Database.MaxConns,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	})
	if err != nil {
		return nil, err
	}

	pg := store.NewPostgresStore(pool, logger.WithField("component", "store"))
	if cfg.Database.AutoMigrate {
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
	}
	return pg, nil
}

func credentialProvider(cfg *config.Config, st store.Store, logger types.Logger) (credentials.Provider, error) {
	if cfg.Credentials.Source == "keyring" {
		return credentials.NewKeyringProvider(cfg.Credentials.KeyringService), nil
	}

	dec := credentials.Plaintext
	if cfg.Credentials.EncryptionKey != "" {
		var err error
		if dec, err = credentials.NewAESGCMDecrypter(cfg.Credentials.EncryptionKey); err != nil {
			return nil, fmt.Errorf("credential encryption key: %w", err)
		}
	} else {
		logger.Warn("No credential encryption key configured; stored credentials are read as plaintext")
	}
	return credentials.NewDBProvider(st, dec, logger), nil
}
