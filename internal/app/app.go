package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"smart-mail-responder/internal/ai"
	"smart-mail-responder/internal/classifier"
	"smart-mail-responder/internal/composer"
	"smart-mail-responder/internal/config"
	"smart-mail-responder/internal/db"
	"smart-mail-responder/internal/fetcher"
	"smart-mail-responder/internal/handlers"
	"smart-mail-responder/internal/mailbox"
	"smart-mail-responder/internal/metrics"
	"smart-mail-responder/internal/queue"
	"smart-mail-responder/internal/repository"
	"smart-mail-responder/internal/scheduler"
	"smart-mail-responder/internal/server"
	"smart-mail-responder/internal/worker"
)

// SetupLogging configures the global logrus logger.
func SetupLogging(cfg config.LogConfig) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// Store bundles the database-backed components.
type Store struct {
	DB    *gorm.DB
	Repo  *repository.Repository
	Queue *queue.Queue
}

// OpenStore connects to the database and builds the queue and repository.
func OpenStore(cfg *config.Config) (*Store, error) {
	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return &Store{
		DB:   dbConn,
		Repo: repository.New(dbConn),
		Queue: queue.New(dbConn, queue.Options{
			VisibilityTimeout: cfg.Worker.VisibilityTimeout,
			PollInterval:      cfg.Worker.PollInterval,
		}),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NewResponder builds the classifier and the composer, failing fast on
// missing templates or keyword sets.
func NewResponder(cfg *config.Config) (classifier.Classifier, *composer.Composer, error) {
	var completer classifier.Completer
	if cfg.AI.APIKey != "" {
		completer = ai.NewClient(cfg.AI)
	}
	cls, err := classifier.New(cfg.Classifier, completer)
	if err != nil {
		return nil, nil, err
	}

	comp, err := composer.New(cfg.Replies.Templates)
	if err != nil {
		return nil, nil, err
	}
	if err := comp.Validate(); err != nil {
		return nil, nil, err
	}
	return cls, comp, nil
}

// App is the assembled service.
type App struct {
	Config    *config.Config
	Store     *Store
	Mailbox   mailbox.Client
	Metrics   *metrics.Metrics
	Fetcher   *fetcher.Fetcher
	Pool      *worker.Pool
	Scheduler *scheduler.Scheduler
	Server    *http.Server
}

// New wires every component from configuration.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	cls, comp, err := NewResponder(cfg)
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}

	box, err := mailbox.New(ctx, cfg.Mailbox)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create mailbox client: %w", err)
	}
	logrus.WithField("mailbox", box.Name()).Info("Mailbox client ready")

	m := metrics.NewMetrics()
	f := fetcher.New(box, store.Repo, store.Queue, m)
	pool := worker.NewPool(worker.OptionsFromConfig(cfg.Worker), store.Queue, store.Repo, box, cls, comp, m)
	sched := scheduler.NewScheduler(&cfg.Scheduler, cfg.Worker.Retention, f, store.Queue, store.Repo, m)

	h := handlers.NewHandlers(store.DB, store.Queue, store.Repo, sched, cls, comp, box.Name())
	srv := server.New(cfg.Server, server.SetupRouter(h))

	return &App{
		Config:    cfg,
		Store:     store,
		Mailbox:   box,
		Metrics:   m,
		Fetcher:   f,
		Pool:      pool,
		Scheduler: sched,
		Server:    srv,
	}, nil
}

// Serve starts the workers, the scheduler and the HTTP server, and blocks
// until ctx is done. Shutdown stops fetching first, then drains the workers.
func (a *App) Serve(ctx context.Context) error {
	if err := a.Pool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	if err := a.Scheduler.Start(); err != nil {
		a.Pool.Stop()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		logrus.Infof("Starting HTTP server on %s", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logrus.Info("Shutting down...")
	case err := <-serverErr:
		runErr = fmt.Errorf("HTTP server error: %w", err)
	}

	if err := a.Scheduler.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	a.Scheduler.Wait()
	a.Pool.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}
	return runErr
}

// Close releases the mailbox and database connections.
func (a *App) Close() {
	if err := a.Mailbox.Close(); err != nil {
		logrus.Errorf("Failed to close mailbox client: %v", err)
	}
	if err := a.Store.Close(); err != nil {
		logrus.Errorf("Failed to close database: %v", err)
	}
}

// Run loads configuration from configPath and serves until SIGINT or SIGTERM.
func Run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	SetupLogging(cfg.Log)
	logrus.Info("Starting Smart Mail Responder")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Serve(ctx); err != nil {
		return err
	}
	logrus.Info("Server stopped gracefully")
	return nil
}
