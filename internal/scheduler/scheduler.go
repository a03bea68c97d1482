package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"smart-mail-responder/internal/config"
	"smart-mail-responder/internal/metrics"
	"smart-mail-responder/internal/models"
	"smart-mail-responder/internal/queue"
	"smart-mail-responder/internal/repository"
)

// CycleRunner runs one fetch cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (models.FetchResult, error)
}

// Scheduler manages the periodic fetch cycle and retention purge
type Scheduler struct {
	cron         *cron.Cron
	entryID      cron.EntryID
	purgeEntryID cron.EntryID
	config       *config.SchedulerConfig
	retention    time.Duration
	fetcher      CycleRunner
	queue        *queue.Queue
	repo         *repository.Repository
	metrics      *metrics.Metrics
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	isRunning    bool
	lastResult   models.FetchResult
	lastErr      error
	mu           sync.RWMutex
}

// NewScheduler creates a new scheduler. queue, repo and metrics may be nil,
// which disables purging and queue gauges.
func NewScheduler(cfg *config.SchedulerConfig, retention time.Duration, fetcher CycleRunner,
	q *queue.Queue, repo *repository.Repository, m *metrics.Metrics) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:      newCron(),
		config:    cfg,
		retention: retention,
		fetcher:   fetcher,
		queue:     q,
		repo:      repo,
		metrics:   m,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func newCron() *cron.Cron {
	logger := cron.PrintfLogger(logrus.StandardLogger())
	return cron.New(cron.WithLogger(logger), cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}
	if s.config.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be greater than 0")
	}

	// A stopped cron cannot be restarted with fresh entries; rebuild it.
	s.cron = newCron()
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.entryID = s.cron.Schedule(cron.Every(s.config.Interval), cron.FuncJob(s.runCycle))

	if s.config.PurgeSchedule != "" && s.retention > 0 {
		entryID, err := s.cron.AddFunc(s.config.PurgeSchedule, s.purge)
		if err != nil {
			return fmt.Errorf("failed to add purge job: %w", err)
		}
		s.purgeEntryID = entryID
	}

	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started with interval: %s", s.config.Interval)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel, c := s.cancel, s.cron
	s.mu.Unlock()

	// Cancel context to stop any running operations
	cancel()

	ctx := c.Stop()

	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func (s *Scheduler) runContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

// runCycle is the function cron invokes each interval
func (s *Scheduler) runCycle() {
	s.wg.Add(1)
	defer s.wg.Done()

	if !s.IsRunning() {
		logrus.Info("Scheduler not running, skipping fetch cycle")
		return
	}
	if _, err := s.execute(s.runContext()); err != nil {
		logrus.Errorf("Fetch cycle failed: %v", err)
	}
}

func (s *Scheduler) execute(ctx context.Context) (models.FetchResult, error) {
	result, err := s.fetcher.RunCycle(ctx)

	s.mu.Lock()
	s.lastResult = result
	s.lastErr = err
	s.mu.Unlock()

	s.updateQueueGauges(ctx)
	return result, err
}

// RunOnce runs a fetch cycle now (for manual triggering). It joins a cycle
// that is already in progress.
func (s *Scheduler) RunOnce(ctx context.Context) (models.FetchResult, error) {
	logrus.Info("Running fetch cycle once")
	s.wg.Add(1)
	defer s.wg.Done()
	return s.execute(ctx)
}

// LastResult returns the outcome of the most recent cycle
func (s *Scheduler) LastResult() (models.FetchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResult, s.lastErr
}

func (s *Scheduler) purge() {
	s.wg.Add(1)
	defer s.wg.Done()

	jobs, logs, err := s.Purge(s.runContext())
	if err != nil {
		logrus.Errorf("Retention purge failed: %v", err)
		return
	}
	if jobs > 0 || logs > 0 {
		logrus.Infof("Purged %d finished jobs and %d reply log entries", jobs, logs)
	}
}

// Purge deletes finished jobs and reply logs older than the retention window.
func (s *Scheduler) Purge(ctx context.Context) (int64, int64, error) {
	var jobs, logs int64
	var err error
	if s.queue != nil {
		if jobs, err = s.queue.PurgeFinished(ctx, s.retention); err != nil {
			return 0, 0, err
		}
	}
	if s.repo != nil {
		if logs, err = s.repo.PurgeLogs(ctx, s.retention); err != nil {
			return jobs, 0, err
		}
	}
	return jobs, logs, nil
}

func (s *Scheduler) updateQueueGauges(ctx context.Context) {
	if s.queue == nil || s.metrics == nil {
		return
	}
	stats, err := s.queue.Stats(ctx)
	if err != nil {
		logrus.Warnf("Failed to read queue stats: %v", err)
		return
	}
	s.metrics.QueueDepth.WithLabelValues(string(models.JobPending)).Set(float64(stats.Pending))
	s.metrics.QueueDepth.WithLabelValues(string(models.JobInFlight)).Set(float64(stats.InFlight))
	s.metrics.QueueDepth.WithLabelValues(string(models.JobDone)).Set(float64(stats.Done))
	s.metrics.QueueDepth.WithLabelValues(string(models.JobFailed)).Set(float64(stats.Failed))
}

// GetNextRun returns the time of the next scheduled run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}

	entry := s.cron.Entry(s.entryID)
	return entry.Next
}

// GetLastRun returns the time of the last run
func (s *Scheduler) GetLastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}

	entry := s.cron.Entry(s.entryID)
	return entry.Prev
}

// Wait waits for running cycles to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
