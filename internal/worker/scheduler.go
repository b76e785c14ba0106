package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/orderdesk/internal/catalog"
	"github.com/spec-kit/orderdesk/internal/config"
	"github.com/spec-kit/orderdesk/internal/service"
)

// Job is one periodic task.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler runs periodic jobs. A job still running when its next tick fires
// is skipped for that tick.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLogger := cronLogAdapter{logger: logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers a job.
func (s *Scheduler) Add(job Job) error {
	_, err := s.cron.AddFunc(job.Schedule, func() {
		started := time.Now()
		if err := job.Run(s.ctx); err != nil {
			s.logger.Error("job failed", zap.String("job", job.Name), zap.Duration("took", time.Since(started)), zap.Error(err))
			return
		}
		s.logger.Debug("job finished", zap.String("job", job.Name), zap.Duration("took", time.Since(started)))
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", job.Name, job.Schedule, err)
	}
	return nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop cancels running jobs and waits for them until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

// DefaultJobs returns the inactivity sweep, the retention purge and, when a
// coordinator is given, the catalog refresh.
func DefaultJobs(tickets config.TicketConfig, catalogCfg config.CatalogConfig, inactivity *service.InactivityService, coordinator *catalog.Coordinator) []Job {
	jobs := []Job{
		{
			Name:     "inactivity_sweep",
			Schedule: tickets.SweepSchedule,
			Run: func(ctx context.Context) error {
				_, err := inactivity.Sweep(ctx)
				return err
			},
		},
		{
			Name:     "ticket_retention",
			Schedule: tickets.RetentionSchedule,
			Run: func(ctx context.Context) error {
				_, err := inactivity.PurgeClosed(ctx)
				return err
			},
		},
	}
	if coordinator != nil {
		jobs = append(jobs, Job{
			Name:     "catalog_refresh",
			Schedule: catalogCfg.RefreshSchedule,
			Run:      coordinator.PeriodicRefresh,
		})
	}
	return jobs
}

type cronLogAdapter struct {
	logger *zap.SugaredLogger
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debugw(msg, keysAndValues...)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
