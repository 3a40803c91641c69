// Package sweeper periodically deletes expired email tokens so that
// unconsumed links do not accumulate in the durable store.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const jobName = "dramauth-token-sweep"

// Target is satisfied by *dramauth.Engine.
type Target interface {
	SweepExpiredTokens(ctx context.Context) (int, error)
}

// Config controls the sweep schedule.
type Config struct {
	// Interval between runs. Ignored when Cron is set.
	Interval time.Duration
	// Cron is an optional five-field cron expression.
	Cron string
	// Timeout bounds a single run. Zero means no bound.
	Timeout time.Duration
	// RunOnStart triggers one sweep as soon as the scheduler starts.
	RunOnStart bool
}

// Sweeper owns a gocron scheduler running a single sweep job.
type Sweeper struct {
	scheduler gocron.Scheduler
	target    Target
	logger    *zap.Logger
	timeout   time.Duration
}

// New registers the sweep job. Call Start to begin running it.
func New(target Target, cfg Config, logger *zap.Logger) (*Sweeper, error) {
	if target == nil {
		return nil, errors.New("sweeper: target is required")
	}
	if cfg.Cron == "" && cfg.Interval <= 0 {
		return nil, errors.New("sweeper: interval or cron expression is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	scheduler, err := gocron.NewScheduler(
		gocron.WithLogger(&gocronLoggerAdapter{logger: logger.Sugar()}),
	)
	if err != nil {
		return nil, err
	}
	s := &Sweeper{
		scheduler: scheduler,
		target:    target,
		logger:    logger.With(zap.String("job", jobName)),
		timeout:   cfg.Timeout,
	}

	definition := gocron.DurationJob(cfg.Interval)
	if cfg.Cron != "" {
		definition = gocron.CronJob(cfg.Cron, false)
	}
	opts := []gocron.JobOption{
		gocron.WithName(jobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if cfg.RunOnStart {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}
	if _, err := scheduler.NewJob(definition, gocron.NewTask(s.Run), opts...); err != nil {
		_ = scheduler.Shutdown()
		return nil, err
	}
	return s, nil
}

// Run performs one sweep. It is the scheduled task and may also be
// called directly.
func (s *Sweeper) Run(ctx context.Context) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	startedAt := time.Now()
	n, err := s.target.SweepExpiredTokens(ctx)
	elapsed := time.Since(startedAt)
	if err != nil {
		s.logger.Warn("sweep failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return
	}
	s.logger.Debug("sweep finished", zap.Int("removed", n), zap.Duration("elapsed", elapsed))
}

func (s *Sweeper) Start() {
	s.logger.Info("token sweeper starting")
	s.scheduler.Start()
}

// Shutdown stops the scheduler and waits for a running sweep.
func (s *Sweeper) Shutdown() error {
	s.logger.Info("token sweeper shutting down")
	return s.scheduler.Shutdown()
}

type gocronLoggerAdapter struct {
	logger *zap.SugaredLogger
}

var _ gocron.Logger = (*gocronLoggerAdapter)(nil)

func (a *gocronLoggerAdapter) Debug(msg string, args ...any) { a.logger.Debugw(msg, args...) }
func (a *gocronLoggerAdapter) Info(msg string, args ...any)  { a.logger.Infow(msg, args...) }
func (a *gocronLoggerAdapter) Warn(msg string, args ...any)  { a.logger.Warnw(msg, args...) }
func (a *gocronLoggerAdapter) Error(msg string, args ...any) { a.logger.Errorw(msg, args...) }
