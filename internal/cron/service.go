package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/luggagedeposit-backend/pkg/logger"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/metrics"
)

const defaultTick = time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Schedule *Schedule
	Locker   Locker
	Metrics  *metrics.CronJobMetrics
	// Tick is how often the schedule is checked for due jobs.
	Tick time.Duration
	// LockPrefix separates environments sharing one Redis.
	LockPrefix string
}

// Service runs scheduled jobs. Each job holds its own lock while it runs so
// several workers can share a schedule without running a job twice.
type Service struct {
	logg       *logger.Logger
	schedule   *Schedule
	locker     Locker
	metrics    *metrics.CronJobMetrics
	tick       time.Duration
	lockPrefix string
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("locker required")
	}
	schedule := params.Schedule
	if schedule == nil {
		schedule = NewSchedule()
	}
	tick := params.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	return &Service{
		logg:       params.Logger,
		schedule:   schedule,
		locker:     params.Locker,
		metrics:    params.Metrics,
		tick:       tick,
		lockPrefix: params.LockPrefix,
		now:        time.Now,
	}, nil
}

// Run checks the schedule immediately and then every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	s.logg.Info(s.logg.WithField(ctx, "jobs", s.schedule.Names()), "cron schedule loaded")
	if err := s.runDue(ctx); err != nil {
		s.logg.Error(ctx, "scheduled jobs failed", err)
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.runDue(ctx); err != nil {
				s.logg.Error(ctx, "scheduled jobs failed", err)
			}
		}
	}
}

// runDue runs every due job; one failure does not stop the others.
func (s *Service) runDue(ctx context.Context) error {
	var errs error
	for _, e := range s.schedule.due(s.now()) {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		if err := s.runLocked(ctx, e); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", e.job.Name(), err))
		}
	}
	return errs
}

func (s *Service) runLocked(ctx context.Context, e *entry) error {
	name := e.job.Name()
	jobCtx := s.logg.WithField(ctx, "job", name)

	key := s.locker.LockKey(s.lockName(name))
	owner, ok, err := s.locker.TryLock(ctx, key, e.every)
	if err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	if !ok {
		s.metrics.IncSkipped(name)
		s.logg.Debug(jobCtx, "job locked by another worker")
		return nil
	}
	defer func() {
		// The run context may already be cancelled; release regardless.
		if _, err := s.locker.Unlock(context.WithoutCancel(ctx), key, owner); err != nil {
			s.logg.Error(jobCtx, "release job lock", err)
		}
	}()

	start := s.now()
	items, err := e.job.Run(jobCtx)
	took := s.now().Sub(start)
	s.metrics.ObserveRun(name, took, items, err)

	jobCtx = s.logg.WithFields(jobCtx, map[string]any{
		"duration_ms": took.Milliseconds(),
		"items":       items,
	})
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return err
	}
	s.logg.Info(jobCtx, "job completed")
	return nil
}

func (s *Service) lockName(job string) string {
	if s.lockPrefix == "" {
		return "cron:" + job
	}
	return "cron:" + s.lockPrefix + ":" + job
}
