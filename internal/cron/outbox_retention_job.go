package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/luggagedeposit-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultDLQRetention    = 90 * 24 * time.Hour
	defaultMinAttempts     = 5
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedEventPurger interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, minAttempts int) (int64, error)
}

type deadLetterPurger interface {
	DeleteFailedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams configure the outbox cleanup. Zero durations fall
// back to 30 days for events and 90 days for dead letters. A nil DLQ skips
// the dead letter purge.
type OutboxRetentionJobParams struct {
	Logger       *logger.Logger
	DB           txRunner
	Events       publishedEventPurger
	DLQ          deadLetterPurger
	Retention    time.Duration
	DLQRetention time.Duration
	MinAttempts  int
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	db           txRunner
	events       publishedEventPurger
	dlq          deadLetterPurger
	retention    time.Duration
	dlqRetention time.Duration
	minAttempts  int
	now          func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Events == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:         params.Logger,
		db:           params.DB,
		events:       params.Events,
		dlq:          params.DLQ,
		retention:    params.Retention,
		dlqRetention: params.DLQRetention,
		minAttempts:  params.MinAttempts,
		now:          time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.dlqRetention <= 0 {
		job.dlqRetention = defaultDLQRetention
	}
	if job.minAttempts <= 0 {
		job.minAttempts = defaultMinAttempts
	}
	return job, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run deletes old published events, events stuck past the attempt budget,
// and expired dead letters in one transaction.
func (j *outboxRetentionJob) Run(ctx context.Context) (int64, error) {
	now := j.now().UTC()
	eventCutoff := now.Add(-j.retention)
	dlqCutoff := now.Add(-j.dlqRetention)

	var events, letters int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if events, err = j.events.DeletePublishedBefore(tx, eventCutoff, j.minAttempts); err != nil {
			return fmt.Errorf("purge outbox events: %w", err)
		}
		if j.dlq == nil {
			return nil
		}
		if letters, err = j.dlq.DeleteFailedBefore(tx, dlqCutoff); err != nil {
			return fmt.Errorf("purge dead letters: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if events+letters > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"events_cutoff":   eventCutoff.Format(time.RFC3339),
			"events_deleted":  events,
			"dlq_cutoff":      dlqCutoff.Format(time.RFC3339),
			"letters_deleted": letters,
		}), "outbox retention purge")
	}
	return events + letters, nil
}
