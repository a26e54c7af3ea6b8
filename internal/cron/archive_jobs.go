package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/luggagedeposit-backend/internal/archive"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/logger"
)

type bookingArchiver interface {
	ArchiveStale(ctx context.Context, cutoffDays int) (*archive.Result, error)
	ArchiveCancelledBefore(ctx context.Context, retentionDays int) (*archive.Result, error)
}

// ArchiveJobParams configure the booking archive jobs.
type ArchiveJobParams struct {
	Logger   *logger.Logger
	Archiver bookingArchiver
	// Days is the stale cutoff for the stale job and the retention window
	// for the cancelled job.
	Days int
}

func validateArchiveParams(params ArchiveJobParams) error {
	if params.Logger == nil {
		return fmt.Errorf("logger required")
	}
	if params.Archiver == nil {
		return fmt.Errorf("archiver required")
	}
	if params.Days < 0 {
		return fmt.Errorf("days must be >= 0")
	}
	return nil
}

// NewArchiveStaleJob moves picked-up bookings older than the cutoff into the archive.
func NewArchiveStaleJob(params ArchiveJobParams) (Job, error) {
	if err := validateArchiveParams(params); err != nil {
		return nil, err
	}
	return &archiveStaleJob{logg: params.Logger, archiver: params.Archiver, cutoffDays: params.Days}, nil
}

type archiveStaleJob struct {
	logg       *logger.Logger
	archiver   bookingArchiver
	cutoffDays int
}

func (j *archiveStaleJob) Name() string { return "booking-archive-stale" }

func (j *archiveStaleJob) Run(ctx context.Context) (int64, error) {
	result, err := j.archiver.ArchiveStale(ctx, j.cutoffDays)
	if err != nil {
		return 0, fmt.Errorf("archive stale bookings: %w", err)
	}
	if result.Count > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"cutoff_days": j.cutoffDays,
			"refs":        result.Refs,
		}), "stale bookings archived")
	}
	return int64(result.Count), nil
}

// NewCancelledRetentionJob archives cancelled bookings past the retention
// window. A zero window keeps cancelled bookings active indefinitely.
func NewCancelledRetentionJob(params ArchiveJobParams) (Job, error) {
	if err := validateArchiveParams(params); err != nil {
		return nil, err
	}
	return &cancelledRetentionJob{logg: params.Logger, archiver: params.Archiver, retentionDays: params.Days}, nil
}

type cancelledRetentionJob struct {
	logg          *logger.Logger
	archiver      bookingArchiver
	retentionDays int
}

func (j *cancelledRetentionJob) Name() string { return "booking-cancelled-retention" }

func (j *cancelledRetentionJob) Run(ctx context.Context) (int64, error) {
	if j.retentionDays == 0 {
		return 0, nil
	}
	result, err := j.archiver.ArchiveCancelledBefore(ctx, j.retentionDays)
	if err != nil {
		return 0, fmt.Errorf("archive cancelled bookings: %w", err)
	}
	if result.Count > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"retention_days": j.retentionDays,
			"refs":           result.Refs,
		}), "cancelled bookings archived")
	}
	return int64(result.Count), nil
}
