package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/luggagedeposit-backend/internal/bookings"
	dbpkg "github.com/angelmondragon/luggagedeposit-backend/pkg/db"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/db/models"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/luggagedeposit-backend/pkg/errors"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/logger"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/metrics"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/outbox"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/outbox/payloads"
)

const (
	// SystemActor is recorded as archived_by for scheduled migrations.
	SystemActor = "system"

	// DefaultBatchSize caps the rows one batch run migrates.
	DefaultBatchSize = 200
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Result reports how many bookings a batch migration moved. Skipped lists
// rows left in place because of a conflict; they are retried next run.
type Result struct {
	Count   int      `json:"count"`
	Refs    []string `json:"refs,omitempty"`
	Skipped []string `json:"skipped,omitempty"`
}

// MigratorParams groups the collaborators of NewMigrator.
type MigratorParams struct {
	Active  bookings.Repository
	Archive Repository
	Tx      txRunner
	Outbox  outboxPublisher
	Logger  *logger.Logger
	Metrics *metrics.BookingMetrics
	Now     func() time.Time
	// BatchSize defaults to DefaultBatchSize.
	BatchSize int
}

// Migrator moves bookings from the active table to the archive with
// copy-then-delete inside one transaction.
type Migrator struct {
	active  bookings.Repository
	archive Repository
	tx      txRunner
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics *metrics.BookingMetrics
	now     func() time.Time
	batch   int
}

func NewMigrator(params MigratorParams) (*Migrator, error) {
	if params.Active == nil {
		return nil, fmt.Errorf("bookings repository required")
	}
	if params.Archive == nil {
		return nil, fmt.Errorf("archive repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &Migrator{
		active:  params.Active,
		archive: params.Archive,
		tx:      params.Tx,
		outbox:  params.Outbox,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     func() time.Time { return now().UTC() },
		batch:   batch,
	}, nil
}

// ArchiveTx copies booking into the archive and then deletes it from the
// active table, both on tx. The delete is conditional on booking.Version.
func (m *Migrator) ArchiveTx(ctx context.Context, tx *gorm.DB, booking *models.Booking, actor string, reason payloads.ArchiveReason) (*models.ArchivedBooking, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if booking == nil {
		return nil, errors.New("booking required")
	}

	row := &models.ArchivedBooking{
		BookingRecord: booking.BookingRecord,
		ArchivedAt:    m.now(),
		ArchivedBy:    bookings.NormalizeActor(actor),
	}
	archiveRepo := m.archive.WithTx(tx)
	inserted, err := archiveRepo.InsertIfAbsent(ctx, row)
	if err != nil {
		return nil, dbpkg.Classify(err, "copy booking to archive")
	}
	if !inserted {
		existing, err := archiveRepo.FindByRef(ctx, booking.BookingRef)
		if err != nil {
			return nil, dbpkg.Classify(err, "load archived booking")
		}
		if existing.ID != booking.ID {
			return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "booking %s is already archived under another record", booking.BookingRef).
				WithDetails(map[string]any{"bookingRef": booking.BookingRef})
		}
		row = existing
	}

	deleted, err := m.active.WithTx(tx).DeleteIfVersion(ctx, booking.ID, booking.Version)
	if err != nil {
		return nil, dbpkg.Classify(err, "remove booking from active store")
	}
	if !deleted {
		return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "booking %s was modified during archiving", booking.BookingRef).
			WithDetails(map[string]any{"bookingRef": booking.BookingRef})
	}

	err = m.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventSubject: models.EventSubject{
			EventType:     enums.EventBookingArchived,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
		},
		Actor:      &outbox.ActorRef{ID: row.ArchivedBy},
		OccurredAt: row.ArchivedAt,
		Data: payloads.BookingArchivedEvent{
			BookingID:   booking.ID,
			BookingRef:  booking.BookingRef,
			FinalStatus: booking.Status,
			Reason:      reason,
			ArchivedBy:  row.ArchivedBy,
			ArchivedAt:  row.ArchivedAt,
		},
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// ArchiveByRef migrates a single terminal booking. A ref missing from the
// active table is NotFound; nothing is written to the archive for it.
func (m *Migrator) ArchiveByRef(ctx context.Context, ref, actor string) (*models.ArchivedBooking, error) {
	ref, err := bookings.NormalizeRef(ref)
	if err != nil {
		return nil, err
	}

	var (
		archived *models.ArchivedBooking
		reason   payloads.ArchiveReason
	)
	err = m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		booking, err := m.active.WithTx(tx).FindByRef(ctx, ref)
		if err != nil {
			if bookings.IsNotFound(err) {
				return pkgerrors.Newf(pkgerrors.CodeNotFound, "booking %s not found", ref).
					WithDetails(map[string]any{"bookingRef": ref})
			}
			return dbpkg.Classify(err, "load booking")
		}
		if !booking.Status.IsTerminal() {
			return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "booking %s is %s and cannot be archived", ref, booking.Status).
				WithDetails(map[string]any{"currentStatus": booking.Status})
		}
		reason = payloads.ArchiveReasonPickup
		if booking.Status == enums.BookingStatusCancelled {
			reason = payloads.ArchiveReasonCancelledRetention
		}
		archived, err = m.ArchiveTx(ctx, tx, booking, actor, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.metrics.ObserveArchived(string(reason), 1)
	return archived, nil
}

// ArchiveStale migrates picked-up bookings whose pickup is older than
// cutoffDays, at most one batch per call. Running it again with nothing left
// returns a zero count.
func (m *Migrator) ArchiveStale(ctx context.Context, cutoffDays int) (*Result, error) {
	return m.ArchiveStaleBy(ctx, cutoffDays, SystemActor)
}

// ArchiveStaleBy is ArchiveStale with an explicit actor.
func (m *Migrator) ArchiveStaleBy(ctx context.Context, cutoffDays int, actor string) (*Result, error) {
	if cutoffDays < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cutoff days must be >= 0")
	}
	cutoff := m.now().Add(-time.Duration(cutoffDays) * 24 * time.Hour)
	return m.migrateBatch(ctx, actor, payloads.ArchiveReasonStale, func(repo bookings.Repository) ([]models.Booking, error) {
		return repo.ListPickedUpBefore(ctx, cutoff, m.batch)
	})
}

// ArchiveCancelledBefore applies the cancelled retention policy. Zero days
// disables it.
func (m *Migrator) ArchiveCancelledBefore(ctx context.Context, retentionDays int) (*Result, error) {
	if retentionDays < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "retention days must be >= 0")
	}
	if retentionDays == 0 {
		return &Result{}, nil
	}
	cutoff := m.now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	return m.migrateBatch(ctx, SystemActor, payloads.ArchiveReasonCancelledRetention, func(repo bookings.Repository) ([]models.Booking, error) {
		return repo.ListCancelledBefore(ctx, cutoff, m.batch)
	})
}

// migrateBatch moves each row in its own transaction. A conflicting row is
// skipped so it cannot hold back the rest of the batch; any other failure
// stops the run, leaving rows already moved in the archive.
func (m *Migrator) migrateBatch(ctx context.Context, actor string, reason payloads.ArchiveReason, load func(bookings.Repository) ([]models.Booking, error)) (*Result, error) {
	rows, err := load(m.active)
	if err != nil {
		return nil, dbpkg.Classify(err, "list bookings to archive")
	}

	result := &Result{}
	for i := range rows {
		row := &rows[i]
		err := m.tx.WithTx(ctx, func(tx *gorm.DB) error {
			_, err := m.ArchiveTx(ctx, tx, row, actor, reason)
			return err
		})
		if pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
			result.Skipped = append(result.Skipped, row.BookingRef)
			if m.logg != nil {
				logCtx := m.logg.WithField(m.logg.WithBookingRef(ctx, row.BookingRef), "error", err.Error())
				m.logg.Warn(logCtx, "archive skipped on conflict")
			}
			continue
		}
		if err != nil {
			m.metrics.ObserveArchived(string(reason), len(result.Refs))
			return nil, err
		}
		result.Refs = append(result.Refs, row.BookingRef)
	}
	result.Count = len(result.Refs)

	m.metrics.ObserveArchived(string(reason), result.Count)
	if m.logg != nil && (result.Count > 0 || len(result.Skipped) > 0) {
		logCtx := m.logg.WithFields(ctx, map[string]any{
			"archived_count": result.Count,
			"skipped_count":  len(result.Skipped),
			"reason":         reason,
			"actor":          actor,
		})
		m.logg.Info(logCtx, "bookings archived")
	}
	return result, nil
}
