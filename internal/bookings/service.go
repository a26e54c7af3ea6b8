package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/luggagedeposit-backend/pkg/db"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/db/models"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/luggagedeposit-backend/pkg/errors"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/logger"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/metrics"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/outbox"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/pagination"
)

const maxNotesLength = 2000

// Service exposes the booking lifecycle to HTTP handlers, the kiosk and the
// payment webhook.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*CreateResult, error)
	ApplyTransition(ctx context.Context, ref string, target enums.BookingStatus, actor string) (*TransitionResult, error)
	UpdateNotes(ctx context.Context, ref, notes, actor string) (*models.Booking, error)
	RecordCheckInTokenIssued(ctx context.Context, ref string, issue CheckInTokenIssue) error
	Get(ctx context.Context, ref string) (*models.Booking, error)
	Lookup(ctx context.Context, ref string) (*LookupResult, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*ListResult, error)
}

// ServiceParams groups the collaborators of NewService.
type ServiceParams struct {
	Repo            Repository
	Tx              txRunner
	Outbox          outboxPublisher
	Archiver        Archiver
	Archive         ArchiveReader
	Logger          *logger.Logger
	Metrics         *metrics.BookingMetrics
	Location        *time.Location
	DefaultCurrency enums.Currency
	Now             func() time.Time
}

type service struct {
	repo            Repository
	tx              txRunner
	outbox          outboxPublisher
	archiver        Archiver
	archive         ArchiveReader
	logg            *logger.Logger
	metrics         *metrics.BookingMetrics
	loc             *time.Location
	defaultCurrency enums.Currency
	now             func() time.Time
	validate        *validator.Validate
}

// NewService builds the booking service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("bookings repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Archiver == nil {
		return nil, fmt.Errorf("archiver required")
	}
	if params.Archive == nil {
		return nil, fmt.Errorf("archive reader required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	currency := params.DefaultCurrency
	if !currency.IsValid() {
		currency = enums.CurrencyEUR
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:            params.Repo,
		tx:              params.Tx,
		outbox:          params.Outbox,
		archiver:        params.Archiver,
		archive:         params.Archive,
		logg:            params.Logger,
		metrics:         params.Metrics,
		loc:             loc,
		defaultCurrency: currency,
		now:             func() time.Time { return now().UTC() },
		validate:        validator.New(),
	}, nil
}

// Create inserts a paid booking. Redelivery of the same ref returns the
// stored booking instead of writing a second one.
func (s *service) Create(ctx context.Context, input CreateInput) (*CreateResult, error) {
	ref, err := NormalizeRef(input.BookingRef)
	if err != nil {
		return nil, err
	}
	input.BookingRef = ref
	if err := s.validate.Struct(input); err != nil {
		return nil, validationError(err)
	}
	currency := input.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}
	if !currency.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported currency %q", input.Currency)
	}
	dropOffAt, err := s.combine(input.DropOffDate, input.DropOffTime)
	if err != nil {
		return nil, err
	}
	pickUpAt, err := s.combine(input.PickUpDate, input.PickUpTime)
	if err != nil {
		return nil, err
	}
	if pickUpAt.Before(dropOffAt) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pick-up must not precede drop-off")
	}
	if input.BagsSmall+input.BagsMedium+input.BagsLarge == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one bag is required")
	}

	now := s.now()
	booking := &models.Booking{BookingRecord: models.BookingRecord{
		BookingRef:      ref,
		StripeSessionID: strings.TrimSpace(input.StripeSessionID),
		Status:          enums.BookingStatusPaid,
		CustomerName:    strings.TrimSpace(input.CustomerName),
		CustomerEmail:   strings.ToLower(strings.TrimSpace(input.CustomerEmail)),
		CustomerPhone:   strings.TrimSpace(input.CustomerPhone),
		DropOffDate:     input.DropOffDate,
		DropOffTime:     input.DropOffTime,
		DropOffAt:       dropOffAt,
		PickUpDate:      input.PickUpDate,
		PickUpTime:      input.PickUpTime,
		PickUpAt:        pickUpAt,
		BillableDays:    input.BillableDays,
		BagsSmall:       input.BagsSmall,
		BagsMedium:      input.BagsMedium,
		BagsLarge:       input.BagsLarge,
		AmountCents:     input.AmountCents,
		Currency:        currency,
		Notes:           strings.TrimSpace(input.Notes),
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}}

	result := &CreateResult{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		archived, err := s.archiveLookup(ctx, tx, ref)
		if err != nil {
			return err
		}
		if archived != nil {
			result.Archived = archived
			return nil
		}

		repo := s.repo.WithTx(tx)
		created, err := repo.CreateIfAbsent(ctx, booking)
		if err != nil {
			return dbpkg.Classify(err, "insert booking")
		}
		if !created {
			existing, err := repo.FindByRef(ctx, ref)
			if err != nil {
				return dbpkg.Classify(err, "load existing booking")
			}
			result.Booking = existing
			return nil
		}

		result.Booking = booking
		result.Created = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventSubject: models.EventSubject{
				EventType:     enums.EventBookingCreated,
				AggregateType: enums.AggregateBooking,
				AggregateID:   booking.ID,
			},
			Actor:      &outbox.ActorRef{ID: "stripe", Role: "system"},
			OccurredAt: now,
			Data: payloads.BookingCreatedEvent{
				BookingID:    booking.ID,
				BookingRef:   booking.BookingRef,
				Status:       booking.Status,
				DropOffDate:  booking.DropOffDate,
				PickUpDate:   booking.PickUpDate,
				BillableDays: booking.BillableDays,
				BagsSmall:    booking.BagsSmall,
				BagsMedium:   booking.BagsMedium,
				BagsLarge:    booking.BagsLarge,
				AmountCents:  booking.AmountCents,
				Currency:     booking.Currency,
				CreatedAt:    booking.CreatedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithBookingRef(ctx, ref)
		switch {
		case result.Created:
			s.logg.Info(logCtx, "booking created")
		case result.Booking != nil && result.Booking.StripeSessionID != booking.StripeSessionID:
			s.logg.Warn(s.logg.WithField(logCtx, "stripe_session_id", booking.StripeSessionID), "booking ref reused by a different checkout session")
		default:
			s.logg.Info(logCtx, "booking already recorded")
		}
	}
	return result, nil
}

// ApplyTransition moves the booking to target as one conditional update.
// A pickup archives the booking in the same transaction.
func (s *service) ApplyTransition(ctx context.Context, ref string, target enums.BookingStatus, actor string) (*TransitionResult, error) {
	ref, err := NormalizeRef(ref)
	if err != nil {
		return nil, err
	}
	actor = NormalizeActor(actor)

	var result *TransitionResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		booking, err := repo.FindByRef(ctx, ref)
		if err != nil {
			if IsNotFound(err) {
				return s.transitionOnMissing(ctx, tx, ref, target, actor)
			}
			return dbpkg.Classify(err, "load booking")
		}

		fields, err := ApplyTransition(booking.Status, target, actor, s.now())
		if err != nil {
			return err
		}

		ok, err := repo.UpdateIfVersion(ctx, booking.ID, booking.Version, fields.Columns())
		if err != nil {
			return dbpkg.Classify(err, "update booking status")
		}
		if !ok {
			return conflict(ref)
		}
		fields.ApplyTo(&booking.BookingRecord)

		if err := s.emitTransition(ctx, tx, booking.BookingRecord, *fields); err != nil {
			return err
		}

		result = &TransitionResult{Booking: booking.BookingRecord, Fields: *fields}
		if fields.RequiresArchive() {
			archived, err := s.archiver.ArchiveTx(ctx, tx, booking, actor, payloads.ArchiveReasonPickup)
			if err != nil {
				return err
			}
			result.Archived = archived
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(result.Fields.From), string(result.Fields.To))
	if result.Archived != nil {
		s.metrics.ObserveArchived(string(payloads.ArchiveReasonPickup), 1)
	}
	if s.logg != nil {
		logCtx := s.logg.WithBookingRef(s.logg.WithActor(ctx, actor), ref)
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"from_status": result.Fields.From,
			"to_status":   result.Fields.To,
			"archived":    result.Archived != nil,
		})
		s.logg.Info(logCtx, "booking transitioned")
	}
	return result, nil
}

// transitionOnMissing evaluates the request against the archived copy so a
// late request after pickup reports the transition error instead of NotFound.
func (s *service) transitionOnMissing(ctx context.Context, tx *gorm.DB, ref string, target enums.BookingStatus, actor string) error {
	archived, err := s.archiveLookup(ctx, tx, ref)
	if err != nil {
		return err
	}
	if archived == nil {
		return notFound(ref)
	}
	if _, err := ApplyTransition(archived.Status, target, actor, s.now()); err != nil {
		return err
	}
	return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "booking %s is archived", ref)
}

func (s *service) emitTransition(ctx context.Context, tx *gorm.DB, rec models.BookingRecord, fields UpdatedFields) error {
	eventType, ok := enums.BookingStatusEvent(fields.To)
	if !ok {
		return nil
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventSubject: models.EventSubject{
			EventType:     eventType,
			AggregateType: enums.AggregateBooking,
			AggregateID:   rec.ID,
		},
		Actor:      &outbox.ActorRef{ID: fields.Actor, Role: "staff"},
		OccurredAt: fields.UpdatedAt,
		Data: payloads.BookingTransitionedEvent{
			BookingID:   rec.ID,
			BookingRef:  rec.BookingRef,
			FromStatus:  fields.From,
			ToStatus:    fields.To,
			Actor:       fields.Actor,
			AmountCents: rec.AmountCents,
			Currency:    rec.Currency,
			OccurredAt:  fields.UpdatedAt,
		},
	})
}

// UpdateNotes replaces the staff notes of an active booking.
func (s *service) UpdateNotes(ctx context.Context, ref, notes, actor string) (*models.Booking, error) {
	ref, err := NormalizeRef(ref)
	if err != nil {
		return nil, err
	}
	notes = strings.TrimSpace(notes)
	if len([]rune(notes)) > maxNotesLength {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "notes must be at most %d characters", maxNotesLength)
	}
	actor = NormalizeActor(actor)

	var updated *models.Booking
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		booking, err := repo.FindByRef(ctx, ref)
		if err != nil {
			if IsNotFound(err) {
				archived, lookupErr := s.archiveLookup(ctx, tx, ref)
				if lookupErr != nil {
					return lookupErr
				}
				if archived != nil {
					return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "booking %s is archived and read-only", ref)
				}
				return notFound(ref)
			}
			return dbpkg.Classify(err, "load booking")
		}

		now := s.now()
		ok, err := repo.UpdateIfVersion(ctx, booking.ID, booking.Version, map[string]any{
			"notes":      notes,
			"updated_at": now,
		})
		if err != nil {
			return dbpkg.Classify(err, "update booking notes")
		}
		if !ok {
			return conflict(ref)
		}
		booking.Notes = notes
		booking.UpdatedAt = now
		booking.Version++
		updated = booking

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventSubject: models.EventSubject{
				EventType:     enums.EventBookingNotesUpdated,
				AggregateType: enums.AggregateBooking,
				AggregateID:   booking.ID,
			},
			Actor:      &outbox.ActorRef{ID: actor, Role: "staff"},
			OccurredAt: now,
			Data: payloads.BookingNotesUpdatedEvent{
				BookingID:   booking.ID,
				BookingRef:  booking.BookingRef,
				Actor:       actor,
				NotesLength: len([]rune(notes)),
				UpdatedAt:   now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RecordCheckInTokenIssued stamps the issue time and, in the same
// transaction, emits the event that delivers the link to the customer.
// Re-issuing overwrites the stamp.
func (s *service) RecordCheckInTokenIssued(ctx context.Context, ref string, issue CheckInTokenIssue) error {
	ref, err := NormalizeRef(ref)
	if err != nil {
		return err
	}
	if strings.TrimSpace(issue.URL) == "" || issue.IssuedAt.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "check-in token url and issue time required")
	}
	actor := NormalizeActor(issue.Actor)
	issuedAt := issue.IssuedAt.UTC()

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		booking, err := repo.FindByRef(ctx, ref)
		if err != nil {
			if IsNotFound(err) {
				return notFound(ref)
			}
			return dbpkg.Classify(err, "load booking")
		}
		ok, err := repo.UpdateIfVersion(ctx, booking.ID, booking.Version, map[string]any{
			"checkin_token_issued_at": issuedAt,
			"updated_at":              s.now(),
		})
		if err != nil {
			return dbpkg.Classify(err, "record check-in token")
		}
		if !ok {
			return conflict(ref)
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventSubject: models.EventSubject{
				EventType:     enums.EventBookingCheckInTokenIssued,
				AggregateType: enums.AggregateBooking,
				AggregateID:   booking.ID,
			},
			Actor:      &outbox.ActorRef{ID: actor, Role: "staff"},
			OccurredAt: issuedAt,
			Data: payloads.BookingCheckInTokenIssuedEvent{
				BookingID:     booking.ID,
				BookingRef:    booking.BookingRef,
				CustomerName:  booking.CustomerName,
				CustomerEmail: booking.CustomerEmail,
				CheckInURL:    issue.URL,
				IssuedBy:      actor,
				IssuedAt:      issuedAt,
				ExpiresAt:     issue.ExpiresAt.UTC(),
			},
		})
	})
}

func (s *service) Get(ctx context.Context, ref string) (*models.Booking, error) {
	ref, err := NormalizeRef(ref)
	if err != nil {
		return nil, err
	}
	booking, err := s.repo.FindByRef(ctx, ref)
	if err != nil {
		if IsNotFound(err) {
			return nil, notFound(ref)
		}
		return nil, dbpkg.Classify(err, "load booking")
	}
	return booking, nil
}

// Lookup checks the active table first, then the archive.
func (s *service) Lookup(ctx context.Context, ref string) (*LookupResult, error) {
	ref, err := NormalizeRef(ref)
	if err != nil {
		return nil, err
	}
	booking, err := s.repo.FindByRef(ctx, ref)
	if err == nil {
		return &LookupResult{Booking: booking.BookingRecord}, nil
	}
	if !IsNotFound(err) {
		return nil, dbpkg.Classify(err, "load booking")
	}
	archived, err := s.archiveLookup(ctx, nil, ref)
	if err != nil {
		return nil, err
	}
	if archived == nil {
		return nil, notFound(ref)
	}
	return &LookupResult{
		Booking:    archived.BookingRecord,
		IsArchived: true,
		ArchivedAt: &archived.ArchivedAt,
		ArchivedBy: &archived.ArchivedBy,
	}, nil
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) (*ListResult, error) {
	if filters.DateFilter == "" {
		filters.DateFilter = enums.BookingDateFilterAll
	}
	if !filters.DateFilter.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid date filter %q", filters.DateFilter)
	}
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", *filters.Status)
	}
	if filters.Today == "" {
		filters.Today = s.now().In(s.loc).Format(dateLayout)
	}
	if err := params.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	result, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, dbpkg.Classify(err, "list bookings")
	}
	return result, nil
}

// archiveLookup returns nil, nil when the ref is not archived. A non-nil tx
// keeps the read inside the caller's transaction.
func (s *service) archiveLookup(ctx context.Context, tx *gorm.DB, ref string) (*models.ArchivedBooking, error) {
	var (
		archived *models.ArchivedBooking
		err      error
	)
	if tx != nil {
		archived, err = s.archive.FindByRefTx(ctx, tx, ref)
	} else {
		archived, err = s.archive.FindByRef(ctx, ref)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, dbpkg.Classify(err, "load archived booking")
	}
	return archived, nil
}

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04"
)

func (s *service) combine(date, clock string) (time.Time, error) {
	at, err := time.ParseInLocation(dateTimeLayout, date+" "+clock, s.loc)
	if err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid date/time %s %s", date, clock))
	}
	return at.UTC(), nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := map[string]string{}
		for _, fe := range verrs {
			details[fe.Field()] = fe.Tag()
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid booking").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking")
}

func notFound(ref string) error {
	return pkgerrors.Newf(pkgerrors.CodeNotFound, "booking %s not found", ref).
		WithDetails(map[string]any{"bookingRef": ref})
}

func conflict(ref string) error {
	return pkgerrors.Newf(pkgerrors.CodeConflict, "booking %s was modified concurrently", ref).
		WithDetails(map[string]any{"bookingRef": ref})
}
