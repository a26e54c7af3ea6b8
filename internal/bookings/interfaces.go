package bookings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/luggagedeposit-backend/pkg/db/models"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/outbox"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/pagination"
)

// Repository defines persistence operations on the active bookings table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByRef(ctx context.Context, ref string) (*models.Booking, error)
	CreateIfAbsent(ctx context.Context, booking *models.Booking) (bool, error)
	UpdateIfVersion(ctx context.Context, id uuid.UUID, version int64, columns map[string]any) (bool, error)
	DeleteIfVersion(ctx context.Context, id uuid.UUID, version int64) (bool, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*ListResult, error)
	ListPickedUpBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error)
	ListCancelledBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error)
}

// ArchiveReader is the read side of the archive table needed here.
type ArchiveReader interface {
	FindByRef(ctx context.Context, ref string) (*models.ArchivedBooking, error)
	FindByRefTx(ctx context.Context, tx *gorm.DB, ref string) (*models.ArchivedBooking, error)
}

// Archiver moves a booking into the archive inside an open transaction.
type Archiver interface {
	ArchiveTx(ctx context.Context, tx *gorm.DB, booking *models.Booking, actor string, reason payloads.ArchiveReason) (*models.ArchivedBooking, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}
