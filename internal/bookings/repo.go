package bookings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/luggagedeposit-backend/pkg/db"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/db/models"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a bookings repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindByRef returns gorm.ErrRecordNotFound when no active booking matches.
func (r *repository) FindByRef(ctx context.Context, ref string) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).
		Where("booking_ref = ?", ref).
		Take(&booking).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// CreateIfAbsent inserts the booking unless the ref already exists and
// reports whether a row was written.
func (r *repository) CreateIfAbsent(ctx context.Context, booking *models.Booking) (bool, error) {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "booking_ref"}},
			DoNothing: true,
		}).
		Create(booking)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateIfVersion applies columns only when the stored version still matches
// and bumps it. false means another writer got there first.
func (r *repository) UpdateIfVersion(ctx context.Context, id uuid.UUID, version int64, columns map[string]any) (bool, error) {
	updates := make(map[string]any, len(columns)+1)
	for k, v := range columns {
		updates[k] = v
	}
	updates["version"] = gorm.Expr("version + 1")

	res := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) DeleteIfVersion(ctx context.Context, id uuid.UUID, version int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND version = ?", id, version).
		Delete(&models.Booking{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters, params pagination.Params) (*ListResult, error) {
	query := r.db.WithContext(ctx).Model(&models.Booking{})
	query = applyListFilters(query, filters)
	query, err := pagination.Seek(query, "created_at", params)
	if err != nil {
		return nil, err
	}

	var rows []models.Booking
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	result := &ListResult{}
	result.Bookings, result.NextCursor = pagination.Page(rows, params, func(b models.Booking) pagination.Keyset {
		return pagination.Keyset{At: b.CreatedAt, ID: b.ID}
	})
	return result, nil
}

var searchColumns = []string{"booking_ref", "customer_email", "customer_phone", "customer_name"}

func applyListFilters(query *gorm.DB, filters ListFilters) *gorm.DB {
	query = dbpkg.ContainsAny(query, filters.Search, searchColumns...)
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.Today != "" {
		switch filters.DateFilter {
		case enums.BookingDateFilterToday:
			query = query.Where("drop_off_date = ?", filters.Today)
		case enums.BookingDateFilterUpcoming:
			query = query.Where("drop_off_date > ?", filters.Today)
		case enums.BookingDateFilterPast:
			query = query.Where("drop_off_date < ?", filters.Today)
		}
	}
	return query
}

// ListPickedUpBefore returns picked-up bookings whose pickup, or scheduled
// pickup when the actual one was never recorded, is older than cutoff.
func (r *repository) ListPickedUpBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	var rows []models.Booking
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.BookingStatusPickedUp).
		Where("COALESCE(picked_up_at, pick_up_at) <= ?", cutoff).
		Order("created_at ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&rows).Error
	return rows, err
}

// ListCancelledBefore returns cancelled bookings last touched before cutoff.
func (r *repository) ListCancelledBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	var rows []models.Booking
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.BookingStatusCancelled).
		Where("updated_at < ?", cutoff).
		Order("created_at ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&rows).Error
	return rows, err
}

// IsNotFound reports whether err is a missing-row error from the repository.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
