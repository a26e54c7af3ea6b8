package archive

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/luggagedeposit-backend/pkg/db"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/db/models"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/pagination"
)

// Repository persists rows of bookings_archive. Rows are never updated.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	InsertIfAbsent(ctx context.Context, row *models.ArchivedBooking) (bool, error)
	FindByRef(ctx context.Context, ref string) (*models.ArchivedBooking, error)
	FindByRefTx(ctx context.Context, tx *gorm.DB, ref string) (*models.ArchivedBooking, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*ListResult, error)
}

// ListFilters narrows the archive listing.
type ListFilters struct {
	Search string
	Status *enums.BookingStatus
}

// ListResult wraps a page of archived bookings.
type ListResult struct {
	Bookings   []models.ArchivedBooking
	NextCursor string
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an archive repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// InsertIfAbsent reports false when the ref is already archived.
func (r *repository) InsertIfAbsent(ctx context.Context, row *models.ArchivedBooking) (bool, error) {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "booking_ref"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FindByRef returns gorm.ErrRecordNotFound when the ref is not archived.
func (r *repository) FindByRef(ctx context.Context, ref string) (*models.ArchivedBooking, error) {
	return findByRef(ctx, r.db, ref)
}

func (r *repository) FindByRefTx(ctx context.Context, tx *gorm.DB, ref string) (*models.ArchivedBooking, error) {
	if tx == nil {
		tx = r.db
	}
	return findByRef(ctx, tx, ref)
}

func findByRef(ctx context.Context, db *gorm.DB, ref string) (*models.ArchivedBooking, error) {
	var row models.ArchivedBooking
	if err := db.WithContext(ctx).Where("booking_ref = ?", ref).Take(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters, params pagination.Params) (*ListResult, error) {
	query := r.db.WithContext(ctx).Model(&models.ArchivedBooking{})
	query = dbpkg.ContainsAny(query, filters.Search, "booking_ref", "customer_email", "customer_phone", "customer_name")
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	query, err := pagination.Seek(query, "archived_at", params)
	if err != nil {
		return nil, err
	}

	var rows []models.ArchivedBooking
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	result := &ListResult{}
	result.Bookings, result.NextCursor = pagination.Page(rows, params, func(b models.ArchivedBooking) pagination.Keyset {
		return pagination.Keyset{At: b.ArchivedAt, ID: b.ID}
	})
	return result, nil
}
