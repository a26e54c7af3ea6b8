package reports

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/luggagedeposit-backend/pkg/db/models"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
)

// StatusAggregate is one GROUP BY status row of a booking table.
type StatusAggregate struct {
	Status      enums.BookingStatus
	Count       int64
	AmountCents int64
	BagsSmall   int64
	BagsMedium  int64
	BagsLarge   int64
}

// Repository aggregates bookings whose drop-off date falls in [from, to).
type Repository interface {
	AggregateActive(ctx context.Context, from, to string) ([]StatusAggregate, error)
	AggregateArchived(ctx context.Context, from, to string) ([]StatusAggregate, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) AggregateActive(ctx context.Context, from, to string) ([]StatusAggregate, error) {
	return r.aggregate(ctx, &models.Booking{}, from, to)
}

func (r *repository) AggregateArchived(ctx context.Context, from, to string) ([]StatusAggregate, error) {
	return r.aggregate(ctx, &models.ArchivedBooking{}, from, to)
}

func (r *repository) aggregate(ctx context.Context, model any, from, to string) ([]StatusAggregate, error) {
	var rows []StatusAggregate
	err := r.db.WithContext(ctx).
		Model(model).
		Select(`status,
			COUNT(*) AS count,
			COALESCE(SUM(amount_cents), 0) AS amount_cents,
			COALESCE(SUM(bags_small), 0) AS bags_small,
			COALESCE(SUM(bags_medium), 0) AS bags_medium,
			COALESCE(SUM(bags_large), 0) AS bags_large`).
		Where("drop_off_date >= ? AND drop_off_date < ?", from, to).
		Group("status").
		Scan(&rows).Error
	return rows, err
}
