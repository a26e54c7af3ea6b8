package archive

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/luggagedeposit-backend/internal/bookings"
	dbpkg "github.com/angelmondragon/luggagedeposit-backend/pkg/db"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/luggagedeposit-backend/pkg/errors"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/pagination"
)

// Service is the read-only view of archived bookings.
type Service struct {
	repo Repository
}

func NewService(repo Repository) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("archive repository required")
	}
	return &Service{repo: repo}, nil
}

func (s *Service) Get(ctx context.Context, ref string) (*models.ArchivedBooking, error) {
	ref, err := bookings.NormalizeRef(ref)
	if err != nil {
		return nil, err
	}
	row, err := s.repo.FindByRef(ctx, ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "archived booking %s not found", ref).
				WithDetails(map[string]any{"bookingRef": ref})
		}
		return nil, dbpkg.Classify(err, "load archived booking")
	}
	return row, nil
}

func (s *Service) List(ctx context.Context, filters ListFilters, params pagination.Params) (*ListResult, error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", *filters.Status)
	}
	if err := params.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	result, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, dbpkg.Classify(err, "list archived bookings")
	}
	return result, nil
}
