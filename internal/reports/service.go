package reports

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	dbpkg "github.com/angelmondragon/luggagedeposit-backend/pkg/db"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/luggagedeposit-backend/pkg/errors"
)

// Period selects the drop-off dates a summary covers. Date is
// 2006-01-02 for day, 2006-01 for month and 2006 for year.
type Period struct {
	Mode enums.ReportPeriod
	Date string
}

// Breakdown is the share of a summary held by one store.
type Breakdown struct {
	Count   int64           `json:"count"`
	Revenue decimal.Decimal `json:"revenue"`
}

type BagTotals struct {
	Small  int64 `json:"small"`
	Medium int64 `json:"medium"`
	Large  int64 `json:"large"`
}

// Summary combines active and archived bookings for a period. Revenue
// excludes cancelled bookings; counts include them.
type Summary struct {
	Mode          enums.ReportPeriod            `json:"mode"`
	Date          string                        `json:"date"`
	From          string                        `json:"from"`
	To            string                        `json:"to"`
	Currency      enums.Currency                `json:"currency"`
	TotalBookings int64                         `json:"total_bookings"`
	Revenue       decimal.Decimal               `json:"revenue"`
	AverageValue  decimal.Decimal               `json:"average_value"`
	ByStatus      map[enums.BookingStatus]int64 `json:"by_status"`
	Active        Breakdown                     `json:"active"`
	Archived      Breakdown                     `json:"archived"`
	Bags          BagTotals                     `json:"bags"`
}

type Service interface {
	Summary(ctx context.Context, period Period) (*Summary, error)
}

type service struct {
	repo     Repository
	currency enums.Currency
	loc      *time.Location
	now      func() time.Time
}

func NewService(repo Repository, currency enums.Currency, loc *time.Location, now func() time.Time) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reports repository required")
	}
	if !currency.IsValid() {
		currency = enums.CurrencyEUR
	}
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &service{repo: repo, currency: currency, loc: loc, now: now}, nil
}

func (s *service) Summary(ctx context.Context, period Period) (*Summary, error) {
	if period.Mode == "" {
		period.Mode = enums.ReportPeriodDay
	}
	date, from, to, err := s.window(period)
	if err != nil {
		return nil, err
	}

	active, err := s.repo.AggregateActive(ctx, from, to)
	if err != nil {
		return nil, dbpkg.Classify(err, "aggregate active bookings")
	}
	archived, err := s.repo.AggregateArchived(ctx, from, to)
	if err != nil {
		return nil, dbpkg.Classify(err, "aggregate archived bookings")
	}

	summary := &Summary{
		Mode:     period.Mode,
		Date:     date,
		From:     from,
		To:       to,
		Currency: s.currency,
		ByStatus: make(map[enums.BookingStatus]int64, 4),
	}
	for _, status := range enums.BookingStatuses() {
		summary.ByStatus[status] = 0
	}
	summary.Active = summary.add(active)
	summary.Archived = summary.add(archived)
	summary.Revenue = summary.Active.Revenue.Add(summary.Archived.Revenue)
	summary.AverageValue = decimal.Zero
	if summary.TotalBookings > 0 {
		summary.AverageValue = summary.Revenue.DivRound(decimal.NewFromInt(summary.TotalBookings), 2)
	}
	return summary, nil
}

func (s *Summary) add(rows []StatusAggregate) Breakdown {
	var out Breakdown
	var cents int64
	for _, row := range rows {
		out.Count += row.Count
		s.ByStatus[row.Status] += row.Count
		if row.Status == enums.BookingStatusCancelled {
			continue
		}
		cents += row.AmountCents
		s.Bags.Small += row.BagsSmall
		s.Bags.Medium += row.BagsMedium
		s.Bags.Large += row.BagsLarge
	}
	s.TotalBookings += out.Count
	out.Revenue = decimal.New(cents, -2)
	return out
}

// window resolves the period date and its half-open drop_off_date range of period. A blank
// date means the current period in the reporting timezone.
func (s *service) window(period Period) (date, from, to string, err error) {
	const day = "2006-01-02"
	date = strings.TrimSpace(period.Date)
	var layout string
	switch period.Mode {
	case enums.ReportPeriodDay:
		layout = day
	case enums.ReportPeriodMonth:
		layout = "2006-01"
	case enums.ReportPeriodYear:
		layout = "2006"
	default:
		return "", "", "", pkgerrors.Newf(pkgerrors.CodeValidation, "invalid report mode %q", period.Mode)
	}
	if date == "" {
		date = s.now().In(s.loc).Format(layout)
	}
	start, perr := time.Parse(layout, date)
	if perr != nil {
		return "", "", "", pkgerrors.Newf(pkgerrors.CodeValidation, "date %q does not match %s", date, layout).
			WithDetails(map[string]any{"mode": period.Mode, "date": date})
	}

	var end time.Time
	switch period.Mode {
	case enums.ReportPeriodDay:
		end = start.AddDate(0, 0, 1)
	case enums.ReportPeriodMonth:
		end = start.AddDate(0, 1, 0)
	default:
		end = start.AddDate(1, 0, 0)
	}
	return date, start.Format(day), end.Format(day), nil
}
