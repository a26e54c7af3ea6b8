package bookings

import (
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/luggagedeposit-backend/pkg/db/models"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/luggagedeposit-backend/pkg/errors"
)

// UnknownActor is recorded when a transition arrives without an actor.
const UnknownActor = "unknown_admin"

// Transition is one allowed edge of the booking state machine.
type Transition struct {
	From enums.BookingStatus
	To   enums.BookingStatus
}

var transitions = []Transition{
	{From: enums.BookingStatusPaid, To: enums.BookingStatusCheckedIn},
	{From: enums.BookingStatusCheckedIn, To: enums.BookingStatusPickedUp},
	{From: enums.BookingStatusPaid, To: enums.BookingStatusCancelled},
	{From: enums.BookingStatusCheckedIn, To: enums.BookingStatusCancelled},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to enums.BookingStatus) bool {
	for _, t := range transitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// AllowedTargets lists the statuses reachable from the given status.
func AllowedTargets(from enums.BookingStatus) []enums.BookingStatus {
	var out []enums.BookingStatus
	for _, t := range transitions {
		if t.From == from {
			out = append(out, t.To)
		}
	}
	return out
}

// UpdatedFields describes the columns a transition writes. Nil pointers mean
// the column is left untouched.
type UpdatedFields struct {
	From        enums.BookingStatus
	To          enums.BookingStatus
	Actor       string
	UpdatedAt   time.Time
	CheckedInAt *time.Time
	CheckedInBy *string
	PickedUpAt  *time.Time
	PickedUpBy  *string
	CancelledBy *string
}

// RequiresArchive is true for transitions that end the active life of a booking.
func (u UpdatedFields) RequiresArchive() bool {
	return u.To == enums.BookingStatusPickedUp
}

// Columns renders the update as a column map for a single UPDATE statement.
func (u UpdatedFields) Columns() map[string]any {
	cols := map[string]any{
		"status":     u.To,
		"updated_at": u.UpdatedAt,
	}
	if u.CheckedInAt != nil {
		cols["checked_in_at"] = *u.CheckedInAt
	}
	if u.CheckedInBy != nil {
		cols["checked_in_by"] = *u.CheckedInBy
	}
	if u.PickedUpAt != nil {
		cols["picked_up_at"] = *u.PickedUpAt
	}
	if u.PickedUpBy != nil {
		cols["picked_up_by"] = *u.PickedUpBy
	}
	if u.CancelledBy != nil {
		cols["cancelled_by"] = *u.CancelledBy
	}
	return cols
}

// ApplyTo mirrors Columns onto an in-memory record and bumps its version.
func (u UpdatedFields) ApplyTo(rec *models.BookingRecord) {
	rec.Status = u.To
	rec.UpdatedAt = u.UpdatedAt
	if u.CheckedInAt != nil {
		rec.CheckedInAt = u.CheckedInAt
	}
	if u.CheckedInBy != nil {
		rec.CheckedInBy = u.CheckedInBy
	}
	if u.PickedUpAt != nil {
		rec.PickedUpAt = u.PickedUpAt
	}
	if u.PickedUpBy != nil {
		rec.PickedUpBy = u.PickedUpBy
	}
	if u.CancelledBy != nil {
		rec.CancelledBy = u.CancelledBy
	}
	rec.Version++
}

// ApplyTransition validates current -> requested and returns the fields to
// persist. It performs no I/O.
func ApplyTransition(current, requested enums.BookingStatus, actor string, now time.Time) (*UpdatedFields, error) {
	if !requested.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown booking status %q", requested)
	}
	if !current.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeInternal, "booking has unknown status %q", current)
	}
	if current == requested || !CanTransition(current, requested) {
		return nil, invalidTransition(current, requested)
	}

	at := now.UTC()
	who := NormalizeActor(actor)
	fields := &UpdatedFields{
		From:      current,
		To:        requested,
		Actor:     who,
		UpdatedAt: at,
	}
	switch requested {
	case enums.BookingStatusCheckedIn:
		fields.CheckedInAt = &at
		fields.CheckedInBy = &who
	case enums.BookingStatusPickedUp:
		fields.PickedUpAt = &at
		fields.PickedUpBy = &who
	case enums.BookingStatusCancelled:
		fields.CancelledBy = &who
	}
	return fields, nil
}

// NormalizeActor trims the actor and falls back to UnknownActor.
func NormalizeActor(actor string) string {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return UnknownActor
	}
	return actor
}

func invalidTransition(from, to enums.BookingStatus) error {
	return pkgerrors.New(
		pkgerrors.CodeInvalidTransition,
		fmt.Sprintf("cannot move booking from %s to %s", from, to),
	).WithDetails(map[string]any{
		"currentStatus":   from,
		"requestedStatus": to,
		"allowed":         AllowedTargets(from),
	})
}
