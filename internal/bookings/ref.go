package bookings

import (
	"regexp"
	"strings"

	pkgerrors "github.com/angelmondragon/luggagedeposit-backend/pkg/errors"
)

var refPattern = regexp.MustCompile(`^[A-Z0-9]{6,12}$`)

// NormalizeRef uppercases and validates a booking reference.
func NormalizeRef(ref string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(ref))
	if !refPattern.MatchString(normalized) {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "invalid booking reference %q", ref).
			WithDetails(map[string]any{"bookingRef": "must be 6-12 uppercase letters or digits"})
	}
	return normalized, nil
}
