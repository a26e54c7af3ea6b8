package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
)

// CheckInPurpose is the fixed type claim of kiosk check-in tokens.
const CheckInPurpose = "checkin"

// AccessTokenPayload captures the data available when minting a staff JWT.
type AccessTokenPayload struct {
	StaffID uuid.UUID
	Email   string
	Role    enums.StaffRole
	JTI     string
}

// AccessTokenClaims represents the staff bearer token.
type AccessTokenClaims struct {
	StaffID uuid.UUID       `json:"staff_id"`
	Email   string          `json:"email"`
	Role    enums.StaffRole `json:"role"`
	jwt.RegisteredClaims
}

// CheckInClaims binds a booking to a kiosk check-in token.
type CheckInClaims struct {
	BookingID  uuid.UUID `json:"bookingId"`
	BookingRef string    `json:"bookingRef"`
	Type       string    `json:"type"`
	jwt.RegisteredClaims
}
