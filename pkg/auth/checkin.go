package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/luggagedeposit-backend/pkg/config"
)

var (
	ErrCheckInSecretMissing = errors.New("check-in secret is required")
	ErrCheckInPurpose       = errors.New("token purpose is not check-in")
	ErrCheckInSubject       = errors.New("token carries no booking reference")
)

// CheckInToken is a minted kiosk token plus the scan link built from it.
type CheckInToken struct {
	Token     string
	URL       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// MintCheckInToken signs a check-in token for the booking.
func MintCheckInToken(cfg config.CheckInConfig, now time.Time, bookingID uuid.UUID, bookingRef string) (*CheckInToken, error) {
	if cfg.Secret == "" {
		return nil, ErrCheckInSecretMissing
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("check-in token ttl must be positive")
	}
	ref := strings.ToUpper(strings.TrimSpace(bookingRef))
	if ref == "" {
		return nil, ErrCheckInSubject
	}

	issuedAt := now.UTC()
	expiresAt := issuedAt.Add(cfg.TTL)
	claims := CheckInClaims{
		BookingID:  bookingID,
		BookingRef: ref,
		Type:       CheckInPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   ref,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := sign(cfg.Secret, claims)
	if err != nil {
		return nil, err
	}
	return &CheckInToken{
		Token:     signed,
		URL:       cfg.URL(signed),
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// ParseCheckInToken verifies signature, expiry, issuer and purpose. The
// returned error names the failed check and must stay server side.
func ParseCheckInToken(cfg config.CheckInConfig, now time.Time, tokenString string) (*CheckInClaims, error) {
	if cfg.Secret == "" {
		return nil, ErrCheckInSecretMissing
	}

	opts := []jwt.ParserOption{jwt.WithTimeFunc(func() time.Time { return now })}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &CheckInClaims{}
	if err := parse(cfg.Secret, tokenString, claims, opts...); err != nil {
		return nil, err
	}
	if claims.Type != CheckInPurpose {
		return nil, ErrCheckInPurpose
	}
	claims.BookingRef = strings.ToUpper(strings.TrimSpace(claims.BookingRef))
	if claims.BookingRef == "" {
		return nil, ErrCheckInSubject
	}
	return claims, nil
}
