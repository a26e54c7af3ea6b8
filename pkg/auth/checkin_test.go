package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/luggagedeposit-backend/pkg/config"
)

func checkInConfig() config.CheckInConfig {
	return config.CheckInConfig{
		Secret:  "checkin-secret",
		Issuer:  "luggage-deposit",
		TTL:     30 * 24 * time.Hour,
		BaseURL: "https://dashboard.example.com/#/scan",
	}
}

func TestMintAndParseCheckInToken(t *testing.T) {
	cfg := checkInConfig()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	bookingID := uuid.New()

	minted, err := MintCheckInToken(cfg, now, bookingID, " abc123 ")
	require.NoError(t, err)
	assert.Equal(t, now.Add(cfg.TTL), minted.ExpiresAt)
	assert.True(t, strings.HasPrefix(minted.URL, "https://dashboard.example.com/#/scan?token="))

	claims, err := ParseCheckInToken(cfg, now.Add(29*24*time.Hour), minted.Token)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", claims.BookingRef)
	assert.Equal(t, bookingID, claims.BookingID)
	assert.Equal(t, CheckInPurpose, claims.Type)
}

func TestParseCheckInTokenExpired(t *testing.T) {
	cfg := checkInConfig()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	minted, err := MintCheckInToken(cfg, now, uuid.New(), "ABC123")
	require.NoError(t, err)

	_, err = ParseCheckInToken(cfg, now.Add(31*24*time.Hour), minted.Token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, jwt.ErrTokenExpired))
}

func TestParseCheckInTokenWrongSecret(t *testing.T) {
	cfg := checkInConfig()
	now := time.Now().UTC()

	minted, err := MintCheckInToken(cfg, now, uuid.New(), "ABC123")
	require.NoError(t, err)

	other := cfg
	other.Secret = "another-secret"
	_, err = ParseCheckInToken(other, now, minted.Token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, jwt.ErrTokenSignatureInvalid))
}

func TestParseCheckInTokenRejectsOtherPurpose(t *testing.T) {
	cfg := checkInConfig()
	now := time.Now().UTC()

	claims := CheckInClaims{
		BookingID:  uuid.New(),
		BookingRef: "ABC123",
		Type:       "receipt",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	_, err = ParseCheckInToken(cfg, now, signed)
	assert.ErrorIs(t, err, ErrCheckInPurpose)
}

func TestParseCheckInTokenRejectsStaffToken(t *testing.T) {
	cfg := checkInConfig()
	staffCfg := config.JWTConfig{Secret: cfg.Secret, Issuer: cfg.Issuer, ExpirationMinutes: 10}
	now := time.Now().UTC()

	token, err := MintAccessToken(staffCfg, now, AccessTokenPayload{StaffID: uuid.New(), Email: "a@b.c", Role: "staff"})
	require.NoError(t, err)

	_, err = ParseCheckInToken(cfg, now, token)
	assert.ErrorIs(t, err, ErrCheckInPurpose)
}

func TestMintCheckInTokenRequiresSecret(t *testing.T) {
	cfg := checkInConfig()
	cfg.Secret = ""
	_, err := MintCheckInToken(cfg, time.Now(), uuid.New(), "ABC123")
	assert.ErrorIs(t, err, ErrCheckInSecretMissing)
}
