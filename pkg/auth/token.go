// Package auth mints and verifies the two HS256 token kinds the service
// accepts: staff bearer tokens and kiosk check-in tokens.
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

var jwtSigningMethod = jwt.SigningMethodHS256

var ErrJWTSecretMissing = errors.New("jwt secret is required")

// MintAccessToken signs a staff token valid for cfg.ExpirationMinutes from
// now. A blank JTI is replaced by a random one.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	email := strings.TrimSpace(payload.Email)
	switch {
	case cfg.Secret == "":
		return "", ErrJWTSecretMissing
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return "", errors.New("jwt expiration minutes must be positive")
	case !payload.Role.IsValid():
		return "", fmt.Errorf("invalid staff role %q", payload.Role)
	case email == "":
		return "", errors.New("staff email is required")
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	ttl := time.Duration(cfg.ExpirationMinutes) * time.Minute
	return sign(cfg.Secret, AccessTokenClaims{
		StaffID: payload.StaffID,
		Email:   email,
		Role:    payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    cfg.Issuer,
			Subject:   payload.StaffID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
}

// ParseAccessToken checks signature, issuer and expiry, then the role.
func ParseAccessToken(cfg config.JWTConfig, tokenString string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, ErrJWTSecretMissing
	}
	claims := &AccessTokenClaims{}
	if err := parse(cfg.Secret, tokenString, claims, jwt.WithIssuer(cfg.Issuer)); err != nil {
		return nil, err
	}
	if !claims.Role.IsValid() {
		return nil, fmt.Errorf("invalid staff role %q", claims.Role)
	}
	return claims, nil
}

func sign(secret string, claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// parse pins the algorithm and requires an exp claim on every token.
func parse(secret, tokenString string, claims jwt.Claims, extra ...jwt.ParserOption) error {
	opts := append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithExpirationRequired(),
	}, extra...)
	_, err := jwt.ParseWithClaims(strings.TrimSpace(tokenString), claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, opts...)
	return err
}
