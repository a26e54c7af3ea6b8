package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/luggagedeposit-backend/pkg/auth"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/config"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
)

func TestAuthRejectsMissingToken(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 10}
	handler := Auth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 10}
	handler := Auth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsTokenFromOtherIssuer(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 10}
	other := config.JWTConfig{Secret: "secret", Issuer: "someone-else", ExpirationMinutes: 10}
	token := mintTestToken(t, other, enums.StaffRoleStaff, "desk@example.com")

	handler := Auth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthAllowsValidToken(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}
	token := mintTestToken(t, cfg, enums.StaffRoleAdmin, "ops@example.com")

	var captured struct {
		staff string
		role  string
		actor string
	}
	handler := Auth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.staff = StaffIDFromContext(r.Context())
		captured.role = RoleFromContext(r.Context())
		captured.actor = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.staff == "" {
		t.Fatal("expected staff id in context")
	}
	if captured.role != string(enums.StaffRoleAdmin) {
		t.Fatalf("expected role admin got %s", captured.role)
	}
	if captured.actor != "ops@example.com" {
		t.Fatalf("expected actor email got %s", captured.actor)
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(nil, enums.StaffRoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := map[enums.StaffRole]int{
		enums.StaffRoleAdmin: http.StatusNoContent,
		enums.StaffRoleStaff: http.StatusForbidden,
		"":                   http.StatusForbidden,
	}
	for role, want := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req = req.WithContext(WithStaff(req.Context(), uuid.NewString(), string(role), "x@example.com"))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != want {
			t.Fatalf("role %q: expected %d got %d", role, want, resp.Code)
		}
	}
}

func TestActorFallsBackToStaffID(t *testing.T) {
	id := uuid.NewString()
	ctx := WithStaff(context.Background(), id, string(enums.StaffRoleStaff), "")
	if got := ActorFromContext(ctx); got != id {
		t.Fatalf("expected staff id actor, got %q", got)
	}
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, role enums.StaffRole, email string) string {
	t.Helper()
	payload := auth.AccessTokenPayload{
		StaffID: uuid.New(),
		Email:   email,
		Role:    role,
		JTI:     uuid.NewString(),
	}
	token, err := auth.MintAccessToken(cfg, time.Now(), payload)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}
