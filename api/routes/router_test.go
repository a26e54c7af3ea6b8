package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalarchive "github.com/angelmondragon/luggagedeposit-backend/internal/archive"
	"github.com/angelmondragon/luggagedeposit-backend/internal/bookings"
	internalreports "github.com/angelmondragon/luggagedeposit-backend/internal/reports"
	pkgAuth "github.com/angelmondragon/luggagedeposit-backend/pkg/auth"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/config"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/db/models"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/luggagedeposit-backend/pkg/errors"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/logger"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/metrics"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/pagination"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type fakeCache struct {
	mu     sync.Mutex
	data   map[string]string
	counts map[string]int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string]string{}, counts: map[string]int64{}}
}

func (c *fakeCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (c *fakeCache) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[key]; ok {
		return false, nil
	}
	c.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = fmt.Sprintf("%v", value)
	return nil
}

func (c *fakeCache) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }

func (c *fakeCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *fakeCache) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[scope]++
	return c.counts[scope] <= limit, c.counts[scope], nil
}

func (c *fakeCache) Ping(context.Context) error { return nil }

func sampleRecord(ref string, status enums.BookingStatus) models.BookingRecord {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return models.BookingRecord{
		ID:           uuid.New(),
		BookingRef:   ref,
		Status:       status,
		CustomerName: "Ada Lovelace",
		DropOffDate:  "2026-05-01",
		DropOffTime:  "09:00",
		PickUpDate:   "2026-05-02",
		PickUpTime:   "18:00",
		BillableDays: 2,
		BagsSmall:    1,
		AmountCents:  1200,
		Currency:     enums.CurrencyEUR,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

type stubBookingService struct {
	mu          sync.Mutex
	transitions int
	lastActor   string
	lastFilters bookings.ListFilters
}

func (s *stubBookingService) ApplyTransition(_ context.Context, ref string, target enums.BookingStatus, actor string) (*bookings.TransitionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions++
	s.lastActor = actor
	if ref == "DONE01" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "cannot move booking from picked_up to "+string(target))
	}
	rec := sampleRecord(ref, target)
	return &bookings.TransitionResult{Booking: rec}, nil
}

func (s *stubBookingService) UpdateNotes(_ context.Context, ref, notes, _ string) (*models.Booking, error) {
	rec := sampleRecord(ref, enums.BookingStatusPaid)
	rec.Notes = notes
	return &models.Booking{BookingRecord: rec}, nil
}

func (s *stubBookingService) Get(_ context.Context, ref string) (*models.Booking, error) {
	if ref == "MISSING" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking MISSING not found")
	}
	return &models.Booking{BookingRecord: sampleRecord(ref, enums.BookingStatusPaid)}, nil
}

func (s *stubBookingService) Lookup(_ context.Context, ref string) (*bookings.LookupResult, error) {
	return &bookings.LookupResult{Booking: sampleRecord(ref, enums.BookingStatusPaid)}, nil
}

func (s *stubBookingService) List(_ context.Context, filters bookings.ListFilters, _ pagination.Params) (*bookings.ListResult, error) {
	s.mu.Lock()
	s.lastFilters = filters
	s.mu.Unlock()
	return &bookings.ListResult{Bookings: []models.Booking{{BookingRecord: sampleRecord("ABC123", enums.BookingStatusPaid)}}}, nil
}

type stubArchive struct {
	days       int
	archivedBy string
}

func (stubArchive) Get(_ context.Context, ref string) (*models.ArchivedBooking, error) {
	return &models.ArchivedBooking{BookingRecord: sampleRecord(ref, enums.BookingStatusPickedUp), ArchivedAt: time.Now(), ArchivedBy: "system"}, nil
}

func (stubArchive) List(context.Context, internalarchive.ListFilters, pagination.Params) (*internalarchive.ListResult, error) {
	return &internalarchive.ListResult{}, nil
}

func (s *stubArchive) ArchiveByRef(_ context.Context, ref, actor string) (*models.ArchivedBooking, error) {
	if ref == "PAID01" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "booking PAID01 is paid and cannot be archived")
	}
	s.archivedBy = actor
	return &models.ArchivedBooking{BookingRecord: sampleRecord(ref, enums.BookingStatusCancelled), ArchivedAt: time.Now(), ArchivedBy: actor}, nil
}

func (s *stubArchive) ArchiveStaleBy(_ context.Context, days int, _ string) (*internalarchive.Result, error) {
	s.days = days
	return &internalarchive.Result{Count: 2, Refs: []string{"AAA111", "BBB222"}}, nil
}

type stubCheckin struct{}

func (stubCheckin) Verify(_ context.Context, token string) (*bookings.LookupResult, error) {
	if token != "good" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid check-in token")
	}
	return &bookings.LookupResult{Booking: sampleRecord("ABC123", enums.BookingStatusPaid)}, nil
}

func (stubCheckin) CheckIn(context.Context, string, string) (*bookings.TransitionResult, error) {
	return &bookings.TransitionResult{Booking: sampleRecord("ABC123", enums.BookingStatusCheckedIn)}, nil
}

func (stubCheckin) Reissue(_ context.Context, ref, actor string) (*pkgAuth.CheckInToken, error) {
	if ref == "MISSING" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
	}
	expires := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	return &pkgAuth.CheckInToken{Token: "tok", URL: "https://dashboard.example.com/#/scan?token=tok&by=" + actor, ExpiresAt: expires}, nil
}

type stubReports struct{}

func (stubReports) Summary(_ context.Context, period internalreports.Period) (*internalreports.Summary, error) {
	return &internalreports.Summary{Mode: period.Mode, Date: period.Date}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
		CheckInRateLimit: config.CheckInRateLimitConfig{Window: time.Minute, IPLimit: 2},
	}
}

type testEnv struct {
	cfg      *config.Config
	router   http.Handler
	bookings *stubBookingService
	archive  *stubArchive
}

func newTestEnv(t *testing.T, cache Cache) *testEnv {
	t.Helper()
	cfg := testConfig()
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	reg := prometheus.NewRegistry()
	env := &testEnv{cfg: cfg, bookings: &stubBookingService{}, archive: &stubArchive{}}
	env.router = NewRouter(
		cfg,
		logg,
		stubPinger{},
		cache,
		reg,
		metrics.NewHTTPMetrics(reg),
		env.bookings,
		env.archive,
		env.archive,
		stubCheckin{},
		stubReports{},
		nil,
		nil,
		nil,
	)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.7:4000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func buildToken(t *testing.T, cfg *config.Config, role enums.StaffRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		StaffID: uuid.New(),
		Email:   "desk@example.com",
		Role:    role,
		JTI:     uuid.NewString(),
	})
	require.NoError(t, err)
	return token
}

func bearer(t *testing.T, cfg *config.Config, role enums.StaffRole) map[string]string {
	return map[string]string{"Authorization": "Bearer " + buildToken(t, cfg, role)}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, newFakeCache())
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health/live", "", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health/ready", "", nil).Code)

	noCache := newTestEnv(t, nil)
	rec := noCache.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"missing"`)
}

func TestMetricsEndpointExposesRequests(t *testing.T) {
	env := newTestEnv(t, newFakeCache())
	env.do(t, http.MethodGet, "/health/live", "", nil)

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestStaffRoutesRequireJWT(t *testing.T) {
	env := newTestEnv(t, newFakeCache())
	for _, path := range []string{"/api/v1/bookings", "/api/v1/archive", "/api/v1/reports/summary", "/api/v1/bookings/ABC123"} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestBookingListPassesFilters(t *testing.T) {
	env := newTestEnv(t, newFakeCache())
	rec := env.do(t, http.MethodGet, "/api/v1/bookings?search=%20ada%20&status=checked_in&date=today", "", bearer(t, env.cfg, enums.StaffRoleStaff))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "ada", env.bookings.lastFilters.Search)
	require.NotNil(t, env.bookings.lastFilters.Status)
	assert.Equal(t, enums.BookingStatusCheckedIn, *env.bookings.lastFilters.Status)
	assert.Equal(t, enums.BookingDateFilterToday, env.bookings.lastFilters.DateFilter)

	bad := env.do(t, http.MethodGet, "/api/v1/bookings?date=tomorrow", "", bearer(t, env.cfg, enums.StaffRoleStaff))
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestBookingDetailNotFound(t *testing.T) {
	env := newTestEnv(t, newFakeCache())
	rec := env.do(t, http.MethodGet, "/api/v1/bookings/MISSING", "", bearer(t, env.cfg, enums.StaffRoleStaff))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransitionRequiresIdempotencyKeyAndReplays(t *testing.T) {
	env := newTestEnv(t, newFakeCache())
	headers := bearer(t, env.cfg, enums.StaffRoleStaff)

	missing := env.do(t, http.MethodPost, "/api/v1/bookings/ABC123/transition", `{"status":"checked_in"}`, headers)
	require.Equal(t, http.StatusBadRequest, missing.Code)
	assert.Zero(t, env.bookings.transitions)

	headers["Idempotency-Key"] = "k-1"
	first := env.do(t, http.MethodPost, "/api/v1/bookings/ABC123/transition", `{"status":"checked_in"}`, headers)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	second := env.do(t, http.MethodPost, "/api/v1/bookings/ABC123/transition", `{"status":"checked_in"}`, headers)
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t, 1, env.bookings.transitions)
	assert.Equal(t, "desk@example.com", env.bookings.lastActor)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	env := newTestEnv(t, newFakeCache())
	headers := bearer(t, env.cfg, enums.StaffRoleStaff)
	headers["Idempotency-Key"] = "k-2"

	rec := env.do(t, http.MethodPost, "/api/v1/bookings/ABC123/transition", `{"status":"lost"}`, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, env.bookings.transitions)
}

func TestTransitionInvalidTransitionIs422(t *testing.T) {
	env := newTestEnv(t, newFakeCache())
	headers := bearer(t, env.cfg, enums.StaffRoleStaff)
	headers["Idempotency-Key"] = "k-3"

	rec := env.do(t, http.MethodPost, "/api/v1/bookings/DONE01/transition", `{"status":"cancelled"}`, headers)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(pkgerrors.CodeInvalidTransition), body.Error.Code)
	assert.Contains(t, body.Error.Message, "picked_up")
}

func TestAdminArchiveRequiresAdminRole(t *testing.T) {
	env := newTestEnv(t, newFakeCache())

	staff := bearer(t, env.cfg, enums.StaffRoleStaff)
	staff["Idempotency-Key"] = "a-1"
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, "/api/admin/v1/archive/stale?days=7", "", staff).Code)

	admin := bearer(t, env.cfg, enums.StaffRoleAdmin)
	admin["Idempotency-Key"] = "a-2"
	rec := env.do(t, http.MethodPost, "/api/admin/v1/archive/stale?days=7", "", admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 7, env.archive.days)
	assert.Contains(t, rec.Body.String(), `"count":2`)

	admin["Idempotency-Key"] = "a-3"
	neg := env.do(t, http.MethodPost, "/api/admin/v1/archive/stale?days=-1", "", admin)
	assert.Equal(t, http.StatusBadRequest, neg.Code)
}

func TestReissueCheckInTokenIsStaffOnly(t *testing.T) {
	env := newTestEnv(t, newFakeCache())

	anon := env.do(t, http.MethodPost, "/api/v1/bookings/ABC123/checkin-token", "", map[string]string{"Idempotency-Key": "r-0"})
	assert.Equal(t, http.StatusUnauthorized, anon.Code)

	headers := bearer(t, env.cfg, enums.StaffRoleStaff)
	missingKey := env.do(t, http.MethodPost, "/api/v1/bookings/abc123/checkin-token", "", headers)
	assert.Equal(t, http.StatusBadRequest, missingKey.Code)

	headers["Idempotency-Key"] = "r-1"
	rec := env.do(t, http.MethodPost, "/api/v1/bookings/abc123/checkin-token", "", headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"booking_ref":"ABC123"`)
	assert.Contains(t, rec.Body.String(), "by=desk@example.com")

	headers["Idempotency-Key"] = "r-2"
	missing := env.do(t, http.MethodPost, "/api/v1/bookings/MISSING/checkin-token", "", headers)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestAdminArchiveOne(t *testing.T) {
	env := newTestEnv(t, newFakeCache())

	staff := bearer(t, env.cfg, enums.StaffRoleStaff)
	staff["Idempotency-Key"] = "o-1"
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, "/api/admin/v1/archive/CANCEL01", "", staff).Code)

	admin := bearer(t, env.cfg, enums.StaffRoleAdmin)
	admin["Idempotency-Key"] = "o-2"
	rec := env.do(t, http.MethodPost, "/api/admin/v1/archive/CANCEL01", "", admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status":"cancelled"`)
	assert.Equal(t, "desk@example.com", env.archive.archivedBy)

	admin["Idempotency-Key"] = "o-3"
	paid := env.do(t, http.MethodPost, "/api/admin/v1/archive/PAID01", "", admin)
	assert.Equal(t, http.StatusUnprocessableEntity, paid.Code)
}

func TestKioskRoutesAreRateLimitedWithoutAuth(t *testing.T) {
	env := newTestEnv(t, newFakeCache())

	ok := env.do(t, http.MethodPost, "/api/v1/checkin/verify", `{"token":"good"}`, nil)
	require.Equal(t, http.StatusOK, ok.Code, ok.Body.String())
	assert.NotContains(t, ok.Body.String(), "amount_cents")

	denied := env.do(t, http.MethodPost, "/api/v1/checkin/verify", `{"token":"bad"}`, nil)
	require.Equal(t, http.StatusUnauthorized, denied.Code)
	assert.Contains(t, denied.Body.String(), "invalid check-in token")

	limited := env.do(t, http.MethodPost, "/api/v1/checkin", `{"token":"good"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
}

func TestWebhookWithoutStripeIsInternalError(t *testing.T) {
	env := newTestEnv(t, newFakeCache())
	rec := env.do(t, http.MethodPost, "/api/v1/webhooks/stripe", `{}`, map[string]string{"Stripe-Signature": "t=1,v1=x"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
