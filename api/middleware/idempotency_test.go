package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/luggagedeposit-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = fmt.Sprint(value)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.data[key] = fmt.Sprint(value)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
		delete(f.ttls, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "fake:" + scope + ":" + id
}

func notesRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/bookings/ABC123/notes", strings.NewReader(body))
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{"/api/v1/bookings/{ref}/notes"}
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestReplayTTLMatchesPatternsAndPaths(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{http.MethodPost, "/api/v1/bookings/{ref}/transition", transitionReplayTTL, true},
		{http.MethodPost, "/api/v1/bookings/ABC123/transition", transitionReplayTTL, true},
		{http.MethodPatch, "/api/v1/bookings/ABC123/notes/", notesReplayTTL, true},
		{http.MethodPost, "/api/admin/v1/archive/stale", notesReplayTTL, true},
		{http.MethodPost, "/api/v1/bookings/ABC123/checkin-token", notesReplayTTL, true},
		{http.MethodPost, "/api/admin/v1/archive/CANCEL01", notesReplayTTL, true},
		{http.MethodGet, "/api/v1/bookings/ABC123", 0, false},
		{http.MethodPost, "/api/v1/bookings//transition", 0, false},
		{http.MethodPost, "/api/v1/bookings/ABC123/transition/extra", 0, false},
		{http.MethodPost, "/api/v1/checkin", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			ttl, ok := ruleTTL(tt.method, tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, ttl)
		})
	}
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	called := false
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, notesRequest("", `{"notes":"x"}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
}

func TestIdempotencyReplaysCompletedResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"notes":"fragile"}`, string(body), "handler still sees the body")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, notesRequest("abc", `{"notes":"fragile"}`))
	require.Equal(t, http.StatusAccepted, first.Code)

	replay := httptest.NewRecorder()
	handler.ServeHTTP(replay, notesRequest("abc", `{"notes":"fragile"}`))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusAccepted, replay.Code)
	assert.Equal(t, "application/json", replay.Header().Get("Content-Type"))
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, `{"ok":true}`, replay.Body.String())
	for key, ttl := range store.ttls {
		assert.Equal(t, notesReplayTTL, ttl, key)
	}
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), notesRequest("xyz", `{"notes":"a"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, notesRequest("xyz", `{"notes":"b"}`))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
}

func TestIdempotencyRejectsDifferentQuery(t *testing.T) {
	var days []string
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		days = append(days, r.URL.Query().Get("days"))
		w.WriteHeader(http.StatusOK)
	}))

	stale := func(query string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/archive/stale?"+query, nil)
		req.Header.Set(IdempotencyKeyHeader, "sweep-1")
		return req
	}

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, stale("days=30"))
	require.Equal(t, http.StatusOK, first.Code)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, stale("days=0"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))

	replay := httptest.NewRecorder()
	handler.ServeHTTP(replay, stale("days=30"))
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, []string{"30"}, days)
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	var inner *httptest.ResponseRecorder
	var handler http.Handler
	handler = Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A duplicate arrives while the first request is still running. It is
		// rejected before reaching this handler.
		inner = httptest.NewRecorder()
		handler.ServeHTTP(inner, notesRequest("same", `{"notes":"x"}`))
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, notesRequest("same", `{"notes":"x"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, inner)
	assert.Equal(t, http.StatusConflict, inner.Code)
	assert.Equal(t, string(pkgerrors.CodeConflict), errorCode(t, inner))
}

func TestIdempotencyReleasesKeyAfterServerError(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/ABC123/transition", strings.NewReader(`{"status":"checked_in"}`))
		req.Header.Set(IdempotencyKeyHeader, "retry-me")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls, "a retry after 503 reaches the handler")
	assert.Len(t, store.data, 1)
}

func TestIdempotencyScopeIsPerStaff(t *testing.T) {
	calls := 0
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	for _, staff := range []string{"staff-a", "staff-b"} {
		req := notesRequest("shared", `{"notes":"x"}`)
		req = req.WithContext(WithStaff(req.Context(), staff, "staff", ""))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls)
}

func TestIdempotencyIgnoresUnlistedRoutes(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/bookings/ABC123", nil))
	}
	assert.Equal(t, 2, calls)
	assert.Empty(t, store.data)
}
