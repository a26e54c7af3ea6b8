package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/luggagedeposit-backend/api/responses"
	pkgerrors "github.com/angelmondragon/luggagedeposit-backend/pkg/errors"
	"github.com/angelmondragon/luggagedeposit-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/luggagedeposit-backend/pkg/redis"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"

	notesReplayTTL      = 24 * time.Hour
	transitionReplayTTL = 7 * 24 * time.Hour
	// pendingTTL bounds how long a crashed request keeps its key reserved.
	pendingTTL = time.Minute
)

// replayRule marks a mutating route whose responses are replayed for a
// repeated Idempotency-Key. Patterns use chi syntax; {param} matches any
// single path segment.
type replayRule struct {
	method  string
	pattern string
	ttl     time.Duration
}

var replayRules = []replayRule{
	{http.MethodPost, "/api/v1/bookings/{ref}/transition", transitionReplayTTL},
	{http.MethodPatch, "/api/v1/bookings/{ref}/notes", notesReplayTTL},
	{http.MethodPost, "/api/v1/bookings/{ref}/checkin-token", notesReplayTTL},
	{http.MethodPost, "/api/admin/v1/archive/stale", notesReplayTTL},
	{http.MethodPost, "/api/admin/v1/archive/{ref}", notesReplayTTL},
}

type replayState string

const (
	statePending  replayState = "pending"
	stateComplete replayState = "complete"
)

type replayRecord struct {
	State       replayState `json:"state"`
	RequestHash string      `json:"request_hash"`
	Status      int         `json:"status,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
	Body        []byte      `json:"body,omitempty"`
}

// Idempotency requires an Idempotency-Key on the routes in replayRules. The
// first request reserves the key, later requests with the same key and body
// get the stored response, and a different body or query is rejected. 5xx responses
// release the key so the client can retry.
func Idempotency(store pkgredis.ReplayStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := replayTTL(r)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := requestHash(r.Method, r.URL.Path, r.URL.RawQuery, body)
			key := store.IdempotencyKey(replayScope(r), clientKey)

			reserved, err := store.SetNX(ctx, key, encodeRecord(replayRecord{State: statePending, RequestHash: hash}), pendingTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnavailable, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replayExisting(w, r, store, key, hash, logg)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.statusCode()
			if status >= http.StatusInternalServerError {
				releaseKey(r, store, key, logg)
				return
			}
			done := replayRecord{
				State:       stateComplete,
				RequestHash: hash,
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			}
			if err := store.Set(ctx, key, encodeRecord(done), ttl); err != nil && logg != nil {
				logg.Error(ctx, "persist idempotency record", err)
			}
		})
	}
}

func replayExisting(w http.ResponseWriter, r *http.Request, store pkgredis.ReplayStore, key, hash string, logg *logger.Logger) {
	ctx := r.Context()
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// Expired between SetNX and Get.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnavailable, err, "load idempotency record"))
		return
	}
	var record replayRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record"))
		return
	}

	switch {
	case record.RequestHash != hash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different request"))
	case record.State != stateComplete:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is in progress"))
	default:
		if record.ContentType != "" {
			w.Header().Set("Content-Type", record.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(record.Status)
		_, _ = w.Write(record.Body)
	}
}

func releaseKey(r *http.Request, store pkgredis.ReplayStore, key string, logg *logger.Logger) {
	if err := store.Del(r.Context(), key); err != nil && logg != nil {
		logg.Error(r.Context(), "release idempotency key", err)
	}
}

func encodeRecord(record replayRecord) string {
	payload, _ := json.Marshal(record)
	return string(payload)
}

// replayScope keeps keys from different staff members and routes apart.
func replayScope(r *http.Request) string {
	return strings.Join([]string{StaffIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func requestHash(method, path, rawQuery string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(rawQuery))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// replayTTL matches the chi route pattern when one is available and the raw
// path otherwise. Middleware on a mounted group only sees a partial pattern.
func replayTTL(r *http.Request) (time.Duration, bool) {
	candidates := []string{r.URL.Path}
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			candidates = append([]string{pattern}, candidates...)
		}
	}
	for _, candidate := range candidates {
		if ttl, ok := ruleTTL(r.Method, candidate); ok {
			return ttl, true
		}
	}
	return 0, false
}

func ruleTTL(method, path string) (time.Duration, bool) {
	for _, rule := range replayRules {
		if rule.method == method && patternMatches(rule.pattern, path) {
			return rule.ttl, true
		}
	}
	return 0, false
}

func patternMatches(pattern, path string) bool {
	want := strings.Split(strings.Trim(pattern, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i, segment := range want {
		if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
			if got[i] == "" {
				return false
			}
			continue
		}
		if segment != got[i] {
			return false
		}
	}
	return true
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
