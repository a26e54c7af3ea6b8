package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	keys   map[string]time.Duration
	setErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]time.Duration{}}
}

func (m *memoryStore) Get(context.Context, string) (string, error) {
	return "", nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = ttl
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "ld:idempotency:" + scope + ":" + id
}

func TestGuardClaimsOnce(t *testing.T) {
	store := newMemoryStore()
	guard, err := New(store, ConsumerScope("analytics"), 24*time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	id := uuid.NewString()

	seen, err := guard.CheckAndMark(ctx, id)
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = guard.CheckAndMark(ctx, " "+id+" ")
	require.NoError(t, err)
	assert.True(t, seen, "surrounding space is ignored")

	ttl, ok := store.keys["ld:idempotency:evt:processed:analytics:"+id]
	require.True(t, ok)
	assert.Equal(t, 24*time.Hour, ttl)
}

func TestGuardReleaseAllowsRetry(t *testing.T) {
	store := newMemoryStore()
	guard, err := New(store, "stripe-webhook", time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	require.NoError(t, guard.Release(ctx, "evt_1"))
	assert.Empty(t, store.keys)

	seen, err := guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestGuardScopesAreIndependent(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	analytics, err := New(store, ConsumerScope("analytics"), time.Hour)
	require.NoError(t, err)
	webhook, err := New(store, "stripe-webhook", time.Hour)
	require.NoError(t, err)

	_, err = analytics.CheckAndMark(ctx, "shared")
	require.NoError(t, err)
	seen, err := webhook.CheckAndMark(ctx, "shared")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestGuardWrapsStoreError(t *testing.T) {
	store := newMemoryStore()
	store.setErr = errors.New("redis down")
	guard, err := New(store, "stripe-webhook", time.Hour)
	require.NoError(t, err)

	_, err = guard.CheckAndMark(context.Background(), "evt_1")
	require.ErrorIs(t, err, store.setErr)
}

func TestGuardValidation(t *testing.T) {
	_, err := New(nil, "scope", time.Hour)
	assert.Error(t, err)
	_, err = New(newMemoryStore(), " ", time.Hour)
	assert.Error(t, err)
	_, err = New(newMemoryStore(), ConsumerScope(""), time.Hour)
	assert.Error(t, err)
	_, err = New(newMemoryStore(), "scope", -time.Second)
	assert.Error(t, err)

	guard, err := New(newMemoryStore(), "scope", 0)
	require.NoError(t, err)
	_, err = guard.CheckAndMark(context.Background(), "")
	assert.Error(t, err)
	assert.Error(t, guard.Release(context.Background(), " "))
}
