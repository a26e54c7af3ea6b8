// Package idempotency claims message ids in Redis so redelivered Pub/Sub
// messages and Stripe events are handled once per consumer.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/luggagedeposit-backend/pkg/redis"
)

// Guard holds claims for one consumer scope. A claim lives for ttl; zero
// keeps it until Release.
type Guard struct {
	store redis.IdempotencyStore
	scope string
	ttl   time.Duration
}

// ConsumerScope namespaces claims for an event consumer.
func ConsumerScope(consumer string) string {
	return "evt:processed:" + strings.TrimSpace(consumer)
}

func New(store redis.IdempotencyStore, scope string, ttl time.Duration) (*Guard, error) {
	scope = strings.TrimSpace(scope)
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case scope == "" || strings.HasSuffix(scope, ":"):
		return nil, errors.New("idempotency scope is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, scope: scope, ttl: ttl}, nil
}

// CheckAndMark claims id and reports whether an earlier claim already held it.
func (g *Guard) CheckAndMark(ctx context.Context, id string) (bool, error) {
	key, err := g.key(id)
	if err != nil {
		return false, err
	}
	claimed, err := g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return !claimed, nil
}

// Release drops the claim so the next delivery of id is processed again.
func (g *Guard) Release(ctx context.Context, id string) error {
	key, err := g.key(id)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("message id is required")
	}
	return g.store.IdempotencyKey(g.scope, id), nil
}
