package redis

import "strings"

const defaultNamespace = "ld"

// Keyspace builds namespaced keys: <namespace>:<kind>:<parts...>.
type Keyspace string

func (k Keyspace) IdempotencyKey(scope, id string) string {
	return k.key("idempotency", scope, id)
}

func (k Keyspace) RateLimitKey(scope string) string {
	return k.key("rate_limit", scope)
}

// LockKey names the lock guarding one scheduled job.
func (k Keyspace) LockKey(name string) string {
	return k.key("lock", name)
}

func (k Keyspace) key(parts ...string) string {
	ns := strings.TrimSpace(string(k))
	if ns == "" {
		ns = defaultNamespace
	}
	var b strings.Builder
	b.WriteString(ns)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
