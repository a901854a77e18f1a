// Package ratelimit gates repeated per-user actions with short-lived tokens.
package ratelimit

import (
	"context"
	"time"

	"github.com/louisbranch/arcana.cards/internal/kv"
)

const keyPrefix = "draw:"

// Limiter is a thin cooldown policy over the key-value store. A live token
// under "draw:<user>" means the user is limited. Tokens are memory-only and
// expire on their own; nothing queues or notifies on expiry.
type Limiter struct {
	store    *kv.Store
	cooldown time.Duration
}

// NewLimiter creates a limiter issuing tokens with the given cooldown.
func NewLimiter(store *kv.Store, cooldown time.Duration) *Limiter {
	return &Limiter{store: store, cooldown: cooldown}
}

// IsLimited reports whether user currently holds a cooldown token.
func (l *Limiter) IsLimited(ctx context.Context, user string) (bool, error) {
	if l == nil || l.store == nil {
		return false, nil
	}
	return l.store.Has(ctx, keyPrefix+user, false)
}

// StartCooldown issues a cooldown token for user. A non-positive cooldown
// disables the limiter.
func (l *Limiter) StartCooldown(ctx context.Context, user string) error {
	if l == nil || l.store == nil || l.cooldown <= 0 {
		return nil
	}
	return l.store.Set(ctx, keyPrefix+user, true, kv.SetOptions{TTL: l.cooldown})
}
