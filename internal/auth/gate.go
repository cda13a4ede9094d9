package auth

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"chat-app-client/internal/logging"
)

// Verifier asks the backend whether the current agent holds a permission.
// *apiclient.Client satisfies it.
type Verifier interface {
	VerifyPermission(ctx context.Context, permission string) (bool, error)
}

type gateEntry struct {
	allowed bool
	expires time.Time
}

// Gate caches permission answers for a TTL. Errors are not cached.
type Gate struct {
	verifier Verifier
	ttl      time.Duration
	now      func() time.Time
	log      *zap.Logger

	mu      sync.Mutex
	entries map[string]gateEntry
}

func NewGate(v Verifier, ttl time.Duration, log *zap.Logger) *Gate {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Gate{
		verifier: v,
		ttl:      ttl,
		now:      time.Now,
		log:      logging.OrComponent(log, "auth"),
		entries:  make(map[string]gateEntry),
	}
}

func (g *Gate) Allowed(ctx context.Context, permission string) (bool, error) {
	now := g.now()

	g.mu.Lock()
	if e, ok := g.entries[permission]; ok && now.Before(e.expires) {
		g.mu.Unlock()
		return e.allowed, nil
	}
	g.mu.Unlock()

	allowed, err := g.verifier.VerifyPermission(ctx, permission)
	if err != nil {
		g.log.Warn("permission check failed", zap.String("permission", permission), zap.Error(err))
		return false, err
	}

	g.mu.Lock()
	g.entries[permission] = gateEntry{allowed: allowed, expires: now.Add(g.ttl)}
	g.mu.Unlock()
	return allowed, nil
}

// Invalidate drops every cached answer, e.g. after the token changes.
func (g *Gate) Invalidate() {
	g.mu.Lock()
	g.entries = make(map[string]gateEntry)
	g.mu.Unlock()
}
