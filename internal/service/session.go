package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/rakshak/internal/apperror"
	"github.com/sakif/rakshak/internal/cache"
	"github.com/sakif/rakshak/internal/model"
	"github.com/sakif/rakshak/internal/repository"
)

// DefaultSessionTTL is how long a mirrored identity stays in memory before
// Current goes back to the local store.
const DefaultSessionTTL = 15 * time.Minute

// SessionCache mirrors the signed-in identity under rakshak_user.
//
// The local store is the record; the in-memory cache only saves a read
// on the hot path (every authenticated page load calls Current).
type SessionCache struct {
	local  repository.LocalStore
	cache  *cache.TTLCache[string, model.Identity]
	logger *slog.Logger
}

// NewSessionCache creates a SessionCache. Close it on shutdown.
func NewSessionCache(local repository.LocalStore, ttl time.Duration, logger *slog.Logger) *SessionCache {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionCache{
		local:  local,
		cache:  cache.New[string, model.Identity](ttl, ttl),
		logger: logger,
	}
}

// Mirror stores id as the current identity of id.UID.
func (c *SessionCache) Mirror(ctx context.Context, id *model.Identity) error {
	if id == nil || id.UID == "" {
		return apperror.ValidationFailed("uid", "identity has no uid")
	}
	if err := saveLocal(ctx, c.local, id.UID, model.KeyUser, id); err != nil {
		return fmt.Errorf("service/session: mirroring %s: %w", id.UID, err)
	}
	c.cache.Set(id.UID, *id)
	return nil
}

// Current returns the mirrored identity for uid, or a not-found error.
func (c *SessionCache) Current(ctx context.Context, uid string) (*model.Identity, error) {
	if id, ok := c.cache.Get(uid); ok {
		return &id, nil
	}

	var id model.Identity
	found, err := loadLocal(ctx, c.local, uid, model.KeyUser, &id)
	if err != nil {
		return nil, fmt.Errorf("service/session: loading %s: %w", uid, err)
	}
	if !found {
		return nil, apperror.NotFound("session", uid)
	}
	c.cache.Set(uid, id)
	return &id, nil
}

// Clear deletes keys from uid's local store and evicts the cached identity.
func (c *SessionCache) Clear(ctx context.Context, uid string, keys ...string) error {
	c.cache.Delete(uid)
	if len(keys) == 0 {
		return nil
	}
	if err := c.local.DeleteValues(ctx, uid, keys...); err != nil {
		return fmt.Errorf("service/session: clearing %s: %w", uid, err)
	}
	return nil
}

// Close stops the cache's cleanup goroutine.
func (c *SessionCache) Close() {
	c.cache.Close()
}
