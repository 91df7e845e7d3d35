// Package appconfig caches the process-wide platform configuration record.
package appconfig

import (
	"context"
	"sync"
	"time"

	"tenantcore/internal/blob"
	"tenantcore/internal/paths"
	"tenantcore/pkg/domain"
)

// Cache lazily loads the AppConfig record from its well-known key and serves
// it from memory until invalidated. There is no TTL and no background
// refresh: whoever writes the config must call Invalidate (or go through
// Update) afterwards.
type Cache struct {
	blobs blob.Store
	now   func() time.Time

	mu  sync.Mutex
	cfg *domain.AppConfig
}

// New returns a cache reading through the given blob store.
func New(blobs blob.Store) *Cache {
	return &Cache{blobs: blobs, now: func() time.Time { return time.Now().UTC() }}
}

// Load returns the cached config, reading it from storage on first access.
// A missing record (first run) is replaced by a persisted default config.
func (c *Cache) Load(ctx context.Context) (domain.AppConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg != nil {
		return *c.cfg, nil
	}
	var cfg domain.AppConfig
	found, err := blob.GetJSON(ctx, c.blobs, paths.AppConfig, &cfg)
	if err != nil {
		return domain.AppConfig{}, err
	}
	if !found {
		cfg = Default(c.now())
		if err := blob.PutJSON(ctx, c.blobs, paths.AppConfig, cfg); err != nil {
			return domain.AppConfig{}, err
		}
	}
	cfg = ensurePublicKey(cfg)
	c.cfg = &cfg
	return cfg, nil
}

// Invalidate drops the cached copy; the next Load re-reads storage.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.cfg = nil
	c.mu.Unlock()
}

// Update normalizes, persists and re-caches the config in one step.
func (c *Cache) Update(ctx context.Context, cfg domain.AppConfig) (domain.AppConfig, error) {
	cfg = ensurePublicKey(cfg)
	cfg.UpdatedAt = c.now()
	if err := blob.PutJSON(ctx, c.blobs, paths.AppConfig, cfg); err != nil {
		return domain.AppConfig{}, err
	}
	c.mu.Lock()
	c.cfg = &cfg
	c.mu.Unlock()
	return cfg, nil
}

// Default returns the first-run configuration: a public tier plus the two
// built-in authenticated tiers.
func Default(now time.Time) domain.AppConfig {
	return domain.AppConfig{
		MembershipKeys: []domain.MembershipKeyDefinition{
			{ID: domain.PublicMembershipKey, Name: "Public", RequiresAuth: false, Order: 0},
			{ID: "platform", Name: "Platform", RequiresAuth: true, Order: 1},
			{ID: "member", Name: "Member", RequiresAuth: true, Order: 2},
		},
		TierKeys:  map[string]string{"free": domain.PublicMembershipKey, "standard": "platform", "premium": "member"},
		UpdatedAt: now,
	}
}

// ensurePublicKey guarantees the catalog carries the public key at order 0.
func ensurePublicKey(cfg domain.AppConfig) domain.AppConfig {
	if _, ok := cfg.KeyByID(domain.PublicMembershipKey); ok {
		return cfg
	}
	keys := make([]domain.MembershipKeyDefinition, 0, len(cfg.MembershipKeys)+1)
	keys = append(keys, domain.MembershipKeyDefinition{
		ID: domain.PublicMembershipKey, Name: "Public", RequiresAuth: false, Order: 0,
	})
	keys = append(keys, cfg.MembershipKeys...)
	cfg.MembershipKeys = keys
	return cfg
}
