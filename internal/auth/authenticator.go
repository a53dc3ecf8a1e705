package auth

import (
	"context"
	"sync"
	"time"

	"fleet-backend/internal/config"
)

// KeyLookup resolves a device API key to its fleet identifier; empty string
// means unknown. Backed by Redis in production.
type KeyLookup interface {
	GetAPIKey(ctx context.Context, apiKey string) (string, error)
}

type cacheEntry struct {
	fleetID   string
	expiresAt time.Time
}

// Authenticator validates device API keys on the ingest endpoint. Static
// config keys are checked first, then a local TTL cache, then the key store.
type Authenticator struct {
	localCache sync.Map
	lookup     KeyLookup
	ttl        time.Duration
	staticKeys map[string]bool
}

func NewAuthenticator(cfg *config.Config, lookup KeyLookup) *Authenticator {
	staticKeys := make(map[string]bool, len(cfg.ValidAPIKeys))
	for _, k := range cfg.ValidAPIKeys {
		if k != "" {
			staticKeys[k] = true
		}
	}

	return &Authenticator{
		lookup:     lookup,
		ttl:        time.Duration(cfg.AuthCacheTTLSeconds) * time.Second,
		staticKeys: staticKeys,
	}
}

func (a *Authenticator) Validate(ctx context.Context, apiKey string) bool {
	// Level 0: static config keys
	if a.staticKeys[apiKey] {
		return true
	}

	// Level 1: in-memory cache
	if raw, ok := a.localCache.Load(apiKey); ok {
		entry := raw.(cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			return true
		}
		a.localCache.Delete(apiKey)
	}

	// Level 2: key store lookup
	if a.lookup == nil {
		return false
	}
	fleetID, err := a.lookup.GetAPIKey(ctx, apiKey)
	if err != nil || fleetID == "" {
		return false
	}

	a.localCache.Store(apiKey, cacheEntry{
		fleetID:   fleetID,
		expiresAt: time.Now().Add(a.ttl),
	})

	return true
}
