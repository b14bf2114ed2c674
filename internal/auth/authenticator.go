package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sertdev/msgproxy/internal/store"
)

// Authenticator resolves plaintext client keys to stored records. Argon2id
// verification is deliberately slow, so successful lookups are cached by
// plaintext for a short TTL; a revoked key lingers at most that long.
type Authenticator struct {
	store *store.Store

	mu    sync.RWMutex
	cache map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	key     *store.APIKey
	expires time.Time
}

func NewAuthenticator(s *store.Store, cacheTTL time.Duration) *Authenticator {
	return &Authenticator{
		store: s,
		cache: make(map[string]cacheEntry),
		ttl:   cacheTTL,
	}
}

// Authenticate returns the active key record for a plaintext key, or nil
// when the key is unknown, malformed, or deactivated.
func (a *Authenticator) Authenticate(ctx context.Context, plaintext string) (*store.APIKey, error) {
	prefix := KeyPrefix(plaintext)
	if prefix == "" {
		return nil, nil
	}

	now := time.Now()
	a.mu.RLock()
	entry, ok := a.cache[plaintext]
	a.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.key, nil
	}

	candidates, err := a.store.GetKeysByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("looking up key: %w", err)
	}

	for i := range candidates {
		match, err := VerifyKey(plaintext, candidates[i].KeyHash)
		if err != nil {
			return nil, err
		}
		if match {
			k := candidates[i]
			a.mu.Lock()
			a.cache[plaintext] = cacheEntry{key: &k, expires: now.Add(a.ttl)}
			a.mu.Unlock()
			return &k, nil
		}
	}

	// Negative results are cached too: a bad key hammers the hash otherwise.
	a.mu.Lock()
	a.cache[plaintext] = cacheEntry{key: nil, expires: now.Add(a.ttl)}
	a.mu.Unlock()
	return nil, nil
}

// Invalidate drops a plaintext key from the cache.
func (a *Authenticator) Invalidate(plaintext string) {
	a.mu.Lock()
	delete(a.cache, plaintext)
	a.mu.Unlock()
}
