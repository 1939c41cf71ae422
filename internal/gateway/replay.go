package gateway

import (
	"log"
	"sync"
	"time"

	"github.com/kioskwatch/backend/internal/cache"
)

// ReplaySet enforces single use of stream tokens. Entries live until the
// token itself would have expired, so the set stays bounded by the token TTL.
// With Redis configured the check is shared across gateway instances.
type ReplaySet struct {
	mu    sync.Mutex
	used  map[string]time.Time
	redis *cache.RedisClient
}

// NewReplaySet creates a replay set. redis may be nil for a purely local set.
func NewReplaySet(redis *cache.RedisClient) *ReplaySet {
	return &ReplaySet{
		used:  make(map[string]time.Time),
		redis: redis,
	}
}

// Use records a token key. Returns true on first use, false on replay.
func (r *ReplaySet) Use(key string, expiresAt time.Time) bool {
	if r.redis != nil {
		first, err := r.redis.MarkStreamTokenUsed(key, time.Until(expiresAt))
		if err == nil {
			return first
		}
		// Redis down: fall through to the local set rather than reject
		log.Printf("Replay check via Redis failed, using local set: %v", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, replayed := r.used[key]; replayed {
		return false
	}
	r.used[key] = expiresAt
	return true
}

// Sweep removes entries for tokens that have expired. Returns how many were
// purged.
func (r *ReplaySet) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	purged := 0
	for key, expiresAt := range r.used {
		if now.After(expiresAt) {
			delete(r.used, key)
			purged++
		}
	}
	return purged
}

// Size returns the current number of tracked tokens
func (r *ReplaySet) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.used)
}

// Run sweeps periodically until stop closes
func (r *ReplaySet) Run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if purged := r.Sweep(time.Now()); purged > 0 {
				log.Printf("Replay set sweep purged %d expired tokens", purged)
			}
		case <-stop:
			return
		}
	}
}
