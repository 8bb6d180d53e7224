package cache

import (
	"net/http"
)

// CacheManager owns the cache instances behind the cached routes. Factor
// tables only change on redeploy, so their TTL bounds staleness after a
// rolling restart and InvalidateAll is the only targeted eviction needed.
type CacheManager struct {
	factors *LRUCache
}

// NewCacheManager creates a CacheManager from the given configuration.
// If cfg is nil or disabled, it returns nil.
func NewCacheManager(cfg *CacheConfig) *CacheManager {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return &CacheManager{factors: NewLRUCache("factors", cfg.MaxSize, cfg.FactorsTTL)}
}

// InvalidateAll clears every cache.
func (cm *CacheManager) InvalidateAll() {
	if cm == nil {
		return
	}
	cm.factors.InvalidateAll()
}

// FactorsMiddleware caches GET /factors responses. A nil manager returns a
// pass-through middleware.
func (cm *CacheManager) FactorsMiddleware() func(http.Handler) http.Handler {
	if cm == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return CacheMiddleware(cm.factors)
}
