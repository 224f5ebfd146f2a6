package bot

import (
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/yourusername/keiba-line-bot/internal/metrics"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

// Defaults used when the cache config leaves them unset
const (
	DefaultPredictionTTL   = 6 * time.Hour
	DefaultCleanupInterval = 30 * time.Minute
)

// DateKey is the cache key for a racing day.
func DateKey(date time.Time) string {
	return date.Format("2006-01-02")
}

// PredictionCache holds successful day predictions keyed by date
type PredictionCache struct {
	cache     *cache.Cache
	ttl       time.Duration
	mu        sync.Mutex
	hitCount  uint64
	missCount uint64
}

// NewPredictionCache creates a cache with the given entry TTL.
func NewPredictionCache(ttl, cleanup time.Duration) *PredictionCache {
	if ttl <= 0 {
		ttl = DefaultPredictionTTL
	}
	if cleanup <= 0 {
		cleanup = DefaultCleanupInterval
	}
	return &PredictionCache{
		cache: cache.New(ttl, cleanup),
		ttl:   ttl,
	}
}

// Get returns the cached result for date, or nil.
func (pc *PredictionCache) Get(date time.Time) *models.PredictionResult {
	item, found := pc.cache.Get(DateKey(date))

	pc.mu.Lock()
	if found {
		pc.hitCount++
	} else {
		pc.missCount++
	}
	ratio := pc.ratioLocked()
	pc.mu.Unlock()
	metrics.SetPredictionCacheHitRatio(ratio)

	if !found {
		return nil
	}
	result, _ := item.(*models.PredictionResult)
	return result
}

// Set stores result under date. Error results are never cached.
func (pc *PredictionCache) Set(date time.Time, result *models.PredictionResult) {
	if result == nil || !result.Succeeded() {
		return
	}
	pc.cache.Set(DateKey(date), result, pc.ttl)
}

// Clear flushes every entry and the hit statistics.
func (pc *PredictionCache) Clear() {
	pc.cache.Flush()

	pc.mu.Lock()
	pc.hitCount = 0
	pc.missCount = 0
	pc.mu.Unlock()
	metrics.SetPredictionCacheHitRatio(0)
}

// Stats returns cache statistics
func (pc *PredictionCache) Stats() (hits, misses uint64, ratio float64) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.hitCount, pc.missCount, pc.ratioLocked()
}

// ItemCount returns the number of cached days
func (pc *PredictionCache) ItemCount() int {
	return pc.cache.ItemCount()
}

func (pc *PredictionCache) ratioLocked() float64 {
	total := pc.hitCount + pc.missCount
	if total == 0 {
		return 0
	}
	return float64(pc.hitCount) / float64(total)
}
