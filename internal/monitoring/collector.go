package monitoring

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sells-group/property-geocoder/pkg/geocode"
)

// MetricsSnapshot holds a point-in-time view of geocoder health.
type MetricsSnapshot struct {
	// Lifetime counters and rates from the geocoder.
	Stats geocode.StatsSnapshot `json:"stats"`

	// Activity since the previous collection.
	WindowRequests     int64   `json:"window_requests"`
	WindowCacheHits    int64   `json:"window_cache_hits"`
	WindowSuccesses    int64   `json:"window_successes"`
	WindowFailures     int64   `json:"window_failures"`
	WindowSuccessRate  float64 `json:"window_success_rate"`
	WindowCacheHitRate float64 `json:"window_cache_hit_rate"`

	// Providers whose breaker is not closed, sorted.
	OpenBreakers []string `json:"open_breakers,omitempty"`

	// Metadata.
	Window      time.Duration `json:"window"`
	CollectedAt time.Time     `json:"collected_at"`
}

// StatsSource is the geocoder view needed by the collector.
type StatsSource interface {
	Stats() geocode.StatsSnapshot
}

// Collector turns cumulative geocoder stats into per-window snapshots.
type Collector struct {
	source StatsSource
	clock  clockwork.Clock

	mu       sync.Mutex
	prev     geocode.StatsSnapshot
	prevTime time.Time
}

// NewCollector creates a collector. The first window starts now.
func NewCollector(source StatsSource, clock clockwork.Clock) *Collector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Collector{
		source:   source,
		clock:    clock,
		prev:     source.Stats(),
		prevTime: clock.Now(),
	}
}

// Collect snapshots the geocoder and advances the window.
func (c *Collector) Collect() *MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	cur := c.source.Stats()
	snap := &MetricsSnapshot{
		Stats:           cur,
		WindowRequests:  cur.TotalRequests - c.prev.TotalRequests,
		WindowCacheHits: cur.CacheHits - c.prev.CacheHits,
		WindowSuccesses: (cur.NominatimSuccess + cur.GoogleSuccess) - (c.prev.NominatimSuccess + c.prev.GoogleSuccess),
		WindowFailures:  cur.Failures - c.prev.Failures,
		Window:          now.Sub(c.prevTime),
		CollectedAt:     now.UTC(),
	}
	if snap.WindowRequests > 0 {
		total := float64(snap.WindowRequests)
		snap.WindowSuccessRate = float64(snap.WindowSuccesses+snap.WindowCacheHits) / total
		snap.WindowCacheHitRate = float64(snap.WindowCacheHits) / total
	}
	for provider, state := range cur.CircuitBreakers {
		if state != "closed" {
			snap.OpenBreakers = append(snap.OpenBreakers, string(provider))
		}
	}
	sort.Strings(snap.OpenBreakers)

	c.prev = cur
	c.prevTime = now
	return snap
}
