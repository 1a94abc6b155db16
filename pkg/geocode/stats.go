package geocode

import "sync/atomic"

// stats holds the orchestrator's process-lifetime counters.
type stats struct {
	total     atomic.Int64
	cacheHits atomic.Int64
	failures  atomic.Int64

	// successes is keyed by provider and populated once at construction.
	successes map[Source]*atomic.Int64
}

func newStats(providers []Provider) *stats {
	s := &stats{successes: make(map[Source]*atomic.Int64, len(providers))}
	for _, p := range providers {
		s.successes[p.Name()] = new(atomic.Int64)
	}
	return s
}

func (s *stats) success(src Source) {
	if c, ok := s.successes[src]; ok {
		c.Add(1)
	}
}

func (s *stats) successCount(src Source) int64 {
	if c, ok := s.successes[src]; ok {
		return c.Load()
	}
	return 0
}

// StatsSnapshot is a point-in-time view of geocoder usage.
type StatsSnapshot struct {
	TotalRequests    int64             `json:"total_requests" yaml:"total_requests"`
	CacheHits        int64             `json:"cache_hits" yaml:"cache_hits"`
	NominatimSuccess int64             `json:"nominatim_success" yaml:"nominatim_success"`
	GoogleSuccess    int64             `json:"google_success" yaml:"google_success"`
	Failures         int64             `json:"failures" yaml:"failures"`
	CacheHitRate     float64           `json:"cache_hit_rate" yaml:"cache_hit_rate"`
	SuccessRate      float64           `json:"success_rate" yaml:"success_rate"`
	CircuitBreakers  map[Source]string `json:"circuit_breakers" yaml:"circuit_breakers"`
}

func (s *stats) snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		TotalRequests:    s.total.Load(),
		CacheHits:        s.cacheHits.Load(),
		NominatimSuccess: s.successCount(SourceNominatim),
		GoogleSuccess:    s.successCount(SourceGoogle),
		Failures:         s.failures.Load(),
	}
	if snap.TotalRequests > 0 {
		total := float64(snap.TotalRequests)
		var ok int64
		for _, c := range s.successes {
			ok += c.Load()
		}
		snap.CacheHitRate = float64(snap.CacheHits) / total
		snap.SuccessRate = float64(ok) / total
	}
	return snap
}
