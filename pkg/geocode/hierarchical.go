package geocode

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/property-geocoder/internal/resilience"
)

// Recorder receives geocoder events for metrics export.
type Recorder interface {
	ObserveRequest()
	ObserveCacheLookup(hit bool)
	ObserveProviderCall(provider, status string, d time.Duration)
	ObserveBreakerTransition(provider, from, to string)
	ObserveBatch(size int, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRequest()                                   {}
func (nopRecorder) ObserveCacheLookup(bool)                           {}
func (nopRecorder) ObserveProviderCall(string, string, time.Duration) {}
func (nopRecorder) ObserveBreakerTransition(string, string, string)   {}
func (nopRecorder) ObserveBatch(int, time.Duration)                   {}

// BatchOptions bounds batch execution.
type BatchOptions struct {
	BatchSize     int `json:"batch_size"`
	MaxConcurrent int `json:"max_concurrent"`
}

// DefaultBatchOptions returns chunks of 100 with 10 in flight.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{BatchSize: 100, MaxConcurrent: 10}
}

func (o BatchOptions) withDefaults() BatchOptions {
	def := DefaultBatchOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = def.BatchSize
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = def.MaxConcurrent
	}
	return o
}

// Option configures a HierarchicalGeocoder.
type Option func(*HierarchicalGeocoder)

// WithProviders sets the provider chain in priority order.
func WithProviders(providers ...Provider) Option {
	return func(g *HierarchicalGeocoder) { g.providers = providers }
}

// WithCache sets the result cache. A nil cache disables caching.
func WithCache(c *Cache) Option {
	return func(g *HierarchicalGeocoder) { g.cache = c }
}

// WithBreakers sets the breaker registry. Its state-change callback is
// replaced by the geocoder's own.
func WithBreakers(sb *resilience.ServiceBreakers) Option {
	return func(g *HierarchicalGeocoder) { g.breakers = sb }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(g *HierarchicalGeocoder) {
		if r != nil {
			g.rec = r
		}
	}
}

// WithBatchDefaults sets the options used when a batch call leaves fields zero.
func WithBatchDefaults(o BatchOptions) Option {
	return func(g *HierarchicalGeocoder) { g.batch = o.withDefaults() }
}

type providerSlot struct {
	provider Provider
	breaker  *resilience.CircuitBreaker
}

// HierarchicalGeocoder resolves addresses through the cache and then each
// provider in priority order until one succeeds.
type HierarchicalGeocoder struct {
	providers []Provider
	slots     []providerSlot
	cache     *Cache
	breakers  *resilience.ServiceBreakers
	rec       Recorder
	batch     BatchOptions
	stats     *stats
}

// New builds a geocoder. At least one provider is required.
func New(opts ...Option) (*HierarchicalGeocoder, error) {
	g := &HierarchicalGeocoder{
		rec:   nopRecorder{},
		batch: DefaultBatchOptions(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if len(g.providers) == 0 {
		return nil, eris.New("geocode: at least one provider is required")
	}
	if g.breakers == nil {
		g.breakers = resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())
	}

	rec := g.rec
	g.breakers.OnStateChange(func(service string, from, to resilience.CircuitState) {
		zap.L().Warn("geocode: circuit breaker transition",
			zap.String("provider", service),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		rec.ObserveBreakerTransition(service, from.String(), to.String())
	})

	g.slots = make([]providerSlot, 0, len(g.providers))
	for _, p := range g.providers {
		g.slots = append(g.slots, providerSlot{
			provider: p,
			breaker:  g.breakers.Get(string(p.Name())),
		})
	}
	g.stats = newStats(g.providers)
	return g, nil
}

// Geocode resolves one address. Normal outcomes, including every provider
// failing, are reported in the Result. The error is non-nil only for a
// corrupt cache entry or when ctx is done.
func (g *HierarchicalGeocoder) Geocode(ctx context.Context, address string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	g.stats.total.Add(1)
	g.rec.ObserveRequest()

	if NormalizeAddress(address) == "" {
		g.stats.failures.Add(1)
		return g.exhausted(nil), nil
	}

	cached, hit, err := g.cache.Get(ctx, address)
	if err != nil {
		g.stats.failures.Add(1)
		return Result{}, err
	}
	if g.cache != nil {
		g.rec.ObserveCacheLookup(hit)
	}
	if hit {
		g.stats.cacheHits.Add(1)
		return cached, nil
	}

	var last *Result
	for _, slot := range g.slots {
		name := slot.provider.Name()
		log := zap.L().With(zap.String("provider", string(name)))

		if !slot.breaker.CallAllowed() {
			log.Debug("geocode: circuit open, skipping provider")
			continue
		}
		if !slot.provider.Allow() {
			slot.breaker.ReleaseTrial()
			log.Debug("geocode: rate limited locally, skipping provider")
			continue
		}

		start := time.Now()
		r := slot.provider.Geocode(ctx, address)
		g.rec.ObserveProviderCall(string(name), string(r.Status), time.Since(start))

		if r.OK() {
			if err := r.Validate(); err != nil {
				log.Warn("geocode: provider returned invalid result", zap.Error(err))
				r = Failure(name, StatusFailed)
			}
		}

		if r.OK() {
			slot.breaker.RecordSuccess()
			g.cache.Set(context.WithoutCancel(ctx), address, r)
			g.stats.success(name)
			return r, nil
		}

		// A caller-side cancellation says nothing about the provider's health.
		if err := ctx.Err(); err != nil {
			slot.breaker.ReleaseTrial()
			g.stats.failures.Add(1)
			return Result{}, err
		}
		slot.breaker.RecordFailure()
		last = &r
	}

	g.stats.failures.Add(1)
	return g.exhausted(last), nil
}

func (g *HierarchicalGeocoder) exhausted(last *Result) Result {
	if last != nil {
		return *last
	}
	return Failure(g.slots[len(g.slots)-1].provider.Name(), StatusFailed)
}

// GeocodeBatch resolves addresses concurrently and returns results in input
// order. Chunks of opts.BatchSize run one after another with at most
// opts.MaxConcurrent lookups in flight. Zero option fields take the
// geocoder's batch defaults.
func (g *HierarchicalGeocoder) GeocodeBatch(ctx context.Context, addresses []string, opts BatchOptions) ([]Result, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = g.batch.BatchSize
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = g.batch.MaxConcurrent
	}
	opts = opts.withDefaults()

	batchID := uuid.NewString()
	log := zap.L().With(zap.String("batch_id", batchID))
	log.Info("geocode: batch started",
		zap.Int("addresses", len(addresses)),
		zap.Int("batch_size", opts.BatchSize),
		zap.Int("max_concurrent", opts.MaxConcurrent),
	)

	start := time.Now()
	results := make([]Result, len(addresses))
	for lo := 0; lo < len(addresses); lo += opts.BatchSize {
		hi := min(lo+opts.BatchSize, len(addresses))

		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(opts.MaxConcurrent)
		for i := lo; i < hi; i++ {
			eg.Go(func() error {
				r, err := g.Geocode(egCtx, addresses[i])
				if err != nil {
					return eris.Wrapf(err, "geocode: batch item %d", i)
				}
				results[i] = r
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			log.Error("geocode: batch aborted", zap.Int("chunk_start", lo), zap.Error(err))
			return nil, err
		}
	}

	elapsed := time.Since(start)
	g.rec.ObserveBatch(len(addresses), elapsed)
	log.Info("geocode: batch complete",
		zap.Int("addresses", len(addresses)),
		zap.Duration("elapsed", elapsed),
	)
	return results, nil
}

// Stats returns counters, derived rates, and the current breaker state of
// each provider.
func (g *HierarchicalGeocoder) Stats() StatsSnapshot {
	snap := g.stats.snapshot()
	snap.CircuitBreakers = make(map[Source]string, len(g.slots))
	for _, slot := range g.slots {
		snap.CircuitBreakers[slot.provider.Name()] = slot.breaker.State().String()
	}
	return snap
}

// Providers returns the provider names in priority order.
func (g *HierarchicalGeocoder) Providers() []Source {
	names := make([]Source, len(g.slots))
	for i, slot := range g.slots {
		names[i] = slot.provider.Name()
	}
	return names
}

// Close releases the cache backend.
func (g *HierarchicalGeocoder) Close() error {
	return g.cache.Close()
}
