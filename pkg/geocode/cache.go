package geocode

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrCorruptEntry is returned when a stored cache payload cannot be decoded
// into a valid result.
var ErrCorruptEntry = eris.New("geocode: corrupt cache entry")

// Store is a durable key-value backend for cached results. Implementations
// must treat expired entries as absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// CacheConfig controls key namespacing and expiry for both cache layers.
type CacheConfig struct {
	Namespace string
	TTL       time.Duration

	// LocalSize is the in-process LRU capacity. Zero uses the default and a
	// negative value disables the local layer.
	LocalSize int
	// LocalTTL bounds how long a local copy is served. It is capped at TTL.
	LocalTTL time.Duration

	// Clock drives local-layer expiry. Defaults to the real clock.
	Clock clockwork.Clock
}

// DefaultCacheConfig returns a 30-day durable TTL and a 10k entry local layer.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Namespace: "geocode",
		TTL:       30 * 24 * time.Hour,
		LocalSize: 10_000,
		LocalTTL:  time.Hour,
	}
}

// Cache serves previously resolved addresses from an in-process LRU backed by
// an optional durable Store. A nil *Cache is valid and always misses.
type Cache struct {
	cfg   CacheConfig
	store Store
	local *expirable.LRU[string, localEntry]
	clock clockwork.Clock
}

// localEntry is an in-process copy that stops being served at expires.
type localEntry struct {
	result  Result
	expires time.Time
}

// NewCache builds a cache over store, which may be nil for a local-only cache.
func NewCache(store Store, cfg CacheConfig) *Cache {
	def := DefaultCacheConfig()
	if cfg.Namespace == "" {
		cfg.Namespace = def.Namespace
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.LocalSize == 0 {
		cfg.LocalSize = def.LocalSize
	}
	if cfg.LocalTTL <= 0 {
		cfg.LocalTTL = def.LocalTTL
	}
	cfg.LocalTTL = min(cfg.LocalTTL, cfg.TTL)
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	c := &Cache{cfg: cfg, store: store, clock: cfg.Clock}
	if cfg.LocalSize > 0 {
		c.local = expirable.NewLRU[string, localEntry](cfg.LocalSize, nil, cfg.LocalTTL)
	}
	return c
}

// cacheEntry is the stored form of a result. Provider and cached flag are
// stamped on read.
type cacheEntry struct {
	Location         *Coordinate `json:"location,omitempty"`
	FormattedAddress string      `json:"formatted_address,omitempty"`
	Confidence       float64     `json:"confidence"`
	Status           Status      `json:"status"`
}

// Key returns the namespaced storage key for an address.
func (c *Cache) Key(address string) string {
	ns := DefaultCacheConfig().Namespace
	if c != nil {
		ns = c.cfg.Namespace
	}
	return cacheKey(ns, NormalizeAddress(address))
}

// Get looks up an address. Backend errors degrade to a miss; a payload that
// cannot be decoded is reported as ErrCorruptEntry.
func (c *Cache) Get(ctx context.Context, address string) (Result, bool, error) {
	if c == nil {
		return Result{}, false, nil
	}
	key := c.Key(address)

	if c.local != nil {
		if e, ok := c.local.Get(key); ok {
			if c.clock.Now().Before(e.expires) {
				return e.result, true, nil
			}
			c.local.Remove(key)
		}
	}
	if c.store == nil {
		return Result{}, false, nil
	}

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		zap.L().Warn("geocode: cache backend get failed, treating as miss",
			zap.String("key", shortKey(key)),
			zap.Error(err),
		)
		return Result{}, false, nil
	}
	if !ok {
		return Result{}, false, nil
	}

	r, err := decodeEntry(raw)
	if err != nil {
		return Result{}, false, eris.Wrapf(err, "geocode: cache key %s", shortKey(key))
	}
	c.addLocal(key, r, c.cfg.LocalTTL)
	return r, true, nil
}

// Set stores a successful result under the configured TTL. Other statuses
// are ignored.
func (c *Cache) Set(ctx context.Context, address string, r Result) {
	if c == nil {
		return
	}
	c.SetTTL(ctx, address, r, c.cfg.TTL)
}

// SetTTL stores a successful result with an explicit TTL. A non-positive
// ttl uses the configured TTL. Backend write errors are logged and dropped.
func (c *Cache) SetTTL(ctx context.Context, address string, r Result, ttl time.Duration) {
	if c == nil || !r.OK() {
		return
	}
	if ttl <= 0 {
		ttl = c.cfg.TTL
	}
	key := c.Key(address)
	entry := cacheEntry{
		Location:         r.Location,
		FormattedAddress: r.FormattedAddress,
		Confidence:       r.Confidence,
		Status:           r.Status,
	}

	c.addLocal(key, entry.result(), ttl)
	if c.store == nil {
		return
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		zap.L().Error("geocode: encode cache entry", zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, key, payload, ttl); err != nil {
		zap.L().Warn("geocode: cache backend set failed",
			zap.String("key", shortKey(key)),
			zap.Error(err),
		)
	}
}

// addLocal keeps r in the local layer for min(ttl, LocalTTL).
func (c *Cache) addLocal(key string, r Result, ttl time.Duration) {
	if c.local == nil {
		return
	}
	c.local.Add(key, localEntry{
		result:  r,
		expires: c.clock.Now().Add(min(ttl, c.cfg.LocalTTL)),
	})
}

// Close releases the durable backend.
func (c *Cache) Close() error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.Close()
}

func (e cacheEntry) result() Result {
	loc := e.Location
	if loc != nil {
		cp := *loc
		loc = &cp
	}
	return Result{
		Location:         loc,
		FormattedAddress: e.FormattedAddress,
		Confidence:       e.Confidence,
		Provider:         SourceCache,
		Status:           e.Status,
		Cached:           true,
	}
}

func decodeEntry(raw []byte) (Result, error) {
	var e cacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Result{}, eris.Wrap(ErrCorruptEntry, err.Error())
	}
	r := e.result()
	if err := r.Validate(); err != nil {
		return Result{}, eris.Wrap(ErrCorruptEntry, err.Error())
	}
	return r, nil
}

func shortKey(key string) string {
	if len(key) > 24 {
		return key[:24]
	}
	return key
}
