package geocode

import (
	"context"
	"sync"
	"time"
)

// SyncTimeout bounds each blocking wrapper call.
var SyncTimeout = 10 * time.Minute

var (
	defaultMu       sync.RWMutex
	defaultGeocoder *HierarchicalGeocoder
)

// SetDefault installs the geocoder used by GeocodeAddress and
// GeocodeAddresses.
func SetDefault(g *HierarchicalGeocoder) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultGeocoder = g
}

// Default returns the process default geocoder, building a Nominatim-only
// geocoder with an in-process cache on first use if none was set.
func Default() *HierarchicalGeocoder {
	defaultMu.RLock()
	g := defaultGeocoder
	defaultMu.RUnlock()
	if g != nil {
		return g
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultGeocoder == nil {
		// New only fails without providers.
		defaultGeocoder, _ = New(
			WithProviders(NewNominatimProvider(DefaultNominatimConfig())),
			WithCache(NewCache(nil, DefaultCacheConfig())),
		)
	}
	return defaultGeocoder
}

// GeocodeAddress resolves one address on the default geocoder, blocking
// until done or SyncTimeout elapses.
func GeocodeAddress(address string) (Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), SyncTimeout)
	defer cancel()
	return Default().Geocode(ctx, address)
}

// GeocodeAddresses resolves addresses on the default geocoder with its batch
// defaults, blocking until done or SyncTimeout elapses.
func GeocodeAddresses(addresses []string) ([]Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), SyncTimeout)
	defer cancel()
	return Default().GeocodeBatch(ctx, addresses, BatchOptions{})
}
