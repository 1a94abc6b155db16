package geocode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeocodeAddress_UsesDefault(t *testing.T) {
	nom := newFakeProvider(SourceNominatim, succeedWith(SourceNominatim, 34.0522, -118.2437))
	g := newTestGeocoder(t, NewCache(nil, CacheConfig{}), nom)
	SetDefault(g)
	t.Cleanup(func() { SetDefault(nil) })

	r, err := GeocodeAddress("Los Angeles, CA")
	require.NoError(t, err)
	assert.Equal(t, SourceNominatim, r.Provider)

	results, err := GeocodeAddresses([]string{"Los Angeles, CA", "Pasadena, CA"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Cached)
	assert.False(t, results[1].Cached)
	assert.Equal(t, int64(2), nom.calls.Load())
}

func TestDefault_LazyNominatimOnly(t *testing.T) {
	SetDefault(nil)
	t.Cleanup(func() { SetDefault(nil) })

	g := Default()
	require.NotNil(t, g)
	assert.Equal(t, []Source{SourceNominatim}, g.Providers())
	assert.Same(t, g, Default())
}
