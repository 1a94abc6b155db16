package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNominatim(t *testing.T, handler http.HandlerFunc) *NominatimProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewNominatimProvider(NominatimConfig{
		UserAgent:  "geocoder-test/1.0",
		RatePerSec: -1,
	}, WithHTTPClient(newRewriteClient(srv.URL, DefaultNominatimURL)))
}

func TestNominatimGeocode_HouseMatch(t *testing.T) {
	p := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "123 Main St, Los Angeles, CA", q.Get("q"))
		assert.Equal(t, "jsonv2", q.Get("format"))
		assert.Equal(t, "1", q.Get("addressdetails"))
		assert.Equal(t, "1", q.Get("limit"))
		assert.Equal(t, "geocoder-test/1.0", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{
			"lat": "34.0522",
			"lon": "-118.2437",
			"display_name": "123, Main Street, Los Angeles, California, 90012, United States",
			"importance": 0.4,
			"addresstype": "building",
			"address": {"house_number": "123", "road": "Main Street", "city": "Los Angeles", "postcode": "90012"}
		}]`)
	})

	result := p.Geocode(context.Background(), "123 Main St, Los Angeles, CA")
	require.True(t, result.OK())
	assert.Equal(t, SourceNominatim, result.Provider)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.False(t, result.Cached)
	assert.InDelta(t, 34.0522, result.Lat(), 1e-9)
	assert.InDelta(t, -118.2437, result.Lon(), 1e-9)
	assert.Contains(t, result.FormattedAddress, "Main Street")
	assert.InDelta(t, 0.92, result.Confidence, 1e-9)
}

func TestNominatimGeocode_OptionalParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ops@example.com", r.URL.Query().Get("email"))
		assert.Equal(t, "us,ca", r.URL.Query().Get("countrycodes"))
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	p := NewNominatimProvider(NominatimConfig{
		BaseURL:      srv.URL + "/search",
		Email:        "ops@example.com",
		CountryCodes: "us,ca",
	})
	result := p.Geocode(context.Background(), "Anywhere")
	assert.Equal(t, StatusFailed, result.Status)
}

func TestNominatimGeocode_EmptyArray(t *testing.T) {
	p := newTestNominatim(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})

	result := p.Geocode(context.Background(), "999 Nowhere Rd")
	assert.Equal(t, StatusFailed, result.Status)
	assert.Nil(t, result.Location)
	assert.Equal(t, SourceNominatim, result.Provider)
}

func TestNominatimGeocode_TooManyRequests(t *testing.T) {
	p := newTestNominatim(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	result := p.Geocode(context.Background(), "123 Main St")
	assert.Equal(t, StatusRateLimited, result.Status)
	assert.Nil(t, result.Location)
}

func TestNominatimGeocode_ServerError(t *testing.T) {
	p := newTestNominatim(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	result := p.Geocode(context.Background(), "123 Main St")
	assert.Equal(t, StatusFailed, result.Status)
}

func TestNominatimGeocode_MalformedJSON(t *testing.T) {
	p := newTestNominatim(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{not json`)
	})

	result := p.Geocode(context.Background(), "123 Main St")
	assert.Equal(t, StatusFailed, result.Status)
}

func TestNominatimGeocode_BadCoordinates(t *testing.T) {
	p := newTestNominatim(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"lat": "north", "lon": "-118.2", "display_name": "x"}]`)
	})

	result := p.Geocode(context.Background(), "123 Main St")
	assert.Equal(t, StatusFailed, result.Status)
	assert.Nil(t, result.Location)
}

func TestNominatimGeocode_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := NewNominatimProvider(NominatimConfig{
		BaseURL: srv.URL + "/search",
		Timeout: 50 * time.Millisecond,
	})

	start := time.Now()
	result := p.Geocode(context.Background(), "slow street")
	assert.Equal(t, StatusFailed, result.Status)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNominatimGeocode_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewNominatimProvider(NominatimConfig{BaseURL: url + "/search"})
	result := p.Geocode(context.Background(), "123 Main St")
	assert.Equal(t, StatusFailed, result.Status)
}

func TestNominatimAllow_OneRequestPerSecond(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := NewNominatimProvider(DefaultNominatimConfig(), WithClock(clock))

	assert.Equal(t, SourceNominatim, p.Name())
	assert.True(t, p.Allow())
	assert.False(t, p.Allow())

	clock.Advance(time.Second)
	assert.True(t, p.Allow())
}
