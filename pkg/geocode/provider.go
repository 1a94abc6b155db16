package geocode

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"

	"github.com/sells-group/property-geocoder/internal/resilience"
)

// Provider is a single upstream geocoding backend.
type Provider interface {
	// Name identifies the provider in results, stats, and breaker state.
	Name() Source

	// Allow takes a token from the provider's own rate limiter. It never
	// blocks; false means the provider should be skipped for this request.
	Allow() bool

	// Geocode resolves one address. Every outcome, including transport
	// errors, is reported through the returned Result's status.
	Geocode(ctx context.Context, address string) Result
}

// maxResponseBytes bounds how much of an upstream response body is read.
const maxResponseBytes = 1 << 20

// ProviderOption configures transport details shared by all providers.
type ProviderOption func(*transport)

// WithHTTPClient sets the HTTP client used for upstream requests.
func WithHTTPClient(hc *http.Client) ProviderOption {
	return func(t *transport) {
		if hc != nil {
			t.httpClient = hc
		}
	}
}

// WithClock sets the clock driving the provider's rate limiter.
func WithClock(c clockwork.Clock) ProviderOption {
	return func(t *transport) {
		if c != nil {
			t.clock = c
		}
	}
}

// transport is the HTTP plumbing and rate limiter owned by one provider.
type transport struct {
	httpClient *http.Client
	clock      clockwork.Clock
	timeout    time.Duration
	limiter    *resilience.RateLimiter
}

func newTransport(timeout time.Duration, rps float64, burst int, opts []ProviderOption) transport {
	t := transport{
		httpClient: &http.Client{},
		clock:      clockwork.NewRealClock(),
		timeout:    timeout,
	}
	for _, opt := range opts {
		opt(&t)
	}
	t.limiter = resilience.NewRateLimiter(rps, burst, t.clock)
	return t
}

// get issues one GET request bounded by the provider timeout and returns the
// status code and (size-limited) body.
func (t *transport) get(ctx context.Context, reqURL string, header http.Header) (int, []byte, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, nil, eris.Wrap(err, "build request")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return 0, nil, eris.Wrap(err, "request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, eris.Wrap(err, "read body")
	}
	return resp.StatusCode, body, nil
}
