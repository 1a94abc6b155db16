package geocode

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// newRewriteClient creates an HTTP client that rewrites requests to a test server URL.
// All requests matching the target prefix are redirected to the test server.
func newRewriteClient(testServerURL, targetPrefix string) *http.Client {
	return &http.Client{
		Transport: &rewriteTransport{
			base:         http.DefaultTransport,
			testServer:   testServerURL,
			targetPrefix: targetPrefix,
		},
	}
}

type rewriteTransport struct {
	base         http.RoundTripper
	testServer   string
	targetPrefix string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	origURL := req.URL.String()
	if strings.HasPrefix(origURL, t.targetPrefix) {
		suffix := origURL[len(t.targetPrefix):]
		newURL := t.testServer + suffix
		newReq := req.Clone(req.Context())
		parsed, err := req.URL.Parse(newURL)
		if err != nil {
			return nil, err
		}
		newReq.URL = parsed
		newReq.Host = parsed.Host
		return t.base.RoundTrip(newReq)
	}
	return t.base.RoundTrip(req)
}

// fakeProvider implements Provider with a scripted response.
type fakeProvider struct {
	name    Source
	denied  atomic.Bool
	calls   atomic.Int64
	respond func(ctx context.Context, address string) Result
}

func newFakeProvider(name Source, respond func(ctx context.Context, address string) Result) *fakeProvider {
	return &fakeProvider{name: name, respond: respond}
}

func (f *fakeProvider) Name() Source { return f.name }
func (f *fakeProvider) Allow() bool  { return !f.denied.Load() }
func (f *fakeProvider) Geocode(ctx context.Context, address string) Result {
	f.calls.Add(1)
	return f.respond(ctx, address)
}

func succeedWith(name Source, lat, lon float64) func(context.Context, string) Result {
	return func(_ context.Context, address string) Result {
		return Success(name, lat, lon, address, 0.9)
	}
}

func failWith(name Source, status Status) func(context.Context, string) Result {
	return func(context.Context, string) Result {
		return Failure(name, status)
	}
}

// memStore is an in-memory Store with injectable errors.
type memStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
	sets   int
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) Close() error { return nil }
