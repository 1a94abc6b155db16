package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/property-geocoder/internal/resilience"
)

// DefaultGoogleURL is the Google Geocoding API endpoint.
const DefaultGoogleURL = "https://maps.googleapis.com/maps/api/geocode/json"

// GoogleConfig configures the Google provider.
type GoogleConfig struct {
	APIKey     string
	BaseURL    string
	RatePerSec float64
	Burst      int
	Timeout    time.Duration
}

// DefaultGoogleConfig returns the standard per-project request rate.
func DefaultGoogleConfig() GoogleConfig {
	return GoogleConfig{
		BaseURL:    DefaultGoogleURL,
		RatePerSec: 50,
		Burst:      50,
		Timeout:    5 * time.Second,
	}
}

// GoogleProvider geocodes through the Google Geocoding API.
type GoogleProvider struct {
	cfg GoogleConfig
	transport
}

// NewGoogleProvider creates a Google provider. Zero config fields take their
// defaults.
func NewGoogleProvider(cfg GoogleConfig, opts ...ProviderOption) *GoogleProvider {
	def := DefaultGoogleConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.RatePerSec == 0 {
		cfg.RatePerSec = def.RatePerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &GoogleProvider{
		cfg:       cfg,
		transport: newTransport(cfg.Timeout, cfg.RatePerSec, cfg.Burst, opts),
	}
}

// Name implements Provider.
func (p *GoogleProvider) Name() Source { return SourceGoogle }

// Allow implements Provider.
func (p *GoogleProvider) Allow() bool { return p.limiter.Acquire() }

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results      []googleResult `json:"results"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
	PartialMatch     bool   `json:"partial_match"`
}

// Geocode implements Provider.
func (p *GoogleProvider) Geocode(ctx context.Context, address string) Result {
	log := zap.L().With(zap.String("provider", string(SourceGoogle)))

	params := url.Values{
		"address": {address},
		"key":     {p.cfg.APIKey},
	}

	status, body, err := p.get(ctx, p.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		log.Debug("google: request failed",
			zap.String("kind", resilience.ClassifyError(err)),
			zap.Error(err),
		)
		return Failure(SourceGoogle, StatusFailed)
	}

	switch {
	case status == http.StatusTooManyRequests:
		log.Warn("google: rate limited by upstream")
		return Failure(SourceGoogle, StatusRateLimited)
	case status != http.StatusOK:
		log.Debug("google: unexpected status", zap.Int("status", status))
		return Failure(SourceGoogle, StatusFailed)
	}

	var resp googleGeocodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		log.Debug("google: malformed response", zap.Error(err))
		return Failure(SourceGoogle, StatusFailed)
	}

	switch resp.Status {
	case "OK":
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		log.Warn("google: quota exceeded",
			zap.String("api_status", resp.Status),
			zap.String("message", resp.ErrorMessage),
		)
		return Failure(SourceGoogle, StatusQuotaExceeded)
	case "ZERO_RESULTS":
		return Failure(SourceGoogle, StatusFailed)
	default:
		log.Warn("google: request rejected",
			zap.String("api_status", resp.Status),
			zap.String("message", resp.ErrorMessage),
		)
		return Failure(SourceGoogle, StatusFailed)
	}

	if len(resp.Results) == 0 {
		return Failure(SourceGoogle, StatusFailed)
	}

	r := resp.Results[0]
	return Success(
		SourceGoogle,
		r.Geometry.Location.Lat,
		r.Geometry.Location.Lng,
		r.FormattedAddress,
		googleConfidence(r.Geometry.LocationType, r.PartialMatch),
	)
}
