package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/property-geocoder/internal/resilience"
)

// DefaultNominatimURL is the public OpenStreetMap Nominatim search endpoint.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org/search"

// NominatimConfig configures the Nominatim provider.
type NominatimConfig struct {
	BaseURL      string
	UserAgent    string // required by the OSM usage policy
	Email        string
	CountryCodes string // comma-separated ISO 3166-1 alpha-2 codes
	RatePerSec   float64
	Burst        int
	Timeout      time.Duration
}

// DefaultNominatimConfig follows the public instance policy of one request
// per second.
func DefaultNominatimConfig() NominatimConfig {
	return NominatimConfig{
		BaseURL:    DefaultNominatimURL,
		UserAgent:  "property-geocoder/1.0",
		RatePerSec: 1,
		Burst:      1,
		Timeout:    10 * time.Second,
	}
}

// NominatimProvider geocodes through the OpenStreetMap Nominatim API.
type NominatimProvider struct {
	cfg NominatimConfig
	transport
}

// NewNominatimProvider creates a Nominatim provider. Zero config fields take
// their defaults.
func NewNominatimProvider(cfg NominatimConfig, opts ...ProviderOption) *NominatimProvider {
	def := DefaultNominatimConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
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
	return &NominatimProvider{
		cfg:       cfg,
		transport: newTransport(cfg.Timeout, cfg.RatePerSec, cfg.Burst, opts),
	}
}

// Name implements Provider.
func (p *NominatimProvider) Name() Source { return SourceNominatim }

// Allow implements Provider.
func (p *NominatimProvider) Allow() bool { return p.limiter.Acquire() }

type nominatimPlace struct {
	Lat         string           `json:"lat"`
	Lon         string           `json:"lon"`
	DisplayName string           `json:"display_name"`
	Importance  float64          `json:"importance"`
	PlaceRank   int              `json:"place_rank"`
	AddressType string           `json:"addresstype"`
	Address     nominatimAddress `json:"address"`
}

type nominatimAddress struct {
	HouseNumber   string `json:"house_number"`
	Road          string `json:"road"`
	Neighbourhood string `json:"neighbourhood"`
	Suburb        string `json:"suburb"`
	Hamlet        string `json:"hamlet"`
	Village       string `json:"village"`
	Town          string `json:"town"`
	City          string `json:"city"`
	Postcode      string `json:"postcode"`
	County        string `json:"county"`
	State         string `json:"state"`
	Country       string `json:"country"`
}

// Geocode implements Provider.
func (p *NominatimProvider) Geocode(ctx context.Context, address string) Result {
	log := zap.L().With(zap.String("provider", string(SourceNominatim)))

	params := url.Values{
		"q":              {address},
		"format":         {"jsonv2"},
		"addressdetails": {"1"},
		"limit":          {"1"},
	}
	if p.cfg.Email != "" {
		params.Set("email", p.cfg.Email)
	}
	if p.cfg.CountryCodes != "" {
		params.Set("countrycodes", p.cfg.CountryCodes)
	}

	header := http.Header{}
	header.Set("User-Agent", p.cfg.UserAgent)

	status, body, err := p.get(ctx, p.cfg.BaseURL+"?"+params.Encode(), header)
	if err != nil {
		log.Debug("nominatim: request failed",
			zap.String("kind", resilience.ClassifyError(err)),
			zap.Error(err),
		)
		return Failure(SourceNominatim, StatusFailed)
	}

	switch {
	case status == http.StatusTooManyRequests:
		log.Warn("nominatim: rate limited by upstream")
		return Failure(SourceNominatim, StatusRateLimited)
	case status != http.StatusOK:
		log.Debug("nominatim: unexpected status", zap.Int("status", status))
		return Failure(SourceNominatim, StatusFailed)
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		log.Debug("nominatim: malformed response", zap.Error(err))
		return Failure(SourceNominatim, StatusFailed)
	}
	if len(places) == 0 {
		return Failure(SourceNominatim, StatusFailed)
	}

	place := places[0]
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(place.Lat), 64)
	lon, lonErr := strconv.ParseFloat(strings.TrimSpace(place.Lon), 64)
	if latErr != nil || lonErr != nil {
		log.Debug("nominatim: unparsable coordinates",
			zap.String("lat", place.Lat),
			zap.String("lon", place.Lon),
		)
		return Failure(SourceNominatim, StatusFailed)
	}

	return Success(SourceNominatim, lat, lon, place.DisplayName, nominatimConfidence(place))
}
