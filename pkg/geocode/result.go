// Package geocode resolves free-text addresses to coordinates through a
// cache-fronted chain of upstream providers (Nominatim first, Google as the
// paid fallback), each guarded by its own rate limiter and circuit breaker.
package geocode

import (
	"math"

	"github.com/rotisserie/eris"
)

// Status is the outcome of a single resolution attempt.
type Status string

const (
	// StatusSuccess means coordinates were resolved.
	StatusSuccess Status = "SUCCESS"
	// StatusFailed covers no match, malformed input, and transport errors.
	StatusFailed Status = "FAILED"
	// StatusRateLimited means the provider throttled the request.
	StatusRateLimited Status = "RATE_LIMITED"
	// StatusQuotaExceeded means the provider's billing quota is exhausted.
	StatusQuotaExceeded Status = "QUOTA_EXCEEDED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusRateLimited, StatusQuotaExceeded:
		return true
	default:
		return false
	}
}

// Source identifies which subsystem produced a Result.
type Source string

const (
	SourceNominatim Source = "NOMINATIM"
	SourceGoogle    Source = "GOOGLE"
	SourceCache     Source = "CACHE"
)

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"lat" yaml:"lat"`
	Longitude float64 `json:"lon" yaml:"lon"`
}

// Result is the immutable outcome of one geocode attempt. Location is set if
// and only if Status is StatusSuccess.
type Result struct {
	Location         *Coordinate `json:"location,omitempty" yaml:"location,omitempty"`
	FormattedAddress string      `json:"formatted_address,omitempty" yaml:"formatted_address,omitempty"`
	Confidence       float64     `json:"confidence" yaml:"confidence"`
	Provider         Source      `json:"provider" yaml:"provider"`
	Status           Status      `json:"status" yaml:"status"`
	Cached           bool        `json:"cached" yaml:"cached"`
}

// Success builds a resolved result. Confidence is clamped to [0, 1].
func Success(provider Source, lat, lon float64, formatted string, confidence float64) Result {
	return Result{
		Location:         &Coordinate{Latitude: lat, Longitude: lon},
		FormattedAddress: formatted,
		Confidence:       clamp01(confidence),
		Provider:         provider,
		Status:           StatusSuccess,
	}
}

// Failure builds an unresolved result with the given non-success status.
func Failure(provider Source, status Status) Result {
	if status == StatusSuccess {
		status = StatusFailed
	}
	return Result{Provider: provider, Status: status}
}

// OK reports whether the result carries coordinates.
func (r Result) OK() bool {
	return r.Status == StatusSuccess && r.Location != nil
}

// Lat returns the latitude, or 0 when unresolved.
func (r Result) Lat() float64 {
	if r.Location == nil {
		return 0
	}
	return r.Location.Latitude
}

// Lon returns the longitude, or 0 when unresolved.
func (r Result) Lon() float64 {
	if r.Location == nil {
		return 0
	}
	return r.Location.Longitude
}

// Validate checks the coordinate/status invariant and value ranges.
func (r Result) Validate() error {
	if !r.Status.Valid() {
		return eris.Errorf("geocode: unknown status %q", r.Status)
	}
	if r.Location != nil && r.Status != StatusSuccess {
		return eris.Errorf("geocode: coordinates present with status %s", r.Status)
	}
	if r.Location == nil && r.Status == StatusSuccess {
		return eris.New("geocode: success without coordinates")
	}
	if r.Location != nil {
		lat, lon := r.Location.Latitude, r.Location.Longitude
		if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return eris.Errorf("geocode: coordinates out of range (%f, %f)", lat, lon)
		}
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return eris.Errorf("geocode: confidence %f outside [0,1]", r.Confidence)
	}
	return nil
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
