package geocode

import "strings"

// Nominatim precision tiers. The importance bonus is capped well below the
// gap between tiers so a better importance never outranks a finer tier.
const (
	nominatimHouseConfidence    = 0.9
	nominatimStreetConfidence   = 0.7
	nominatimLocalityConfidence = 0.5
	nominatimRegionConfidence   = 0.3
	nominatimImportanceWeight   = 0.05
)

// Google location_type tiers.
const (
	googleRooftopConfidence      = 0.95
	googleInterpolatedConfidence = 0.8
	googleCenterConfidence       = 0.6
	googleApproximateConfidence  = 0.4
	googlePartialMatchMultiplier = 0.9
)

// nominatimConfidence scores a match by the finest address component it
// resolved, nudged by the place's importance.
func nominatimConfidence(p nominatimPlace) float64 {
	return nominatimTier(p) + clamp01(p.Importance)*nominatimImportanceWeight
}

func nominatimTier(p nominatimPlace) float64 {
	a := p.Address
	switch strings.ToLower(p.AddressType) {
	case "house", "building":
		return nominatimHouseConfidence
	}
	switch {
	case a.HouseNumber != "":
		return nominatimHouseConfidence
	case a.Road != "":
		return nominatimStreetConfidence
	case a.Neighbourhood != "", a.Suburb != "", a.Hamlet != "", a.Village != "",
		a.Town != "", a.City != "", a.Postcode != "":
		return nominatimLocalityConfidence
	default:
		return nominatimRegionConfidence
	}
}

// googleConfidence maps Google's location_type to a score. Partial matches
// are discounted.
func googleConfidence(locationType string, partial bool) float64 {
	var c float64
	switch strings.ToUpper(locationType) {
	case "ROOFTOP":
		c = googleRooftopConfidence
	case "RANGE_INTERPOLATED":
		c = googleInterpolatedConfidence
	case "GEOMETRIC_CENTER":
		c = googleCenterConfidence
	default:
		c = googleApproximateConfidence
	}
	if partial {
		c *= googlePartialMatchMultiplier
	}
	return c
}
