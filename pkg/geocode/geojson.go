package geocode

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// FeatureCollection renders resolved results as GeoJSON points. Unresolved
// results become features with a null geometry so indexes line up with the
// input addresses.
func FeatureCollection(addresses []string, results []Result) (*geojson.FeatureCollection, error) {
	if len(addresses) != len(results) {
		return nil, eris.Errorf("geocode: %d addresses but %d results", len(addresses), len(results))
	}

	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(results))}
	for i, r := range results {
		f := &geojson.Feature{
			Properties: map[string]any{
				"address":    addresses[i],
				"status":     string(r.Status),
				"provider":   string(r.Provider),
				"confidence": r.Confidence,
				"cached":     r.Cached,
			},
		}
		if r.FormattedAddress != "" {
			f.Properties["formatted_address"] = r.FormattedAddress
		}
		if r.OK() {
			f.Geometry = geom.NewPointFlat(geom.XY, []float64{r.Lon(), r.Lat()})
		}
		fc.Features = append(fc.Features, f)
	}
	return fc, nil
}
