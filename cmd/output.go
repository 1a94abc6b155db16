package main

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/property-geocoder/pkg/geocode"
)

// Output formats accepted by --output.
const (
	outputJSON = "json"
	outputYAML = "yaml"
)

// addressResult pairs an input address with its outcome.
type addressResult struct {
	Address        string `json:"address" yaml:"address"`
	geocode.Result `yaml:",inline"`
}

// writeResults renders results as JSON, YAML, or a GeoJSON FeatureCollection.
func writeResults(w io.Writer, addresses []string, results []geocode.Result, format string, asGeoJSON bool) error {
	if len(addresses) != len(results) {
		return eris.Errorf("output: %d addresses but %d results", len(addresses), len(results))
	}

	if asGeoJSON {
		fc, err := geocode.FeatureCollection(addresses, results)
		if err != nil {
			return err
		}
		return writeValue(w, fc, outputJSON)
	}

	rows := make([]addressResult, len(results))
	for i, r := range results {
		rows[i] = addressResult{Address: addresses[i], Result: r}
	}
	return writeValue(w, rows, format)
}

// writeValue encodes v in the requested format.
func writeValue(w io.Writer, v any, format string) error {
	switch format {
	case outputJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(v), "output: encode json")
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "output: encode yaml")
		}
		return eris.Wrap(enc.Close(), "output: close yaml")
	default:
		return eris.Errorf("output: unknown format %q (want json or yaml)", format)
	}
}
