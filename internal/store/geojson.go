package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crashmap/internal/incident"
)

// ReadAccidentsGeoJSONFile reads a GeoJSON FeatureCollection of point incidents.
func ReadAccidentsGeoJSONFile(ctx context.Context, path string, props PropertyNames) ([]incident.Raw, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "store: open accidents file")
	}
	defer f.Close() //nolint:errcheck
	return ReadAccidentsGeoJSON(ctx, f, props)
}

// ReadAccidentsGeoJSON decodes point features into raw records. Features
// without a point geometry are skipped.
func ReadAccidentsGeoJSON(ctx context.Context, r io.Reader, props PropertyNames) ([]incident.Raw, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "store: read accidents")
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "store: read accidents")
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, eris.Wrap(err, "store: parse accidents GeoJSON")
	}

	props = props.withDefaults()
	out := make([]incident.Raw, 0, len(fc.Features))
	skipped := 0
	for _, feat := range fc.Features {
		pt, ok := feat.Geometry.(orb.Point)
		if !ok {
			skipped++
			continue
		}
		out = append(out, rawFromFeature(feat, pt, props))
	}
	if skipped > 0 {
		zap.L().Warn("store: skipped non-point accident features", zap.Int("skipped", skipped))
	}
	return out, nil
}

func rawFromFeature(feat *geojson.Feature, pt orb.Point, props PropertyNames) incident.Raw {
	p := feat.Properties
	id := codeValue(p[props.ID])
	if id == "" && feat.ID != nil {
		id = fmt.Sprint(feat.ID)
	}
	return incident.Raw{
		ID:           id,
		Lon:          pt.Lon(),
		Lat:          pt.Lat(),
		Severity:     textValue(p, props.Severity),
		WeatherCode:  codeValue(p[props.Weather]),
		LightingCode: codeValue(p[props.Lighting]),
		OnBikeLane:   flagValue(p[props.BikeLane]),
	}
}

// codeValue renders a JSON scalar as a code string; numbers use their
// shortest form so 11 and 11.0 agree.
func codeValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// textValue returns nil when the property is missing or null.
func textValue(p geojson.Properties, key string) *string {
	v, ok := p[key]
	if !ok || v == nil {
		return nil
	}
	s := codeValue(v)
	return &s
}

// flagValue reads a bike lane flag from a boolean, a number, or a yes/no string.
func flagValue(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "t", "yes", "y", "oui", "o", "1":
			return true
		}
	}
	return false
}
