// Package incident defines geocoded traffic-incident records and the
// normalization of raw dataset rows into canonical categorical labels.
package incident

import (
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
)

// Severity is the canonical severity class of an incident.
type Severity string

// Severity values. The string form is the canonical label.
const (
	SeverityNoInjury Severity = "NoInjury"
	SeverityInjury   Severity = "Injury"
	SeverityFatal    Severity = "FatalOrHospitalization"
)

// Undefined is the sentinel label for a code absent from the known code space.
// It is distinct from the legitimately coded "Other" weather label.
const Undefined = "Undefined"

// Bike lane labels.
const (
	LabelOnBikeLane  = "On Bike Lane"
	LabelOffBikeLane = "Off Bike Lane"
)

// Field names one of the four categorical attributes of a record.
type Field string

// Categorical fields.
const (
	FieldSeverity Field = "severity"
	FieldWeather  Field = "weather"
	FieldLighting Field = "lighting"
	FieldBikeLane Field = "bike_lane"
)

// Fields lists every categorical field in display order.
var Fields = []Field{FieldSeverity, FieldWeather, FieldLighting, FieldBikeLane}

// fieldAliases maps accepted spellings, including the source dataset's
// property names, to a Field.
var fieldAliases = map[string]Field{
	"severity":      FieldSeverity,
	"accident_type": FieldSeverity,
	"weather":       FieldWeather,
	"cd_cond_meteo": FieldWeather,
	"lighting":      FieldLighting,
	"cd_eclrm":      FieldLighting,
	"bike_lane":     FieldBikeLane,
	"bikelane":      FieldBikeLane,
	"on_bikelane":   FieldBikeLane,
}

// ParseField resolves a field name case-insensitively.
func ParseField(s string) (Field, error) {
	f, ok := fieldAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", eris.Errorf("incident: unknown field %q", s)
	}
	return f, nil
}

// Valid reports whether f is one of the four categorical fields.
func (f Field) Valid() bool {
	switch f {
	case FieldSeverity, FieldWeather, FieldLighting, FieldBikeLane:
		return true
	}
	return false
}

// Raw is one undecoded record as delivered by a dataset.
type Raw struct {
	ID           string
	Lon          float64
	Lat          float64
	Severity     *string // nil when the dataset carries no severity
	WeatherCode  string
	LightingCode string
	OnBikeLane   bool
}

// Record is a normalized incident. Records are values; nothing mutates one
// after normalization.
type Record struct {
	ID         string    `json:"id"`
	Position   orb.Point `json:"position"`
	Severity   Severity  `json:"severity"`
	Weather    string    `json:"weather"`
	Lighting   string    `json:"lighting"`
	OnBikeLane bool      `json:"on_bike_lane"`
}

// Label returns the canonical label of r for field f. Unknown fields yield
// the empty string.
func (r Record) Label(f Field) string {
	switch f {
	case FieldSeverity:
		return string(r.Severity)
	case FieldWeather:
		return r.Weather
	case FieldLighting:
		return r.Lighting
	case FieldBikeLane:
		return BikeLaneLabel(r.OnBikeLane)
	}
	return ""
}

// BikeLaneLabel renders the bike lane flag as its two-valued label.
func BikeLaneLabel(on bool) string {
	if on {
		return LabelOnBikeLane
	}
	return LabelOffBikeLane
}

// ValidPosition reports whether lon/lat are finite geographic coordinates.
func ValidPosition(lon, lat float64) bool {
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return false
	}
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}

// Labels returns the known canonical labels of a field in a stable order.
func Labels(f Field) []string {
	switch f {
	case FieldSeverity:
		return []string{string(SeverityFatal), string(SeverityInjury), string(SeverityNoInjury)}
	case FieldWeather:
		return tableLabels(weatherCodes, weatherTable)
	case FieldLighting:
		return tableLabels(lightingCodes, lightingTable)
	case FieldBikeLane:
		return []string{LabelOnBikeLane, LabelOffBikeLane}
	}
	return nil
}

func tableLabels(codes []string, table map[string]string) []string {
	out := make([]string, 0, len(codes)+1)
	for _, c := range codes {
		out = append(out, table[c])
	}
	return append(out, Undefined)
}
