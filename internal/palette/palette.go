// Package palette resolves the display color of an incident for the
// currently selected attribute.
package palette

import "github.com/sells-group/crashmap/internal/incident"

// Color is a CSS color value.
type Color string

// Fixed colors.
const (
	Red    Color = "red"
	Yellow Color = "yellow"
	Green  Color = "green"
	Gray   Color = "gray"
)

// Palette sizes.
const (
	WeatherSize  = 10
	LightingSize = 4
)

var weatherPalette = [WeatherSize]Color{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
}

var lightingPalette = [LightingSize]Color{
	"#fde725", "#35b779", "#31688e", "#440154",
}

// Index maps a label to a palette slot: the sum of its character codes
// modulo size. The empty label and the Undefined sentinel map to 0.
func Index(label string, size int) int {
	if size <= 0 || label == "" || label == incident.Undefined {
		return 0
	}
	sum := 0
	for _, r := range label {
		sum += int(r)
	}
	return sum % size
}

// ColorFor returns the color of r under the selected field.
func ColorFor(r incident.Record, f incident.Field) Color {
	return LabelColor(f, r.Label(f))
}

// LabelColor returns the color of a canonical label under field f. Unknown
// fields render gray.
func LabelColor(f incident.Field, label string) Color {
	switch f {
	case incident.FieldSeverity:
		switch incident.Severity(label) {
		case incident.SeverityFatal:
			return Red
		case incident.SeverityInjury:
			return Yellow
		default:
			return Green
		}
	case incident.FieldBikeLane:
		if label == incident.LabelOnBikeLane {
			return Green
		}
		return Red
	case incident.FieldWeather:
		return weatherPalette[Index(label, WeatherSize)]
	case incident.FieldLighting:
		return lightingPalette[Index(label, LightingSize)]
	}
	return Gray
}

// LegendEntry pairs a label with its color.
type LegendEntry struct {
	Label string `json:"label"`
	Color Color  `json:"color"`
}

// Legend lists the known labels of f with their colors.
func Legend(f incident.Field) []LegendEntry {
	labels := incident.Labels(f)
	out := make([]LegendEntry, 0, len(labels))
	for _, l := range labels {
		out = append(out, LegendEntry{Label: l, Color: LabelColor(f, l)})
	}
	return out
}
