package incident

import (
	"math"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

var weatherTable = map[string]string{
	"11": "Clear",
	"12": "Cloudy",
	"13": "Fog",
	"14": "Rain",
	"15": "Snow",
	"16": "High Winds",
	"17": "Freezing Rain",
	"18": "Snowstorm",
	"19": "Ice",
	"99": "Other",
}

var weatherCodes = []string{"11", "12", "13", "14", "15", "16", "17", "18", "19", "99"}

var lightingTable = map[string]string{
	"1": "Daylight",
	"2": "Semi-obscure",
	"3": "Night (lit)",
	"4": "Night (unlit)",
}

var lightingCodes = []string{"1", "2", "3", "4"}

// WeatherLabel decodes a raw weather code. Codes outside the table yield Undefined.
func WeatherLabel(code string) string {
	if l, ok := weatherTable[canonicalCode(code)]; ok {
		return l
	}
	return Undefined
}

// LightingLabel decodes a raw lighting code. Codes outside the table yield Undefined.
func LightingLabel(code string) string {
	if l, ok := lightingTable[canonicalCode(code)]; ok {
		return l
	}
	return Undefined
}

// canonicalCode trims a code and collapses integral numeric spellings
// ("11.0", "011") to their plain integer form.
func canonicalCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(code, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return code
}

// Vocabulary holds the free-text markers that classify a severity narrative.
// Marker spellings are locale data; they are injected rather than hard-coded.
// A marker preceded by one of the Negations words ("No injury",
// "non-fatal") does not count.
type Vocabulary struct {
	Fatal     []string `yaml:"fatal"`
	Injury    []string `yaml:"injury"`
	Negations []string `yaml:"negations"`
}

// DefaultVocabulary returns the markers observed in the Montreal collision export.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Fatal:     []string{"fatal", "hospitalization"},
		Injury:    []string{"injury"},
		Negations: []string{"no", "non", "not", "without"},
	}
}

// LoadVocabulary reads a YAML vocabulary file with "fatal", "injury", and
// optional "negations" lists.
func LoadVocabulary(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, eris.Wrapf(err, "incident: read vocabulary %s", path)
	}
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Vocabulary{}, eris.Wrapf(err, "incident: parse vocabulary %s", path)
	}
	if len(v.Fatal) == 0 && len(v.Injury) == 0 {
		return Vocabulary{}, eris.Errorf("incident: vocabulary %s has no markers", path)
	}
	return v, nil
}

// Normalizer maps raw records to canonical records. It is a pure function of
// its vocabulary and the input; Normalize never fails.
type Normalizer struct {
	fatal     []string
	injury    []string
	negations map[string]bool
}

// NewNormalizer builds a Normalizer with case-folded markers. Blank markers are dropped.
func NewNormalizer(v Vocabulary) *Normalizer {
	negations := make(map[string]bool, len(v.Negations))
	for _, w := range foldMarkers(v.Negations) {
		negations[w] = true
	}
	return &Normalizer{
		fatal:     foldMarkers(v.Fatal),
		injury:    foldMarkers(v.Injury),
		negations: negations,
	}
}

func foldMarkers(markers []string) []string {
	out := make([]string, 0, len(markers))
	for _, m := range markers {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		out = append(out, fold(m))
	}
	return out
}

func fold(s string) string {
	return cases.Fold().String(s)
}

// Severity classifies a raw severity narrative. Fatal markers win over injury
// markers; absent or unmatched text is NoInjury.
func (n *Normalizer) Severity(text *string) Severity {
	if text == nil {
		return SeverityNoInjury
	}
	folded := fold(*text)
	for _, m := range n.fatal {
		if n.mentions(folded, m) {
			return SeverityFatal
		}
	}
	for _, m := range n.injury {
		if n.mentions(folded, m) {
			return SeverityInjury
		}
	}
	return SeverityNoInjury
}

// mentions reports whether marker occurs in text at least once without a
// negation word right before it.
func (n *Normalizer) mentions(text, marker string) bool {
	for start := 0; start <= len(text); {
		i := strings.Index(text[start:], marker)
		if i < 0 {
			return false
		}
		i += start
		if !n.negated(text[:i]) {
			return true
		}
		start = i + len(marker)
	}
	return false
}

// negated reports whether the last word of prefix is a negation.
func (n *Normalizer) negated(prefix string) bool {
	if len(n.negations) == 0 {
		return false
	}
	words := strings.FieldsFunc(prefix, func(r rune) bool { return !unicode.IsLetter(r) })
	if len(words) == 0 {
		return false
	}
	return n.negations[words[len(words)-1]]
}

// Normalize produces the canonical record for raw. The position is copied
// as-is; callers validate it with ValidPosition before storing.
func (n *Normalizer) Normalize(raw Raw) Record {
	return Record{
		ID:         raw.ID,
		Position:   orb.Point{raw.Lon, raw.Lat},
		Severity:   n.Severity(raw.Severity),
		Weather:    WeatherLabel(raw.WeatherCode),
		Lighting:   LightingLabel(raw.LightingCode),
		OnBikeLane: raw.OnBikeLane,
	}
}
