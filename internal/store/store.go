// Package store holds the immutable incident dataset and the reference lane
// network, and loads both from local files.
package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crashmap/internal/incident"
)

// Store is the loaded, read-only record set plus the lane network.
type Store struct {
	records []incident.Record
	lanes   LaneNetwork
}

// New builds a Store from already-normalized records.
func New(records []incident.Record, lanes LaneNetwork) *Store {
	return &Store{records: append([]incident.Record(nil), records...), lanes: lanes}
}

// Records returns a copy of the records in load order.
func (s *Store) Records() []incident.Record {
	return append([]incident.Record(nil), s.records...)
}

// Len returns the number of records.
func (s *Store) Len() int { return len(s.records) }

// Lanes returns the lane network.
func (s *Store) Lanes() LaneNetwork { return s.lanes }

// PropertyNames maps dataset property keys to record attributes.
type PropertyNames struct {
	ID       string `yaml:"id" mapstructure:"id"`
	Severity string `yaml:"severity" mapstructure:"severity"`
	Weather  string `yaml:"weather" mapstructure:"weather"`
	Lighting string `yaml:"lighting" mapstructure:"lighting"`
	BikeLane string `yaml:"bike_lane" mapstructure:"bike_lane"`
	// Lon and Lat name the coordinate columns of tabular sources.
	Lon string `yaml:"lon" mapstructure:"lon"`
	Lat string `yaml:"lat" mapstructure:"lat"`
}

// DefaultPropertyNames returns the Montreal collision export's property keys.
func DefaultPropertyNames() PropertyNames {
	return PropertyNames{
		ID:       "NO_SEQ_COLL",
		Severity: "ACCIDENT_TYPE",
		Weather:  "CD_COND_METEO",
		Lighting: "CD_ECLRM",
		BikeLane: "ON_BIKELANE",
		Lon:      "LOC_LONG",
		Lat:      "LOC_LAT",
	}
}

func (p PropertyNames) withDefaults() PropertyNames {
	d := DefaultPropertyNames()
	if p.ID == "" {
		p.ID = d.ID
	}
	if p.Severity == "" {
		p.Severity = d.Severity
	}
	if p.Weather == "" {
		p.Weather = d.Weather
	}
	if p.Lighting == "" {
		p.Lighting = d.Lighting
	}
	if p.BikeLane == "" {
		p.BikeLane = d.BikeLane
	}
	if p.Lon == "" {
		p.Lon = d.Lon
	}
	if p.Lat == "" {
		p.Lat = d.Lat
	}
	return p
}

// Sources locates the two datasets.
type Sources struct {
	AccidentsPath string
	LanesPath     string
	Properties    PropertyNames
}

// Load reads both datasets concurrently and normalizes the accidents. Each
// failure is a *LoadError naming its dataset; when both fail the errors are joined.
func Load(ctx context.Context, src Sources, n *incident.Normalizer) (*Store, error) {
	if n == nil {
		n = incident.NewNormalizer(incident.DefaultVocabulary())
	}
	log := zap.L().With(zap.String("component", "store.load"))

	var records []incident.Record
	var lanes LaneNetwork
	var accErr, laneErr error

	var g errgroup.Group
	g.Go(func() error {
		raws, err := ReadAccidents(ctx, src.AccidentsPath, src.Properties)
		if err != nil {
			accErr = &LoadError{Dataset: DatasetAccidents, Path: src.AccidentsPath, Err: err}
			return nil
		}
		records = normalizeAll(raws, n)
		return nil
	})
	g.Go(func() error {
		ln, err := LoadLanes(ctx, src.LanesPath)
		if err != nil {
			laneErr = &LoadError{Dataset: DatasetLanes, Path: src.LanesPath, Err: err}
			return nil
		}
		lanes = ln
		return nil
	})
	_ = g.Wait()

	if err := errors.Join(accErr, laneErr); err != nil {
		log.Error("dataset load failed", zap.Error(err))
		return nil, err
	}

	log.Info("datasets loaded",
		zap.Int("records", len(records)),
		zap.Int("lane_bytes", lanes.Size()),
	)
	return &Store{records: records, lanes: lanes}, nil
}

// normalizeAll normalizes raws, dropping rows whose position is not a finite
// lon/lat pair.
func normalizeAll(raws []incident.Raw, n *incident.Normalizer) []incident.Record {
	out := make([]incident.Record, 0, len(raws))
	skipped := 0
	for _, raw := range raws {
		if !incident.ValidPosition(raw.Lon, raw.Lat) {
			skipped++
			continue
		}
		out = append(out, n.Normalize(raw))
	}
	if skipped > 0 {
		zap.L().Warn("store: skipped records with invalid positions", zap.Int("skipped", skipped))
	}
	return out
}

// ReadAccidents reads raw rows, dispatching on the file extension. Anything
// unrecognized is read as GeoJSON.
func ReadAccidents(ctx context.Context, path string, props PropertyNames) ([]incident.Raw, error) {
	if path == "" {
		return nil, eris.New("store: accidents path is empty")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadAccidentsCSVFile(ctx, path, props)
	case ".xlsx":
		return ReadAccidentsXLSX(ctx, path, props)
	}
	if IsSQLitePath(path) {
		if _, err := os.Stat(path); err != nil {
			return nil, eris.Wrap(err, "store: stat accidents database")
		}
		db, err := NewSQLite(path)
		if err != nil {
			return nil, err
		}
		defer db.Close() //nolint:errcheck
		return db.LoadRaw(ctx)
	}
	return ReadAccidentsGeoJSONFile(ctx, path, props)
}

// IsSQLitePath reports whether path names a SQLite database by extension.
func IsSQLitePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}
