// Package explorer is the interactive session over the incident dataset. It
// owns the filter state and the selected attribute and recomputes the visible
// set, its colors, the density peak, and the breakdown after every change.
package explorer

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crashmap/internal/aggregate"
	"github.com/sells-group/crashmap/internal/density"
	"github.com/sells-group/crashmap/internal/filter"
	"github.com/sells-group/crashmap/internal/incident"
	"github.com/sells-group/crashmap/internal/palette"
	"github.com/sells-group/crashmap/internal/store"
)

// ErrNotLoaded is returned by every query and mutation until both datasets
// have loaded.
var ErrNotLoaded = eris.New("explorer: datasets not loaded")

// Options configures a Session.
type Options struct {
	// RadiusKM is the hotspot neighbor radius; 0 means density.DefaultRadiusKM.
	RadiusKM      float64
	GridThreshold int
	// Normalizer maps raw attributes at load time. Nil uses the default vocabulary.
	Normalizer *incident.Normalizer
}

// Feature is a visible record with its display color.
type Feature struct {
	Record incident.Record `json:"record"`
	Color  palette.Color   `json:"color"`
}

// View is the derived state after the latest change. Empty is set when no
// record passes the filters. Its slices are shared and must be treated as
// read-only.
type View struct {
	Attribute incident.Field                         `json:"attribute"`
	Filters   map[incident.Field]filter.FieldSummary `json:"filters"`
	Features  []Feature                              `json:"features"`
	Peak      density.Peak                           `json:"peak"`
	HasPeak   bool                                   `json:"has_peak"`
	Report    []aggregate.Share                      `json:"report"`
	Empty     bool                                   `json:"empty"`
	Total     int                                    `json:"total"`
}

// Records returns the visible records in load order.
func (v View) Records() []incident.Record {
	out := make([]incident.Record, len(v.Features))
	for i, f := range v.Features {
		out[i] = f.Record
	}
	return out
}

// Session serializes every mutation together with its recomputation, so a
// returned View always reflects exactly one filter pass.
type Session struct {
	mu        sync.Mutex
	opts      Options
	estimator density.Estimator

	store     *store.Store
	loadErr   error
	filters   *filter.State
	attribute incident.Field
	view      View
}

// New returns an unloaded session coloring by severity.
func New(opts Options) *Session {
	if opts.Normalizer == nil {
		opts.Normalizer = incident.NewNormalizer(incident.DefaultVocabulary())
	}
	if opts.RadiusKM == 0 {
		opts.RadiusKM = density.DefaultRadiusKM
	}
	return &Session{
		opts:      opts,
		estimator: density.NewEstimator(opts.RadiusKM, opts.GridThreshold),
		filters:   filter.NewState(),
		attribute: incident.FieldSeverity,
	}
}

// Load reads both datasets. On failure the session is left unloaded and the
// error is kept for LoadErr; a later successful Load enables it. Filters and
// the selected attribute survive a reload.
func (s *Session) Load(ctx context.Context, src store.Sources) error {
	st, err := store.Load(ctx, src, s.opts.Normalizer)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.store = nil
		s.loadErr = err
		s.view = View{}
		return err
	}
	s.install(st)
	return nil
}

// Use installs an already loaded store.
func (s *Session) Use(st *store.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.install(st)
}

func (s *Session) install(st *store.Store) {
	s.store = st
	s.loadErr = nil
	s.recompute()
	zap.L().Info("explorer: session ready",
		zap.String("component", "explorer"),
		zap.Int("records", st.Len()),
		zap.Int("visible", len(s.view.Features)),
	)
}

// Loaded reports whether the session accepts queries.
func (s *Session) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store != nil
}

// LoadErr returns the error of the last failed load, or nil.
func (s *Session) LoadErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// Attribute returns the selected attribute.
func (s *Session) Attribute() incident.Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attribute
}

// FilteredFeatures returns the records passing the current filters.
func (s *Session) FilteredFeatures() ([]incident.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return nil, ErrNotLoaded
	}
	return s.view.Records(), nil
}

// ColorFor returns the color of r under the selected attribute.
func (s *Session) ColorFor(r incident.Record) (palette.Color, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return "", ErrNotLoaded
	}
	return palette.ColorFor(r, s.attribute), nil
}

// DensestPoint runs the configured estimator over records.
func (s *Session) DensestPoint(records []incident.Record) (density.Peak, bool, error) {
	if !s.Loaded() {
		return density.Peak{}, false, ErrNotLoaded
	}
	peak, ok := s.estimator.DensestPoint(records)
	return peak, ok, nil
}

// Report breaks records down by the selected attribute.
func (s *Session) Report(records []incident.Record) ([]aggregate.Share, error) {
	s.mu.Lock()
	loaded, attribute := s.store != nil, s.attribute
	s.mu.Unlock()
	if !loaded {
		return nil, ErrNotLoaded
	}
	return aggregate.Report(records, attribute), nil
}

// ToggleValue flips value in the allowed set of f and returns the new view.
func (s *Session) ToggleValue(f incident.Field, value string) (View, error) {
	return s.mutate("toggle", f, func(st *filter.State) error {
		return st.ToggleValue(f, value)
	})
}

// Restrict sets the allowed set of f to exactly values.
func (s *Session) Restrict(f incident.Field, values ...string) (View, error) {
	return s.mutate("restrict", f, func(st *filter.State) error {
		return st.Restrict(f, values...)
	})
}

// Clear removes any constraint on f.
func (s *Session) Clear(f incident.Field) (View, error) {
	return s.mutate("clear", f, func(st *filter.State) error {
		return st.Clear(f)
	})
}

// ResetFilters removes every constraint.
func (s *Session) ResetFilters() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return View{}, ErrNotLoaded
	}
	s.filters = filter.NewState()
	s.recompute()
	return s.view, nil
}

// SetSelectedAttribute changes the attribute that drives colors and the
// breakdown.
func (s *Session) SetSelectedAttribute(f incident.Field) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return View{}, ErrNotLoaded
	}
	if !f.Valid() {
		return View{}, eris.Errorf("explorer: unknown attribute %q", f)
	}
	s.attribute = f
	s.recompute()
	zap.L().Debug("explorer: attribute selected",
		zap.String("component", "explorer"),
		zap.String("attribute", string(f)),
	)
	return s.view, nil
}

// View returns the current derived state.
func (s *Session) View() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return View{}, ErrNotLoaded
	}
	return s.view, nil
}

// Lanes returns the reference lane network.
func (s *Session) Lanes() (store.LaneNetwork, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return store.LaneNetwork{}, ErrNotLoaded
	}
	return s.store.Lanes(), nil
}

// mutate applies op to a copy of the filter state and swaps it in only when
// op succeeds.
func (s *Session) mutate(action string, f incident.Field, op func(*filter.State) error) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return View{}, ErrNotLoaded
	}

	next := s.filters.Clone()
	if err := op(next); err != nil {
		return View{}, err
	}
	s.filters = next
	s.recompute()

	zap.L().Debug("explorer: filters changed",
		zap.String("component", "explorer"),
		zap.String("action", action),
		zap.String("field", string(f)),
		zap.Int("visible", len(s.view.Features)),
	)
	return s.view, nil
}

// recompute runs one filter pass and derives everything from it. Callers hold mu.
func (s *Session) recompute() {
	visible := filter.FilteredSet(s.store.Records(), s.filters)

	features := make([]Feature, len(visible))
	for i, r := range visible {
		features[i] = Feature{Record: r, Color: palette.ColorFor(r, s.attribute)}
	}
	peak, ok := s.estimator.DensestPoint(visible)

	s.view = View{
		Attribute: s.attribute,
		Filters:   s.filters.Summary(),
		Features:  features,
		Peak:      peak,
		HasPeak:   ok,
		Report:    aggregate.Report(visible, s.attribute),
		Empty:     len(visible) == 0,
		Total:     s.store.Len(),
	}
}
