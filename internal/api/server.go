// Package api exposes an explorer session over HTTP.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crashmap/internal/chart"
	"github.com/sells-group/crashmap/internal/explorer"
	"github.com/sells-group/crashmap/internal/incident"
	"github.com/sells-group/crashmap/internal/palette"
	"github.com/sells-group/crashmap/internal/store"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 16

var errRateLimited = eris.New("api: rate limit exceeded")

// Options configures the HTTP API.
type Options struct {
	// Sources is what POST /reload loads.
	Sources     store.Sources
	CORSOrigins []string
	RateLimit   float64
	RateBurst   int
	ChartTitle  string
}

// Server serves one explorer session.
type Server struct {
	session *explorer.Session
	opts    Options
}

// NewServer returns a Server over session.
func NewServer(session *explorer.Session, opts Options) *Server {
	if opts.ChartTitle == "" {
		opts.ChartTitle = "Bike incidents"
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{session: session, opts: opts}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))
	r.Use(rateLimit(s.opts.RateLimit, s.opts.RateBurst))

	r.Get("/health", s.handleHealth)
	r.Post("/reload", s.handleReload)

	r.Group(func(data chi.Router) {
		data.Use(s.requireLoaded)

		data.Get("/features", s.handleFeatures)
		data.Get("/lanes", s.handleLanes)
		data.Get("/hotspot", s.handleHotspot)
		data.Get("/report", s.handleReport)
		data.Get("/report/chart", s.handleReportChart)
		data.Get("/legend", s.handleLegend)
		data.Put("/attribute", s.handleSetAttribute)

		data.Route("/filters", func(fr chi.Router) {
			fr.Get("/", s.handleFilters)
			fr.Delete("/", s.handleResetFilters)
			fr.Put("/{field}", s.handleRestrict)
			fr.Delete("/{field}", s.handleClear)
			fr.Post("/{field}/toggle", s.handleToggle)
		})
	})

	return r
}

// requireLoaded answers 503 until the session has loaded.
func (s *Server) requireLoaded(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.session.Loaded() {
			s.writeNotLoaded(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]interface{}{
		"status": "ok",
		"loaded": s.session.Loaded(),
	}
	if err := s.session.LoadErr(); err != nil {
		body["load_error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Load(r.Context(), s.opts.Sources); err != nil {
		s.writeNotLoaded(w)
		return
	}
	v, err := s.session.View()
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"loaded":  true,
		"total":   v.Total,
		"visible": len(v.Features),
	})
}

func (s *Server) handleFeatures(w http.ResponseWriter, _ *http.Request) {
	v, err := s.session.View()
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	data, err := featureCollection(v).MarshalJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, eris.Wrap(err, "api: encode features"))
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// featureCollection renders visible records with their color and canonical
// labels as properties.
func featureCollection(v explorer.View) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range v.Features {
		feat := geojson.NewFeature(f.Record.Position)
		if f.Record.ID != "" {
			feat.ID = f.Record.ID
		}
		feat.Properties["id"] = f.Record.ID
		feat.Properties["severity"] = string(f.Record.Severity)
		feat.Properties["weather"] = f.Record.Weather
		feat.Properties["lighting"] = f.Record.Lighting
		feat.Properties["bike_lane"] = incident.BikeLaneLabel(f.Record.OnBikeLane)
		feat.Properties["color"] = string(f.Color)
		fc.Append(feat)
	}
	return fc
}

func (s *Server) handleLanes(w http.ResponseWriter, _ *http.Request) {
	lanes, err := s.session.Lanes()
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = lanes.WriteTo(w)
}

type hotspotResponse struct {
	Found    bool        `json:"found"`
	Position *[2]float64 `json:"position,omitempty"`
	Count    int         `json:"count,omitempty"`
	ID       string      `json:"id,omitempty"`
}

func (s *Server) handleHotspot(w http.ResponseWriter, _ *http.Request) {
	v, err := s.session.View()
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	resp := hotspotResponse{Found: v.HasPeak}
	if v.HasPeak {
		pos := [2]float64{v.Peak.Position.Lon(), v.Peak.Position.Lat()}
		resp.Position = &pos
		resp.Count = v.Peak.Count
		resp.ID = v.Features[v.Peak.Index].Record.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReport(w http.ResponseWriter, _ *http.Request) {
	v, err := s.session.View()
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"attribute": v.Attribute,
		"visible":   len(v.Features),
		"empty":     v.Empty,
		"shares":    v.Report,
	})
}

func (s *Server) handleReportChart(w http.ResponseWriter, _ *http.Request) {
	v, err := s.session.View()
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := chart.RenderReport(&buf, s.opts.ChartTitle, v.Attribute, v.Report); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleLegend(w http.ResponseWriter, r *http.Request) {
	f := s.session.Attribute()
	if q := r.URL.Query().Get("attribute"); q != "" {
		parsed, err := incident.ParseField(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		f = parsed
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"attribute": f,
		"entries":   palette.Legend(f),
	})
}

func (s *Server) handleSetAttribute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Attribute string `json:"attribute"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	f, err := incident.ParseField(req.Attribute)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	v, err := s.session.SetSelectedAttribute(f)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"attribute": v.Attribute,
		"legend":    palette.Legend(v.Attribute),
		"shares":    v.Report,
	})
}

func (s *Server) handleFilters(w http.ResponseWriter, _ *http.Request) {
	v, err := s.session.View()
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeFilterState(w, v)
}

func (s *Server) handleResetFilters(w http.ResponseWriter, _ *http.Request) {
	v, err := s.session.ResetFilters()
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeFilterState(w, v)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	f, ok := fieldParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Value *string `json:"value"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, eris.New("api: value is required"))
		return
	}
	v, err := s.session.ToggleValue(f, *req.Value)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeFilterState(w, v)
}

func (s *Server) handleRestrict(w http.ResponseWriter, r *http.Request) {
	f, ok := fieldParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Values []string `json:"values"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	v, err := s.session.Restrict(f, req.Values...)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeFilterState(w, v)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	f, ok := fieldParam(w, r)
	if !ok {
		return
	}
	v, err := s.session.Clear(f)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeFilterState(w, v)
}

func writeFilterState(w http.ResponseWriter, v explorer.View) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"filters": v.Filters,
		"visible": len(v.Features),
		"total":   v.Total,
		"empty":   v.Empty,
	})
}

func fieldParam(w http.ResponseWriter, r *http.Request) (incident.Field, bool) {
	f, err := incident.ParseField(chi.URLParam(r, "field"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return "", false
	}
	return f, true
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return eris.Wrap(err, "api: invalid request body")
	}
	return nil
}

func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, explorer.ErrNotLoaded) {
		s.writeNotLoaded(w)
		return
	}
	writeError(w, http.StatusBadRequest, err)
}

func (s *Server) writeNotLoaded(w http.ResponseWriter) {
	body := map[string]interface{}{"error": explorer.ErrNotLoaded.Error()}
	if err := s.session.LoadErr(); err != nil {
		body["error"] = err.Error()
		body["failed_datasets"] = store.FailedDatasets(err)
		zap.L().Warn("api: datasets unavailable", zap.String("component", "api"), zap.Error(err))
	}
	writeJSON(w, http.StatusServiceUnavailable, body)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
