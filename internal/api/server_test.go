package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crashmap/internal/explorer"
	"github.com/sells-group/crashmap/internal/incident"
	"github.com/sells-group/crashmap/internal/store"
)

const lanesDoc = `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"LineString","coordinates":[[-73.58,45.5],[-73.57,45.51]]},"properties":{}}]}`

func fixture() []incident.Record {
	rec := func(id string, lat float64, sev incident.Severity, weather string, lane bool) incident.Record {
		return incident.Record{
			ID:         id,
			Position:   orb.Point{-73.5673, lat},
			Severity:   sev,
			Weather:    weather,
			Lighting:   "Daylight",
			OnBikeLane: lane,
		}
	}
	return []incident.Record{
		rec("1", 45.5017, incident.SeverityNoInjury, "Clear", false),
		rec("2", 45.5107, incident.SeverityInjury, "Clear", true),
		rec("3", 45.5107, incident.SeverityInjury, "Rain", false),
		rec("4", 45.5107, incident.SeverityFatal, "Clear", true),
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *explorer.Session) {
	t.Helper()
	lanes, err := store.NewLaneNetwork([]byte(lanesDoc))
	require.NoError(t, err)

	session := explorer.New(explorer.Options{})
	session.Use(store.New(fixture(), lanes))

	srv := httptest.NewServer(NewServer(session, Options{}).Handler())
	t.Cleanup(srv.Close)
	return srv, session
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var payload io.Reader
	if body != "" {
		payload = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, payload)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	body := decode(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["loaded"])
}

func TestRequestIDPropagated(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get(RequestIDHeader))
}

func TestFeatures(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/features", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))

	var fc geojson.FeatureCollection
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fc))
	require.Len(t, fc.Features, 4)
	assert.Equal(t, "Injury", fc.Features[1].Properties["severity"])
	assert.Equal(t, "yellow", fc.Features[1].Properties["color"])
	assert.Equal(t, incident.LabelOnBikeLane, fc.Features[1].Properties["bike_lane"])
	assert.Equal(t, "red", fc.Features[3].Properties["color"])
}

func TestLanesPassThrough(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/lanes", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, lanesDoc, string(data))
}

func TestHotspot(t *testing.T) {
	srv, _ := newTestServer(t)

	body := decode(t, do(t, http.MethodGet, srv.URL+"/hotspot", ""))
	assert.Equal(t, true, body["found"])
	assert.EqualValues(t, 3, body["count"])
	assert.Equal(t, "2", body["id"])

	resp := do(t, http.MethodPut, srv.URL+"/filters/weather", `{"values": []}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body = decode(t, do(t, http.MethodGet, srv.URL+"/hotspot", ""))
	assert.Equal(t, false, body["found"])
	assert.NotContains(t, body, "position")
}

func TestToggleAndReport(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/filters/severity/toggle", `{"value": "Injury"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.EqualValues(t, 2, body["visible"])
	assert.EqualValues(t, 4, body["total"])

	report := decode(t, do(t, http.MethodGet, srv.URL+"/report", ""))
	assert.Equal(t, "severity", report["attribute"])
	assert.Equal(t, false, report["empty"])
	shares := report["shares"].([]interface{})
	require.Len(t, shares, 1)
	first := shares[0].(map[string]interface{})
	assert.Equal(t, "Injury", first["label"])
	assert.EqualValues(t, 100, first["percentage"])

	resp = do(t, http.MethodPost, srv.URL+"/filters/severity/toggle", `{"value": "Injury"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 4, decode(t, resp)["visible"])
}

func TestToggle_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/filters/speed/toggle", `{"value": "x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/filters/weather/toggle", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/filters/weather/toggle", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFiltersClearAndReset(t *testing.T) {
	srv, _ := newTestServer(t)

	do(t, http.MethodPut, srv.URL+"/filters/ON_BIKELANE", `{"values": ["On Bike Lane"]}`)
	do(t, http.MethodPost, srv.URL+"/filters/weather/toggle", `{"value": "Clear"}`)

	body := decode(t, do(t, http.MethodGet, srv.URL+"/filters", ""))
	assert.EqualValues(t, 2, body["visible"])
	filters := body["filters"].(map[string]interface{})
	bike := filters["bike_lane"].(map[string]interface{})
	assert.Equal(t, true, bike["restricted"])

	body = decode(t, do(t, http.MethodDelete, srv.URL+"/filters/bike_lane", ""))
	assert.EqualValues(t, 3, body["visible"])

	body = decode(t, do(t, http.MethodDelete, srv.URL+"/filters", ""))
	assert.EqualValues(t, 4, body["visible"])
}

func TestSetAttributeAndLegend(t *testing.T) {
	srv, session := newTestServer(t)

	resp := do(t, http.MethodPut, srv.URL+"/attribute", `{"attribute": "CD_COND_METEO"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "weather", body["attribute"])
	assert.Equal(t, incident.FieldWeather, session.Attribute())

	legend := decode(t, do(t, http.MethodGet, srv.URL+"/legend", ""))
	assert.Equal(t, "weather", legend["attribute"])
	assert.Len(t, legend["entries"], 11)

	legend = decode(t, do(t, http.MethodGet, srv.URL+"/legend?attribute=lighting", ""))
	assert.Len(t, legend["entries"], 5)

	resp = do(t, http.MethodPut, srv.URL+"/attribute", `{"attribute": "speed"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReportChart(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/report/chart", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestNotLoaded(t *testing.T) {
	dir := t.TempDir()
	session := explorer.New(explorer.Options{})
	srv := httptest.NewServer(NewServer(session, Options{
		Sources: store.Sources{
			AccidentsPath: filepath.Join(dir, "bikes.geojson"),
			LanesPath:     filepath.Join(dir, "lanes.json"),
		},
	}).Handler())
	t.Cleanup(srv.Close)

	for _, path := range []string{"/features", "/lanes", "/hotspot", "/report", "/filters", "/legend"} {
		resp := do(t, http.MethodGet, srv.URL+path, "")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
	}

	resp := do(t, http.MethodPost, srv.URL+"/reload", "")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decode(t, resp)
	assert.ElementsMatch(t, []interface{}{"accidents", "lanes"}, body["failed_datasets"])

	health := decode(t, do(t, http.MethodGet, srv.URL+"/health", ""))
	assert.Equal(t, false, health["loaded"])
	assert.NotEmpty(t, health["load_error"])

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bikes.geojson"), []byte(`{"type":"FeatureCollection","features":[
	  {"type":"Feature","geometry":{"type":"Point","coordinates":[-73.56,45.50]},"properties":{"ACCIDENT_TYPE":"Injury"}}]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lanes.json"), []byte(lanesDoc), 0o644))

	resp = do(t, http.MethodPost, srv.URL+"/reload", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, decode(t, resp)["total"])

	resp = do(t, http.MethodGet, srv.URL+"/features", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	session := explorer.New(explorer.Options{})
	session.Use(store.New(fixture(), store.LaneNetwork{}))
	srv := httptest.NewServer(NewServer(session, Options{RateLimit: 0.001, RateBurst: 1}).Handler())
	t.Cleanup(srv.Close)

	first := do(t, http.MethodGet, srv.URL+"/report", "")
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second := do(t, http.MethodGet, srv.URL+"/report", "")
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.NotEmpty(t, second.Header.Get("Retry-After"))

	health := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, health.StatusCode, "health bypasses the limiter")
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/features", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://maps.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
