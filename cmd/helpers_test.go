package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/crashmap/internal/config"
	"github.com/sells-group/crashmap/internal/store"
)

const testAccidents = `{"type":"FeatureCollection","features":[
  {"type":"Feature","geometry":{"type":"Point","coordinates":[-73.5673,45.5017]},
   "properties":{"NO_SEQ_COLL":"A1","ACCIDENT_TYPE":"Property damage only","CD_COND_METEO":"11","CD_ECLRM":"1","ON_BIKELANE":false}},
  {"type":"Feature","geometry":{"type":"Point","coordinates":[-73.5673,45.5107]},
   "properties":{"NO_SEQ_COLL":"A2","ACCIDENT_TYPE":"Injury","CD_COND_METEO":"14","CD_ECLRM":"3","ON_BIKELANE":true}},
  {"type":"Feature","geometry":{"type":"Point","coordinates":[-73.5673,45.5107]},
   "properties":{"NO_SEQ_COLL":"A3","ACCIDENT_TYPE":"Injury","CD_COND_METEO":"11","CD_ECLRM":"1","ON_BIKELANE":false}},
  {"type":"Feature","geometry":{"type":"Point","coordinates":[-73.5673,45.5107]},
   "properties":{"NO_SEQ_COLL":"A4","ACCIDENT_TYPE":"Fatal","CD_COND_METEO":"11","CD_ECLRM":"1","ON_BIKELANE":true}}
]}`

const testLanes = `{"type":"FeatureCollection","features":[]}`

// testConfig writes both datasets to a temp dir and returns a config
// pointing at them.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	accidents := filepath.Join(dir, "bikes.geojson")
	lanes := filepath.Join(dir, "lanes.json")
	require.NoError(t, os.WriteFile(accidents, []byte(testAccidents), 0o644))
	require.NoError(t, os.WriteFile(lanes, []byte(testLanes), 0o644))

	c := &config.Config{}
	c.Dataset.AccidentsPath = accidents
	c.Dataset.LanesPath = lanes
	c.Dataset.Properties = store.DefaultPropertyNames()
	c.Density.RadiusKM = 0.2
	c.Density.GridThreshold = 512
	c.Server.Port = 8080
	return c
}
