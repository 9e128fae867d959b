package density

import (
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crashmap/internal/incident"
)

func at(id string, lon, lat float64) incident.Record {
	return incident.Record{ID: id, Position: orb.Point{lon, lat}}
}

func TestDistanceKM(t *testing.T) {
	// Montreal to Quebec City, roughly 233 km.
	d := DistanceKM(orb.Point{-73.5673, 45.5017}, orb.Point{-71.2080, 46.8139})
	assert.InDelta(t, 233, d, 3)

	assert.InDelta(t, 0, DistanceKM(orb.Point{-73.5, 45.5}, orb.Point{-73.5, 45.5}), 1e-9)

	// One degree of longitude shrinks with latitude.
	equator := DistanceKM(orb.Point{0, 0}, orb.Point{1, 0})
	north := DistanceKM(orb.Point{0, 60}, orb.Point{1, 60})
	assert.InDelta(t, equator/2, north, 0.5)
}

func TestDensestPoint_Empty(t *testing.T) {
	_, ok := DensestPoint(nil, DefaultRadiusKM)
	assert.False(t, ok)

	_, ok = DensestPoint([]incident.Record{}, DefaultRadiusKM)
	assert.False(t, ok)
}

func TestDensestPoint_ThreeStackedOneAway(t *testing.T) {
	records := []incident.Record{
		at("far", -73.56, 45.509), // ~1 km north
		at("a", -73.56, 45.50),
		at("b", -73.56, 45.50),
		at("c", -73.56, 45.50),
	}

	peak, ok := DensestPoint(records, 0.2)
	require.True(t, ok)
	assert.Equal(t, orb.Point{-73.56, 45.50}, peak.Position)
	assert.Equal(t, 3, peak.Count)
	assert.Equal(t, 1, peak.Index)
}

func TestDensestPoint_SingleRecord(t *testing.T) {
	peak, ok := DensestPoint([]incident.Record{at("only", 2.35, 48.85)}, 0.2)
	require.True(t, ok)
	assert.Equal(t, 1, peak.Count)
	assert.Equal(t, orb.Point{2.35, 48.85}, peak.Position)
}

func TestDensestPoint_TieBreakFirstOccurrence(t *testing.T) {
	records := []incident.Record{
		at("x1", -73.60, 45.50),
		at("y1", -73.50, 45.55),
		at("x2", -73.60, 45.50),
		at("y2", -73.50, 45.55),
	}

	peak, ok := DensestPoint(records, 0.2)
	require.True(t, ok)
	assert.Equal(t, 2, peak.Count)
	assert.Equal(t, 0, peak.Index)
	assert.Equal(t, orb.Point{-73.60, 45.50}, peak.Position)

	reversed := []incident.Record{records[3], records[2], records[1], records[0]}
	peak, ok = DensestPoint(reversed, 0.2)
	require.True(t, ok)
	assert.Equal(t, orb.Point{-73.50, 45.55}, peak.Position)
}

func TestDensestPoint_PermutationInvariant(t *testing.T) {
	records := []incident.Record{
		at("a", -73.5600, 45.5000),
		at("b", -73.5605, 45.5003),
		at("c", -73.5598, 45.4998),
		at("d", -73.5602, 45.5001),
		at("e", -73.6000, 45.5500),
		at("f", -73.7000, 45.4500),
	}
	want, ok := DensestPoint(records, 0.2)
	require.True(t, ok)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]incident.Record(nil), records...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, ok := DensestPoint(shuffled, 0.2)
		require.True(t, ok)
		assert.Equal(t, want.Count, got.Count)
	}
	assert.Equal(t, 4, want.Count)
}

func TestDensestPoint_RadiusBoundaryInclusive(t *testing.T) {
	a := orb.Point{-73.56, 45.50}
	b := orb.Point{-73.56, 45.501}
	d := DistanceKM(a, b)

	peak, ok := DensestPoint([]incident.Record{at("a", a[0], a[1]), at("b", b[0], b[1])}, d)
	require.True(t, ok)
	assert.Equal(t, 2, peak.Count)
}

func TestEstimator_GridMatchesPairwise(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	records := make([]incident.Record, 0, 800)
	for i := 0; i < 800; i++ {
		// Clustered around downtown Montreal with a few dense spots.
		lon := -73.57 + rng.NormFloat64()*0.01
		lat := 45.50 + rng.NormFloat64()*0.007
		records = append(records, at("r", lon, lat))
	}

	points := make([]orb.Point, len(records))
	for i, r := range records {
		points[i] = r.Position
	}
	g, ok := newGrid(points, 0.2)
	require.True(t, ok)
	assert.Equal(t, pairwiseCounts(points, 0.2), g.counts(points, 0.2))

	brute := NewEstimator(0.2, len(records)+1)
	indexed := NewEstimator(0.2, 10)
	want, ok := brute.DensestPoint(records)
	require.True(t, ok)
	got, ok := indexed.DensestPoint(records)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestNewGrid_Fallbacks(t *testing.T) {
	_, ok := newGrid([]orb.Point{{10, 89}}, 0.2)
	assert.False(t, ok, "near pole")

	_, ok = newGrid([]orb.Point{{179.9999, 10}}, 0.2)
	assert.False(t, ok, "near antimeridian")

	_, ok = newGrid([]orb.Point{{10, 10}}, 0)
	assert.False(t, ok, "zero radius")

	_, ok = newGrid([]orb.Point{{10, 10}}, 20000)
	assert.False(t, ok, "radius beyond a quarter circumference")
}

func TestNewEstimator_Defaults(t *testing.T) {
	e := NewEstimator(-1, 0)
	assert.InDelta(t, DefaultRadiusKM, e.RadiusKM, 1e-12)
	assert.Equal(t, DefaultGridThreshold, e.GridThreshold)

	e = NewEstimator(0, 5)
	assert.Zero(t, e.RadiusKM)
	assert.Equal(t, 5, e.GridThreshold)
}
