// Package density finds the approximate spatial hotspot of a set of incidents
// with a fixed-radius great-circle neighbor count.
package density

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/sells-group/crashmap/internal/incident"
)

// DefaultRadiusKM is the neighbor radius used when none is configured.
const DefaultRadiusKM = 0.2

// DefaultGridThreshold is the input size above which neighbor candidates come
// from a grid index instead of a full pairwise scan.
const DefaultGridThreshold = 512

// Peak is the densest position and its neighbor count (self included).
type Peak struct {
	Position orb.Point `json:"position"`
	Count    int       `json:"count"`
	// Index is the position of the peak record in the input sequence.
	Index int `json:"index"`
}

// DistanceKM returns the great-circle distance between two lon/lat points.
func DistanceKM(a, b orb.Point) float64 {
	return geo.DistanceHaversine(a, b) / 1000
}

// Estimator computes density peaks with a configured radius.
type Estimator struct {
	RadiusKM      float64
	GridThreshold int
}

// NewEstimator returns an Estimator; a negative or NaN radius falls back to
// DefaultRadiusKM and a non-positive threshold to DefaultGridThreshold.
func NewEstimator(radiusKM float64, gridThreshold int) Estimator {
	if math.IsNaN(radiusKM) || radiusKM < 0 {
		radiusKM = DefaultRadiusKM
	}
	if gridThreshold <= 0 {
		gridThreshold = DefaultGridThreshold
	}
	return Estimator{RadiusKM: radiusKM, GridThreshold: gridThreshold}
}

// DensestPoint returns the record position with the most records within
// radiusKM of it. Ties go to the first record in input order. The bool is
// false when records is empty.
func DensestPoint(records []incident.Record, radiusKM float64) (Peak, bool) {
	return NewEstimator(radiusKM, DefaultGridThreshold).DensestPoint(records)
}

// DensestPoint is the configured form of the package-level DensestPoint.
func (e Estimator) DensestPoint(records []incident.Record) (Peak, bool) {
	if len(records) == 0 {
		return Peak{}, false
	}
	points := make([]orb.Point, len(records))
	for i, r := range records {
		points[i] = r.Position
	}

	var counts []int
	if len(points) > e.GridThreshold {
		if g, ok := newGrid(points, e.RadiusKM); ok {
			counts = g.counts(points, e.RadiusKM)
		}
	}
	if counts == nil {
		counts = pairwiseCounts(points, e.RadiusKM)
	}

	best := 0
	for i := 1; i < len(counts); i++ {
		if counts[i] > counts[best] {
			best = i
		}
	}
	return Peak{Position: points[best], Count: counts[best], Index: best}, true
}

// pairwiseCounts compares every pair once.
func pairwiseCounts(points []orb.Point, radiusKM float64) []int {
	counts := make([]int, len(points))
	for i := range points {
		counts[i]++
		for j := i + 1; j < len(points); j++ {
			if DistanceKM(points[i], points[j]) <= radiusKM {
				counts[i]++
				counts[j]++
			}
		}
	}
	return counts
}
