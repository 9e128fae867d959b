package density

import (
	"math"

	"github.com/paulmach/orb"
)

const (
	// gridMaxAbsLat bounds the grid to latitudes where longitude cells stay narrow.
	gridMaxAbsLat = 85.0
	// cellMargin widens cells slightly so boundary pairs never fall two cells apart.
	cellMargin = 1.001
)

type cellKey struct{ x, y int }

// grid buckets points into lat/lon cells at least one radius wide, so every
// neighbor of a point lies in its own cell or one of the eight around it.
type grid struct {
	cellLat float64
	cellLon float64
	cells   map[cellKey][]int
}

// newGrid builds an index over points. It reports false when the set is too
// close to a pole or the antimeridian for fixed-width cells to be exact.
func newGrid(points []orb.Point, radiusKM float64) (*grid, bool) {
	if radiusKM <= 0 {
		return nil, false
	}
	earthKM := orb.EarthRadius / 1000
	angle := radiusKM / earthKM // radians
	if angle >= math.Pi/2 {
		return nil, false
	}

	maxAbsLat := 0.0
	for _, p := range points {
		maxAbsLat = math.Max(maxAbsLat, math.Abs(p.Lat()))
	}
	if maxAbsLat > gridMaxAbsLat {
		return nil, false
	}

	// Haversine: sin²(d/2R) >= cos φ1 cos φ2 sin²(Δλ/2), so within the set
	// Δλ <= 2 asin(sin(d/2R) / cos φmax).
	s := math.Sin(angle/2) / math.Cos(maxAbsLat*math.Pi/180)
	if s >= 1 {
		return nil, false
	}
	cellLat := angle * 180 / math.Pi * cellMargin
	cellLon := 2 * math.Asin(s) * 180 / math.Pi * cellMargin

	for _, p := range points {
		if 180-math.Abs(p.Lon()) <= cellLon {
			return nil, false
		}
	}

	g := &grid{cellLat: cellLat, cellLon: cellLon, cells: make(map[cellKey][]int)}
	for i, p := range points {
		k := g.key(p)
		g.cells[k] = append(g.cells[k], i)
	}
	return g, true
}

func (g *grid) key(p orb.Point) cellKey {
	return cellKey{
		x: int(math.Floor(p.Lon() / g.cellLon)),
		y: int(math.Floor(p.Lat() / g.cellLat)),
	}
}

// counts returns, per point, the number of points within radiusKM of it.
func (g *grid) counts(points []orb.Point, radiusKM float64) []int {
	counts := make([]int, len(points))
	for i, p := range points {
		k := g.key(p)
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				for _, j := range g.cells[cellKey{x: k.x + dx, y: k.y + dy}] {
					if DistanceKM(p, points[j]) <= radiusKM {
						counts[i]++
					}
				}
			}
		}
	}
	return counts
}
