// Package geo provides the planar geometry primitives used by the
// optimizer and the dispatch engine.
package geo

import "math"

// visibilityEpsilon keeps the inverse-distance heuristic finite for
// coincident points.
const visibilityEpsilon = 1e-6

// Point is a 2-D coordinate. Points have no identity beyond their
// coordinates; routes compare them by value.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// RouteLength sums the consecutive leg distances of stops. If
// returnToDepot is set, the closing leg from the last stop back to
// stops[0] is included. Empty and single-stop routes have length 0.
func RouteLength(stops []Point, returnToDepot bool) float64 {
	if len(stops) < 2 {
		return 0
	}
	total := 0.0
	for i := 0; i < len(stops)-1; i++ {
		total += Distance(stops[i], stops[i+1])
	}
	if returnToDepot {
		total += Distance(stops[len(stops)-1], stops[0])
	}
	return total
}

// DistanceMatrix returns the symmetric pairwise distance matrix of
// stops with a zero diagonal.
func DistanceMatrix(stops []Point) [][]float64 {
	n := len(stops)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := Distance(stops[i], stops[j])
			m[i][j] = d
			m[j][i] = d
		}
	}
	return m
}

// VisibilityMatrix returns the inverse-distance heuristic matrix:
// entry (i,j) = 1/(distance(i,j)+eps). The diagonal stays zero so a
// stop never attracts itself.
func VisibilityMatrix(stops []Point) [][]float64 {
	n := len(stops)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			m[i][j] = 1 / (Distance(stops[i], stops[j]) + visibilityEpsilon)
		}
	}
	return m
}

// Dedupe returns stops with exact duplicate coordinates removed,
// preserving first-occurrence order. The optimizer requires distinct
// coordinates; callers building stop sets from live fleet state use
// this before optimizing.
func Dedupe(stops []Point) []Point {
	seen := make(map[Point]struct{}, len(stops))
	out := make([]Point, 0, len(stops))
	for _, p := range stops {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
