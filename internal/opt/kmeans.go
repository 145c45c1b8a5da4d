package opt

import (
	"math"
	"math/rand"

	"fleetnav/internal/geo"
)

const (
	kmeansMaxRounds = 100
	// Absolute and relative tolerance for centroid convergence.
	kmeansTolerance = 1e-5
)

// clusterStops partitions stop indices into at most k groups by
// iterative centroid refinement. The partition only biases the initial
// pheromone field; it never constrains which moves the optimizer may
// make. When there are no more stops than clusters every stop gets its
// own singleton group.
func clusterStops(stops []geo.Point, k int, rng *rand.Rand) [][]int {
	n := len(stops)
	if n <= k {
		groups := make([][]int, n)
		for i := range groups {
			groups[i] = []int{i}
		}
		return groups
	}

	// Initial centroids: k distinct stops chosen uniformly at random.
	centroids := make([]geo.Point, 0, k)
	for _, i := range rng.Perm(n)[:k] {
		centroids = append(centroids, stops[i])
	}

	var clusters [][]int
	for round := 0; round < kmeansMaxRounds; round++ {
		clusters = make([][]int, len(centroids))
		for i, p := range stops {
			best := 0
			bestDist := math.Inf(1)
			for ci, c := range centroids {
				if d := geo.Distance(p, c); d < bestDist {
					bestDist = d
					best = ci
				}
			}
			clusters[best] = append(clusters[best], i)
		}

		// Recompute means, skipping emptied groups. A shrinking
		// centroid set restarts convergence tracking.
		next := make([]geo.Point, 0, len(centroids))
		for _, cluster := range clusters {
			if len(cluster) == 0 {
				continue
			}
			var sx, sy float64
			for _, i := range cluster {
				sx += stops[i].X
				sy += stops[i].Y
			}
			next = append(next, geo.Point{X: sx / float64(len(cluster)), Y: sy / float64(len(cluster))})
		}

		if len(next) == len(centroids) && centroidsConverged(centroids, next) {
			break
		}
		centroids = next
	}
	return clusters
}

func centroidsConverged(prev, next []geo.Point) bool {
	for i := range prev {
		if !closeEnough(prev[i].X, next[i].X) || !closeEnough(prev[i].Y, next[i].Y) {
			return false
		}
	}
	return true
}

func closeEnough(a, b float64) bool {
	return math.Abs(a-b) <= kmeansTolerance+kmeansTolerance*math.Abs(b)
}
