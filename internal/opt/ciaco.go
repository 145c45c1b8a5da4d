// Package opt implements the route-construction engine: a
// clustering-seeded ant-colony optimizer (CIACO) that orders a set of
// stops into a short visiting sequence.
package opt

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"fleetnav/internal/geo"
)

// depositEpsilon guards the pheromone contribution against a
// zero-length route.
const depositEpsilon = 1e-10

// intraClusterBoost strengthens pheromone trails between stops that
// the seeding pass placed in the same cluster.
const intraClusterBoost = 1.5

// Configuration errors, reported eagerly by New.
var (
	ErrAnts             = errors.New("opt: ant count must be positive")
	ErrIterations       = errors.New("opt: iteration count must be positive")
	ErrAlpha            = errors.New("opt: alpha must be non-negative")
	ErrBeta             = errors.New("opt: beta must be non-negative")
	ErrEvaporationRate  = errors.New("opt: evaporation rate must be in [0,1]")
	ErrInitialPheromone = errors.New("opt: initial pheromone must be positive")
	ErrClusters         = errors.New("opt: cluster count must be positive")
	ErrElitistFactor    = errors.New("opt: elitist factor must be >= 1")
)

// ErrNoStops is returned when Optimize is called with an empty stop list.
var ErrNoStops = errors.New("opt: stop list must not be empty")

// Config holds the CIACO parameters. Alpha weighs learned pheromone,
// Beta weighs the inverse-distance heuristic.
type Config struct {
	Ants             int     `json:"ants" yaml:"ants"`
	Iterations       int     `json:"iterations" yaml:"iterations"`
	Alpha            float64 `json:"alpha" yaml:"alpha"`
	Beta             float64 `json:"beta" yaml:"beta"`
	EvaporationRate  float64 `json:"evaporationRate" yaml:"evaporationRate"`
	InitialPheromone float64 `json:"initialPheromone" yaml:"initialPheromone"`
	Clusters         int     `json:"clusters" yaml:"clusters"`
	ElitistFactor    float64 `json:"elitistFactor" yaml:"elitistFactor"`
	Seed             int64   `json:"seed,omitempty" yaml:"seed"`
}

// DefaultConfig returns the parameter set used when a caller supplies
// nothing.
func DefaultConfig() Config {
	return Config{
		Ants:             10,
		Iterations:       50,
		Alpha:            1.0,
		Beta:             2.0,
		EvaporationRate:  0.1,
		InitialPheromone: 1.0,
		Clusters:         3,
		ElitistFactor:    2.0,
	}
}

// Validate checks every parameter and returns the first violated
// constraint as a sentinel error.
func (c Config) Validate() error {
	switch {
	case c.Ants <= 0:
		return ErrAnts
	case c.Iterations <= 0:
		return ErrIterations
	case c.Alpha < 0:
		return ErrAlpha
	case c.Beta < 0:
		return ErrBeta
	case c.EvaporationRate < 0 || c.EvaporationRate > 1:
		return ErrEvaporationRate
	case c.InitialPheromone <= 0:
		return ErrInitialPheromone
	case c.Clusters <= 0:
		return ErrClusters
	case c.ElitistFactor < 1:
		return ErrElitistFactor
	}
	return nil
}

// Optimizer runs the CIACO loop. It is not safe for concurrent use;
// create one per goroutine or serialize calls.
type Optimizer struct {
	cfg Config
	rng *rand.Rand
}

// New validates cfg and constructs an Optimizer. A zero Seed selects a
// time-based seed.
func New(cfg Config) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Optimizer{cfg: cfg, rng: rand.New(rand.NewSource(seed))}, nil
}

// Config returns the parameters the optimizer was built with.
func (o *Optimizer) Config() Config { return o.cfg }

// Optimize orders stops into a short visiting sequence. stops[0] is the
// depot and always leads the result; when returnToDepot is set the
// depot is appended again as the final stop. Stop lists of two or fewer
// entries are returned unchanged. Callers must supply distinct
// coordinates (see geo.Dedupe).
func (o *Optimizer) Optimize(stops []geo.Point, returnToDepot bool) ([]geo.Point, error) {
	if len(stops) == 0 {
		return nil, ErrNoStops
	}
	if len(stops) <= 2 {
		return append([]geo.Point(nil), stops...), nil
	}

	n := len(stops)
	dist := geo.DistanceMatrix(stops)
	vis := geo.VisibilityMatrix(stops)
	clusters := clusterStops(stops, o.cfg.Clusters, o.rng)
	pher := o.seedPheromone(n, clusters)

	var bestTour []int
	bestLen := math.Inf(1)

	tours := make([][]int, o.cfg.Ants)
	lens := make([]float64, o.cfg.Ants)
	for it := 0; it < o.cfg.Iterations; it++ {
		for a := 0; a < o.cfg.Ants; a++ {
			tour := o.constructTour(n, pher, vis)
			l := tourLength(tour, dist, returnToDepot)
			tours[a] = tour
			lens[a] = l
			if l < bestLen {
				bestLen = l
				bestTour = tour
			}
		}
		o.depositPheromone(pher, tours, lens, returnToDepot)
	}

	route := make([]geo.Point, 0, n+1)
	for _, idx := range bestTour {
		route = append(route, stops[idx])
	}
	if returnToDepot {
		route = append(route, stops[0])
	}
	return route, nil
}

// seedPheromone fills an n x n matrix with the initial pheromone,
// zeroes the diagonal, and strengthens intra-cluster trails. The boost
// is applied to both directions of every ordered pair, so each
// symmetric entry ends up multiplied twice per stop pair.
func (o *Optimizer) seedPheromone(n int, clusters [][]int) [][]float64 {
	pher := make([][]float64, n)
	for i := range pher {
		pher[i] = make([]float64, n)
		for j := range pher[i] {
			if i != j {
				pher[i][j] = o.cfg.InitialPheromone
			}
		}
	}
	for _, cluster := range clusters {
		for _, i := range cluster {
			for _, j := range cluster {
				if i == j {
					continue
				}
				pher[i][j] *= intraClusterBoost
				pher[j][i] *= intraClusterBoost
			}
		}
	}
	return pher
}

// constructTour builds one ant's tour of stop indices, starting at the
// depot (index 0). The next stop is drawn by roulette wheel over the
// unvisited subset only; sampling the full index range and resampling
// on collisions would bias and slow the draw.
func (o *Optimizer) constructTour(n int, pher, vis [][]float64) []int {
	tour := make([]int, 1, n)
	unvisited := make([]int, 0, n-1)
	for i := 1; i < n; i++ {
		unvisited = append(unvisited, i)
	}
	weights := make([]float64, n-1)

	current := 0
	for len(unvisited) > 0 {
		weights = weights[:len(unvisited)]
		sum := 0.0
		for wi, j := range unvisited {
			w := math.Pow(pher[current][j], o.cfg.Alpha) * math.Pow(vis[current][j], o.cfg.Beta)
			weights[wi] = w
			sum += w
		}
		var pick int
		if sum <= 0 {
			pick = o.rng.Intn(len(unvisited))
		} else {
			r := o.rng.Float64() * sum
			acc := 0.0
			pick = len(unvisited) - 1
			for wi, w := range weights {
				acc += w
				if r <= acc {
					pick = wi
					break
				}
			}
		}
		next := unvisited[pick]
		tour = append(tour, next)
		unvisited = append(unvisited[:pick], unvisited[pick+1:]...)
		current = next
	}
	return tour
}

// depositPheromone evaporates every trail and deposits each ant's
// contribution along its tour. The round's best tour additionally
// receives the elitist deposit on top of its regular one.
func (o *Optimizer) depositPheromone(pher [][]float64, tours [][]int, lens []float64, closed bool) {
	for i := range pher {
		for j := range pher[i] {
			pher[i][j] *= 1 - o.cfg.EvaporationRate
		}
	}

	bestIdx := 0
	for a := 1; a < len(lens); a++ {
		if lens[a] < lens[bestIdx] {
			bestIdx = a
		}
	}

	for a, tour := range tours {
		depositAlongTour(pher, tour, 1/(lens[a]+depositEpsilon), closed)
	}
	depositAlongTour(pher, tours[bestIdx], o.cfg.ElitistFactor/(lens[bestIdx]+depositEpsilon), closed)
}

func depositAlongTour(pher [][]float64, tour []int, amount float64, closed bool) {
	for i := 0; i < len(tour)-1; i++ {
		u, v := tour[i], tour[i+1]
		pher[u][v] += amount
		pher[v][u] += amount
	}
	if closed && len(tour) > 1 {
		u, v := tour[len(tour)-1], tour[0]
		pher[u][v] += amount
		pher[v][u] += amount
	}
}

// tourLength sums the matrix distances along a tour of indices,
// closing the loop back to the depot when closed is set.
func tourLength(tour []int, dist [][]float64, closed bool) float64 {
	if len(tour) < 2 {
		return 0
	}
	total := 0.0
	for i := 0; i < len(tour)-1; i++ {
		total += dist[tour[i]][tour[i+1]]
	}
	if closed {
		total += dist[tour[len(tour)-1]][tour[0]]
	}
	return total
}
