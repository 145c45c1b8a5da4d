package opt

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"fleetnav/internal/geo"
)

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"zero ants", func(c *Config) { c.Ants = 0 }, ErrAnts},
		{"zero iterations", func(c *Config) { c.Iterations = 0 }, ErrIterations},
		{"negative alpha", func(c *Config) { c.Alpha = -0.1 }, ErrAlpha},
		{"negative beta", func(c *Config) { c.Beta = -1 }, ErrBeta},
		{"evaporation below range", func(c *Config) { c.EvaporationRate = -0.01 }, ErrEvaporationRate},
		{"evaporation above range", func(c *Config) { c.EvaporationRate = 1.01 }, ErrEvaporationRate},
		{"zero pheromone", func(c *Config) { c.InitialPheromone = 0 }, ErrInitialPheromone},
		{"zero clusters", func(c *Config) { c.Clusters = 0 }, ErrClusters},
		{"elitist below one", func(c *Config) { c.ElitistFactor = 0.5 }, ErrElitistFactor},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			_, err := New(cfg)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestOptimizeEmptyStops(t *testing.T) {
	o, err := New(DefaultConfig())
	require.NoError(t, err)
	_, err = o.Optimize(nil, true)
	require.ErrorIs(t, err, ErrNoStops)
}

func TestOptimizeTinyStopSetsUnchanged(t *testing.T) {
	o, err := New(DefaultConfig())
	require.NoError(t, err)

	one := []geo.Point{{X: 1, Y: 2}}
	got, err := o.Optimize(one, true)
	require.NoError(t, err)
	require.Equal(t, one, got)

	two := []geo.Point{{X: 1, Y: 2}, {X: 3, Y: 4}}
	got, err = o.Optimize(two, true)
	require.NoError(t, err)
	require.Equal(t, two, got)
}

func randomStops(n int, rng *rand.Rand) []geo.Point {
	stops := make([]geo.Point, n)
	for i := range stops {
		stops[i] = geo.Point{X: rng.Float64() * 100, Y: rng.Float64() * 100}
	}
	return stops
}

func TestOptimizeReturnsPermutation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 7
	o, err := New(cfg)
	require.NoError(t, err)

	stops := randomStops(12, rand.New(rand.NewSource(42)))
	route, err := o.Optimize(stops, true)
	require.NoError(t, err)

	// Closed route: every stop exactly once, plus the depot repeated at
	// the end.
	require.Len(t, route, len(stops)+1)
	require.Equal(t, stops[0], route[0])
	require.Equal(t, stops[0], route[len(route)-1])
	counts := map[geo.Point]int{}
	for _, p := range route[:len(route)-1] {
		counts[p]++
	}
	for _, p := range stops {
		require.Equal(t, 1, counts[p], "stop %v dropped or duplicated", p)
	}
}

func TestOptimizeOpenRoutePermutation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 11
	o, err := New(cfg)
	require.NoError(t, err)

	stops := randomStops(9, rand.New(rand.NewSource(5)))
	route, err := o.Optimize(stops, false)
	require.NoError(t, err)
	require.Len(t, route, len(stops))
	require.Equal(t, stops[0], route[0])
}

func TestOptimizeSolvesUnitSquare(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 3
	o, err := New(cfg)
	require.NoError(t, err)

	square := []geo.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	route, err := o.Optimize(square, true)
	require.NoError(t, err)
	require.InDelta(t, 4.0, geo.RouteLength(route[:len(route)-1], true), 1e-9)
}

func TestOptimizeDeterministicWithSeed(t *testing.T) {
	stops := randomStops(10, rand.New(rand.NewSource(99)))

	run := func() []geo.Point {
		cfg := DefaultConfig()
		cfg.Seed = 17
		o, err := New(cfg)
		require.NoError(t, err)
		route, err := o.Optimize(stops, true)
		require.NoError(t, err)
		return route
	}
	require.Equal(t, run(), run())
}

// With a shared seed the longer run replays the shorter run's rounds
// before continuing, so its best route can only improve.
func TestOptimizeMoreIterationsNotWorse(t *testing.T) {
	stops := randomStops(15, rand.New(rand.NewSource(123)))

	best := func(iters int) float64 {
		cfg := DefaultConfig()
		cfg.Iterations = iters
		cfg.Seed = 29
		o, err := New(cfg)
		require.NoError(t, err)
		route, err := o.Optimize(stops, true)
		require.NoError(t, err)
		return geo.RouteLength(route[:len(route)-1], true)
	}
	require.LessOrEqual(t, best(60), best(10))
}
