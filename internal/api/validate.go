package api

import (
	"fmt"
	"math"

	"fleetnav/internal/model"
)

const maxOptimizeStops = 2000

func validateVehicleIn(in *model.VehicleIn) error {
	if in.MaxCapacity <= 0 {
		return fmt.Errorf("maxCapacity must be > 0")
	}
	if !finite(in.Location.X) || !finite(in.Location.Y) {
		return fmt.Errorf("location must be finite")
	}
	return nil
}

func validateTaskIn(in *model.TaskIn) error {
	if in.Weight <= 0 {
		return fmt.Errorf("weight must be > 0")
	}
	for _, p := range []struct {
		name string
		x, y float64
	}{{"pickup", in.Pickup.X, in.Pickup.Y}, {"dropoff", in.Dropoff.X, in.Dropoff.Y}} {
		if !finite(p.x) || !finite(p.y) {
			return fmt.Errorf("%s must be finite", p.name)
		}
	}
	if tw := in.TimeWindow; tw != nil {
		if tw.End.IsZero() || tw.Start.IsZero() {
			return fmt.Errorf("timeWindow requires start and end")
		}
		if !tw.End.After(tw.Start) {
			return fmt.Errorf("timeWindow end must be after start")
		}
	}
	return nil
}

func validateOptimizeIn(in *model.OptimizeIn) error {
	if len(in.Stops) == 0 {
		return fmt.Errorf("stops must not be empty")
	}
	if len(in.Stops) > maxOptimizeStops {
		return fmt.Errorf("too many stops (max %d)", maxOptimizeStops)
	}
	for i, p := range in.Stops {
		if !finite(p.X) || !finite(p.Y) {
			return fmt.Errorf("stop %d must be finite", i)
		}
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
