package dispatch

import (
	"fmt"
	"math"
	"sort"
	"time"

	"fleetnav/internal/geo"
	"fleetnav/internal/model"
	"fleetnav/internal/opt"
)

const (
	// defaultSpeed is the optimistic travel-speed assumption used for
	// time-window reachability, in distance units per hour.
	defaultSpeed = 80.0
	// defaultProximity is how close a vehicle must come to a dropoff
	// for the task to count as delivered.
	defaultProximity = 0.01
	// routeGateFactor bounds how much a recomputed route may grow over
	// the committed one before the gated intake rejects the candidate.
	routeGateFactor = 1.2
	// breakdownCapacitySlack is the lenient fraction of a task's weight
	// a vehicle must cover during breakdown recovery. Recovery accepts
	// a mild overload rather than stranding freight.
	breakdownCapacitySlack = 0.9
)

// Engine decides which vehicle serves which task and keeps registry
// state consistent as tasks progress. Every public operation is atomic
// under the registry lock.
type Engine struct {
	reg           *Registry
	optCfg        opt.Config
	speed         float64
	proximity     float64
	returnToDepot bool
	now           func() time.Time
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithClock injects the time source used for time-window checks.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithSpeed overrides the assumed travel speed (units/hour).
func WithSpeed(speed float64) EngineOption {
	return func(e *Engine) { e.speed = speed }
}

// WithProximity overrides the dropoff completion threshold.
func WithProximity(d float64) EngineOption {
	return func(e *Engine) { e.proximity = d }
}

// WithOpenRoutes makes recomputed routes end at the last stop instead
// of returning to the vehicle's current location.
func WithOpenRoutes() EngineOption {
	return func(e *Engine) { e.returnToDepot = false }
}

// NewEngine builds an Engine over reg. optCfg is validated eagerly; an
// invalid optimizer configuration is a construction error, not a
// per-call one.
func NewEngine(reg *Registry, optCfg opt.Config, opts ...EngineOption) (*Engine, error) {
	if err := optCfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		reg:           reg,
		optCfg:        optCfg,
		speed:         defaultSpeed,
		proximity:     defaultProximity,
		returnToDepot: true,
		now:           time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Registry exposes the engine's registry for snapshot reads.
func (e *Engine) Registry() *Registry { return e.reg }

// Assign moves a pending task to in_progress on the closest vehicle
// that passes the capacity and time-window checks, then recomputes
// that vehicle's route. Infeasibility is a normal outcome reported in
// the result, not an error.
func (e *Engine) Assign(taskID string) (model.AssignResult, error) {
	e.reg.mu.Lock()
	defer e.reg.mu.Unlock()

	task, ok := e.reg.tasks[taskID]
	if !ok {
		return model.AssignResult{}, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if task.Status != model.TaskPending {
		return model.AssignResult{TaskID: taskID, Reason: "task not pending: " + string(task.Status)}, nil
	}

	best, reason := e.pickVehicle(task)
	if best == nil {
		return model.AssignResult{TaskID: taskID, Reason: reason}, nil
	}
	if err := e.bind(task, best); err != nil {
		return model.AssignResult{}, err
	}
	return model.AssignResult{TaskID: taskID, Assigned: true, VehicleID: best.ID}, nil
}

// AssignGated is the order-intake variant: candidates are tried in
// order of pickup distance, and a candidate is only accepted when its
// recomputed route stays within routeGateFactor of its committed
// route (idle vehicles always pass). Candidates whose detour would be
// too costly are skipped in favor of the next one.
func (e *Engine) AssignGated(taskID string) (model.AssignResult, error) {
	e.reg.mu.Lock()
	defer e.reg.mu.Unlock()

	task, ok := e.reg.tasks[taskID]
	if !ok {
		return model.AssignResult{}, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if task.Status != model.TaskPending {
		return model.AssignResult{TaskID: taskID, Reason: "task not pending: " + string(task.Status)}, nil
	}

	candidates, reason := e.candidateVehicles(task)
	if len(candidates) == 0 {
		return model.AssignResult{TaskID: taskID, Reason: reason}, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		di := geo.Distance(candidates[i].Location, task.Pickup)
		dj := geo.Distance(candidates[j].Location, task.Pickup)
		if di != dj {
			return di < dj
		}
		return candidates[i].ID < candidates[j].ID
	})

	for _, v := range candidates {
		newRoute, err := e.recomputeRoute(v, task)
		if err != nil {
			return model.AssignResult{}, err
		}
		oldLen := geo.RouteLength(v.Route, e.returnToDepot)
		newLen := geo.RouteLength(newRoute, e.returnToDepot)
		if oldLen != 0 && newLen > oldLen*routeGateFactor {
			continue
		}
		e.bindWithRoute(task, v, newRoute)
		return model.AssignResult{TaskID: taskID, Assigned: true, VehicleID: v.ID}, nil
	}
	return model.AssignResult{TaskID: taskID, Reason: "all candidates failed the route-length gate"}, nil
}

// Advance updates a vehicle's location and completes every in-progress
// task whose dropoff lies within the proximity threshold. It returns
// the ids of the tasks completed by this movement.
func (e *Engine) Advance(vehicleID string, loc geo.Point) ([]string, error) {
	e.reg.mu.Lock()
	defer e.reg.mu.Unlock()

	v, ok := e.reg.vehicles[vehicleID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVehicle, vehicleID)
	}
	v.Location = loc

	var completed []string
	remaining := v.TaskIDs[:0]
	for _, tid := range v.TaskIDs {
		t := e.reg.tasks[tid]
		if t != nil && t.Status == model.TaskInProgress && geo.Distance(loc, t.Dropoff) < e.proximity {
			t.Status = model.TaskCompleted
			t.VehicleID = ""
			v.RemainingCapacity += t.Weight
			v.CommittedWeight -= t.Weight
			completed = append(completed, tid)
			continue
		}
		remaining = append(remaining, tid)
	}
	v.TaskIDs = remaining
	return completed, nil
}

// ReassignOnBreakdown removes a vehicle from service and redistributes
// its tasks. Heavier tasks get first chance at the scarce capacity;
// capacity matching is lenient (breakdownCapacitySlack) so recovery
// prefers a mild overload to a stranded task. The result reports every
// detached task individually.
func (e *Engine) ReassignOnBreakdown(vehicleID string) (model.ReassignResult, error) {
	e.reg.mu.Lock()
	defer e.reg.mu.Unlock()

	v, ok := e.reg.vehicles[vehicleID]
	if !ok {
		return model.ReassignResult{}, fmt.Errorf("%w: %s", ErrUnknownVehicle, vehicleID)
	}

	detached := make([]*model.Task, 0, len(v.TaskIDs))
	for _, tid := range v.TaskIDs {
		t := e.reg.tasks[tid]
		if t == nil {
			continue
		}
		t.Status = model.TaskPending
		t.VehicleID = ""
		detached = append(detached, t)
	}
	delete(e.reg.vehicles, vehicleID)

	sort.Slice(detached, func(i, j int) bool {
		if detached[i].Weight != detached[j].Weight {
			return detached[i].Weight > detached[j].Weight
		}
		return detached[i].ID < detached[j].ID
	})

	res := model.ReassignResult{
		VehicleID: vehicleID,
		Rebound:   map[string]string{},
		AllBound:  true,
	}
	for _, t := range detached {
		var best *model.Vehicle
		bestDist := math.Inf(1)
		for _, cand := range e.reg.vehicles {
			if cand.RemainingCapacity < t.Weight*breakdownCapacitySlack {
				continue
			}
			if d := geo.Distance(cand.Location, t.Pickup); d < bestDist {
				bestDist = d
				best = cand
			}
		}
		if best == nil {
			res.Stranded = append(res.Stranded, t.ID)
			res.AllBound = false
			continue
		}
		if err := e.bind(t, best); err != nil {
			return model.ReassignResult{}, err
		}
		res.Rebound[t.ID] = best.ID
	}
	return res, nil
}

// pickVehicle returns the closest feasible vehicle for task, or nil
// with a reason string attributing the rejection counts per check.
func (e *Engine) pickVehicle(task *model.Task) (*model.Vehicle, string) {
	candidates, reason := e.candidateVehicles(task)
	if len(candidates) == 0 {
		return nil, reason
	}
	var best *model.Vehicle
	bestDist := math.Inf(1)
	for _, v := range candidates {
		if d := geo.Distance(v.Location, task.Pickup); d < bestDist {
			bestDist = d
			best = v
		}
	}
	return best, ""
}

func (e *Engine) candidateVehicles(task *model.Task) ([]*model.Vehicle, string) {
	var out []*model.Vehicle
	rejectedCapacity, rejectedWindow := 0, 0
	for _, v := range e.reg.vehicles {
		if v.RemainingCapacity < task.Weight || v.CommittedWeight+task.Weight > v.MaxCapacity {
			rejectedCapacity++
			continue
		}
		if task.TimeWindow != nil && !e.reachableWithinWindow(v, task) {
			rejectedWindow++
			continue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Sprintf("no feasible vehicle: %d failed capacity, %d failed time window",
			rejectedCapacity, rejectedWindow)
	}
	return out, ""
}

// reachableWithinWindow checks only that the vehicle can reach the
// pickup before the window closes, using the optimistic speed
// assumption; it does not validate full completion.
func (e *Engine) reachableWithinWindow(v *model.Vehicle, task *model.Task) bool {
	now := e.now()
	tw := task.TimeWindow
	if now.After(tw.End) {
		return false
	}
	start := now
	if tw.Start.After(start) {
		start = tw.Start
	}
	travel := geo.Distance(v.Location, task.Pickup) / e.speed
	eta := start.Add(time.Duration(travel * float64(time.Hour)))
	return !eta.After(tw.End)
}

// bind commits task to v and recomputes v's route. Callers hold the
// registry lock.
func (e *Engine) bind(task *model.Task, v *model.Vehicle) error {
	route, err := e.recomputeRoute(v, task)
	if err != nil {
		return err
	}
	e.bindWithRoute(task, v, route)
	return nil
}

func (e *Engine) bindWithRoute(task *model.Task, v *model.Vehicle, route []geo.Point) {
	task.Status = model.TaskInProgress
	task.VehicleID = v.ID
	v.TaskIDs = append(v.TaskIDs, task.ID)
	v.RemainingCapacity -= task.Weight
	v.CommittedWeight += task.Weight
	v.Route = route
}

// recomputeRoute optimizes the stop set for v carrying task on top of
// its other in-progress work: the vehicle's location, the dropoffs of
// its other tasks, and the new task's pickup and dropoff.
func (e *Engine) recomputeRoute(v *model.Vehicle, task *model.Task) ([]geo.Point, error) {
	stops := []geo.Point{v.Location}
	for _, tid := range v.TaskIDs {
		if t := e.reg.tasks[tid]; t != nil && t.Status == model.TaskInProgress && t.ID != task.ID {
			stops = append(stops, t.Dropoff)
		}
	}
	stops = append(stops, task.Pickup, task.Dropoff)
	stops = geo.Dedupe(stops)

	o, err := opt.New(e.optCfg)
	if err != nil {
		return nil, err
	}
	return o.Optimize(stops, e.returnToDepot)
}
