// Package dispatch owns the task/vehicle registry and the assignment
// and recovery engine built on top of it.
package dispatch

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"fleetnav/internal/geo"
	"fleetnav/internal/model"
)

var (
	// ErrUnknownVehicle reports an id with no vehicle record.
	ErrUnknownVehicle = errors.New("dispatch: unknown vehicle")
	// ErrUnknownTask reports an id with no task record.
	ErrUnknownTask = errors.New("dispatch: unknown task")
	// ErrDuplicateID reports an insert with an id already in use.
	ErrDuplicateID = errors.New("dispatch: id already registered")
	// ErrNonPositiveCapacity rejects a vehicle without usable capacity.
	ErrNonPositiveCapacity = errors.New("dispatch: vehicle capacity must be positive")
	// ErrNonPositiveWeight rejects a weightless task.
	ErrNonPositiveWeight = errors.New("dispatch: task weight must be positive")
)

// Registry is the process-wide owner of vehicle and task records. One
// coarse mutex guards both maps; engine operations that read and write
// several related records hold it for their full duration so a
// concurrent assign and breakdown can never interleave.
type Registry struct {
	mu       sync.Mutex
	vehicles map[string]*model.Vehicle
	tasks    map[string]*model.Task
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		vehicles: map[string]*model.Vehicle{},
		tasks:    map[string]*model.Task{},
	}
}

// AddVehicle inserts a vehicle with full remaining capacity and no
// tasks. A blank id gets a generated one.
func (r *Registry) AddVehicle(in model.VehicleIn) (model.Vehicle, error) {
	if in.MaxCapacity <= 0 {
		return model.Vehicle{}, fmt.Errorf("%w: got %v", ErrNonPositiveCapacity, in.MaxCapacity)
	}
	id := in.ID
	if id == "" {
		id = uuid.New().String()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vehicles[id]; ok {
		return model.Vehicle{}, fmt.Errorf("%w: vehicle %s", ErrDuplicateID, id)
	}
	v := &model.Vehicle{
		ID:                id,
		Location:          in.Location,
		MaxCapacity:       in.MaxCapacity,
		RemainingCapacity: in.MaxCapacity,
		TaskIDs:           []string{},
	}
	r.vehicles[id] = v
	return copyVehicle(v), nil
}

// AddTask inserts a pending, unowned task. A blank id gets a generated
// one.
func (r *Registry) AddTask(in model.TaskIn) (model.Task, error) {
	if in.Weight <= 0 {
		return model.Task{}, fmt.Errorf("%w: got %v", ErrNonPositiveWeight, in.Weight)
	}
	id := in.ID
	if id == "" {
		id = uuid.New().String()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; ok {
		return model.Task{}, fmt.Errorf("%w: task %s", ErrDuplicateID, id)
	}
	t := &model.Task{
		ID:         id,
		Weight:     in.Weight,
		Pickup:     in.Pickup,
		Dropoff:    in.Dropoff,
		Status:     model.TaskPending,
		TimeWindow: in.TimeWindow,
	}
	r.tasks[id] = t
	return copyTask(t), nil
}

// VehicleSnapshot returns a deep copy of one vehicle record.
func (r *Registry) VehicleSnapshot(id string) (model.Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vehicles[id]
	if !ok {
		return model.Vehicle{}, fmt.Errorf("%w: %s", ErrUnknownVehicle, id)
	}
	return copyVehicle(v), nil
}

// TaskSnapshot returns a deep copy of one task record.
func (r *Registry) TaskSnapshot(id string) (model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return model.Task{}, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	return copyTask(t), nil
}

// ListVehicles returns deep copies of all vehicles, ordered by id for
// stable rendering.
func (r *Registry) ListVehicles() []model.Vehicle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Vehicle, 0, len(r.vehicles))
	for _, v := range r.vehicles {
		out = append(out, copyVehicle(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListTasks returns deep copies of all tasks, ordered by id.
func (r *Registry) ListTasks() []model.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, copyTask(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Restore loads previously persisted records, replacing current state.
// Used once at startup when a fleet store is configured.
func (r *Registry) Restore(vehicles []model.Vehicle, tasks []model.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vehicles = make(map[string]*model.Vehicle, len(vehicles))
	for i := range vehicles {
		v := vehicles[i]
		r.vehicles[v.ID] = &v
	}
	r.tasks = make(map[string]*model.Task, len(tasks))
	for i := range tasks {
		t := tasks[i]
		r.tasks[t.ID] = &t
	}
}

func copyVehicle(v *model.Vehicle) model.Vehicle {
	out := *v
	out.TaskIDs = append([]string(nil), v.TaskIDs...)
	out.Route = append([]geo.Point(nil), v.Route...)
	return out
}

func copyTask(t *model.Task) model.Task {
	out := *t
	if t.TimeWindow != nil {
		tw := *t.TimeWindow
		out.TimeWindow = &tw
	}
	return out
}
