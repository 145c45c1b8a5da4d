// Package model defines the fleet domain records shared by the
// registry, the dispatch engine, the stores, and the HTTP layer.
package model

import (
	"time"

	"fleetnav/internal/geo"
)

// TaskStatus enumerates the task lifecycle.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// TimeWindow bounds when a task's pickup may begin and when the task
// must be finished.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Vehicle is a capacity-constrained carrier. RemainingCapacity and
// CommittedWeight move in opposite directions as tasks are assigned
// and completed.
type Vehicle struct {
	ID                string      `json:"id"`
	Location          geo.Point   `json:"location"`
	MaxCapacity       float64     `json:"maxCapacity"`
	RemainingCapacity float64     `json:"remainingCapacity"`
	CommittedWeight   float64     `json:"committedWeight"`
	TaskIDs           []string    `json:"taskIds"`
	Route             []geo.Point `json:"route,omitempty"`
}

// Task is a single pickup/dropoff delivery request.
type Task struct {
	ID         string      `json:"id"`
	Weight     float64     `json:"weight"`
	Pickup     geo.Point   `json:"pickup"`
	Dropoff    geo.Point   `json:"dropoff"`
	Status     TaskStatus  `json:"status"`
	VehicleID  string      `json:"vehicleId,omitempty"`
	TimeWindow *TimeWindow `json:"timeWindow,omitempty"`
}

// VehicleIn is the create-vehicle request body.
type VehicleIn struct {
	ID          string    `json:"id,omitempty"`
	Location    geo.Point `json:"location"`
	MaxCapacity float64   `json:"maxCapacity"`
}

// TaskIn is the create-task request body.
type TaskIn struct {
	ID         string      `json:"id,omitempty"`
	Weight     float64     `json:"weight"`
	Pickup     geo.Point   `json:"pickup"`
	Dropoff    geo.Point   `json:"dropoff"`
	TimeWindow *TimeWindow `json:"timeWindow,omitempty"`
}

// AdvanceIn carries a vehicle location update.
type AdvanceIn struct {
	Location geo.Point `json:"location"`
}

// OptimizeIn is the standalone route-optimization request body.
type OptimizeIn struct {
	Stops         []geo.Point `json:"stops"`
	ReturnToDepot bool        `json:"returnToDepot"`
}

// AssignResult reports an assignment attempt. A rejection always
// carries the check that caused it in Reason.
type AssignResult struct {
	TaskID    string `json:"taskId"`
	Assigned  bool   `json:"assigned"`
	VehicleID string `json:"vehicleId,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// ReassignResult reports breakdown recovery per detached task.
type ReassignResult struct {
	VehicleID string            `json:"vehicleId"`
	Rebound   map[string]string `json:"rebound"`  // taskID -> new vehicleID
	Stranded  []string          `json:"stranded"` // taskIDs left pending
	AllBound  bool              `json:"allBound"`
}

// Subscription registers a webhook receiver for fleet events.
type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}

// SubscriptionIn is the create-subscription request body.
type SubscriptionIn struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}
