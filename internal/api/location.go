package api

import (
	"sort"
	"sync"
)

// LatestLocation holds the latest reported position for a vehicle.
type LatestLocation struct {
	VehicleID string  `json:"vehicleId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	TS        string  `json:"ts"`
}

// LocationCache stores latest vehicle positions for map consumers. It
// is fed by both the location endpoint and the telemetry WebSocket.
type LocationCache struct {
	mu sync.Mutex
	m  map[string]LatestLocation
}

func NewLocationCache() *LocationCache { return &LocationCache{m: map[string]LatestLocation{}} }

// Upsert stores or updates the latest position for a vehicle.
func (c *LocationCache) Upsert(vehicleID string, x, y float64, ts string) {
	if vehicleID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[vehicleID] = LatestLocation{VehicleID: vehicleID, X: x, Y: y, TS: ts}
}

// Drop removes a vehicle from the cache (breakdown or retirement).
func (c *LocationCache) Drop(vehicleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, vehicleID)
}

// List returns all cached positions ordered by vehicle id.
func (c *LocationCache) List() []LatestLocation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LatestLocation, 0, len(c.m))
	for _, v := range c.m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out
}
