package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"fleetnav/internal/geo"
	"fleetnav/internal/metrics"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// telemetryFrame is one position report pushed by a driver client.
type telemetryFrame struct {
	VehicleID string  `json:"vehicleId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

type telemetryAck struct {
	Type      string   `json:"type"`
	VehicleID string   `json:"vehicleId,omitempty"`
	Completed []string `json:"completed,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Frames beyond the per-connection budget are dropped, not queued;
// only the freshest position matters.
const (
	telemetryRate  = 10 // frames/sec sustained
	telemetryBurst = 20
)

// TelemetryWSHandler handles /v1/telemetry/ws: drivers push location
// frames which drive task completion exactly like the REST location
// endpoint.
func (s *Server) TelemetryWSHandler(w http.ResponseWriter, r *http.Request) {
	pr := s.getPrincipal(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	limiter := rate.NewLimiter(rate.Limit(telemetryRate), telemetryBurst)

	for {
		var f telemetryFrame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		if !limiter.Allow() {
			continue
		}
		if f.VehicleID == "" {
			_ = conn.WriteJSON(telemetryAck{Type: "error", Error: "vehicleId required"})
			continue
		}
		if pr.Role == "driver" && pr.VehicleID != "" && pr.VehicleID != f.VehicleID {
			_ = conn.WriteJSON(telemetryAck{Type: "error", VehicleID: f.VehicleID, Error: "not your vehicle"})
			continue
		}
		completed, err := s.Engine.Advance(f.VehicleID, geo.Point{X: f.X, Y: f.Y})
		if err != nil {
			_ = conn.WriteJSON(telemetryAck{Type: "error", VehicleID: f.VehicleID, Error: err.Error()})
			continue
		}
		ts := time.Now().UTC().Format(time.RFC3339)
		s.Locations.Upsert(f.VehicleID, f.X, f.Y, ts)
		s.emit(r.Context(), "vehicle.moved", map[string]any{"vehicleId": f.VehicleID, "x": f.X, "y": f.Y, "ts": ts})
		for _, tid := range completed {
			metrics.TasksCompleted.Inc()
			s.emit(r.Context(), "task.completed", map[string]any{"taskId": tid, "vehicleId": f.VehicleID, "ts": ts})
		}
		if len(completed) > 0 {
			s.journal(r.Context())
		}
		_ = conn.WriteJSON(telemetryAck{Type: "ack", VehicleID: f.VehicleID, Completed: completed})
	}
}
