package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fleetnav/internal/buildinfo"
	"fleetnav/internal/geo"
	"fleetnav/internal/metrics"
	"fleetnav/internal/model"
	"fleetnav/internal/opt"
)

// VehiclesHandler handles POST/GET /v1/vehicles
func (s *Server) VehiclesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		pr := s.getPrincipal(r)
		if !pr.CanDispatch() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
			return
		}
		var in model.VehicleIn
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateVehicleIn(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid vehicle", err.Error(), r.URL.Path)
			return
		}
		v, err := s.Engine.Registry().AddVehicle(in)
		if err != nil {
			writeEngineErr(w, err, r.URL.Path)
			return
		}
		s.Locations.Upsert(v.ID, v.Location.X, v.Location.Y, time.Now().UTC().Format(time.RFC3339))
		s.journal(r.Context())
		writeJSON(w, http.StatusCreated, v)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"items": s.Engine.Registry().ListVehicles()})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// VehicleByIDHandler handles GET /v1/vehicles/{id}, GET .../route,
// POST .../location and POST .../breakdown.
func (s *Server) VehicleByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/vehicles/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]

	if len(parts) > 1 {
		switch parts[1] {
		case "location":
			s.vehicleLocation(w, r, id)
		case "breakdown":
			s.vehicleBreakdown(w, r, id)
		case "route":
			s.vehicleRoute(w, r, id)
		default:
			writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		}
		return
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	v, err := s.Engine.Registry().VehicleSnapshot(id)
	if err != nil {
		writeEngineErr(w, err, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) vehicleLocation(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr := s.getPrincipal(r)
	if pr.Role == "driver" && pr.VehicleID != "" && pr.VehicleID != id {
		writeProblem(w, http.StatusForbidden, "Forbidden", "drivers may only report their own vehicle", r.URL.Path)
		return
	}
	var in model.AdvanceIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	completed, err := s.Engine.Advance(id, in.Location)
	if err != nil {
		writeEngineErr(w, err, r.URL.Path)
		return
	}
	ts := time.Now().UTC().Format(time.RFC3339)
	s.Locations.Upsert(id, in.Location.X, in.Location.Y, ts)
	s.emit(r.Context(), "vehicle.moved", map[string]any{"vehicleId": id, "x": in.Location.X, "y": in.Location.Y, "ts": ts})
	for _, tid := range completed {
		metrics.TasksCompleted.Inc()
		s.emit(r.Context(), "task.completed", map[string]any{"taskId": tid, "vehicleId": id, "ts": ts})
	}
	s.journal(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"vehicleId": id, "completed": completed})
}

func (s *Server) vehicleBreakdown(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr := s.getPrincipal(r)
	if !pr.CanDispatch() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	res, err := s.Engine.ReassignOnBreakdown(id)
	if err != nil {
		writeEngineErr(w, err, r.URL.Path)
		return
	}
	s.Locations.Drop(id)
	ts := time.Now().UTC().Format(time.RFC3339)
	s.emit(r.Context(), "vehicle.breakdown", map[string]any{"vehicleId": id, "stranded": res.Stranded, "ts": ts})
	for tid, vid := range res.Rebound {
		metrics.Reassignments.WithLabelValues("rebound").Inc()
		s.emit(r.Context(), "task.reassigned", map[string]any{"taskId": tid, "vehicleId": vid, "from": id, "ts": ts})
	}
	for range res.Stranded {
		metrics.Reassignments.WithLabelValues("stranded").Inc()
	}
	s.journal(r.Context())
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) vehicleRoute(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	v, err := s.Engine.Registry().VehicleSnapshot(id)
	if err != nil {
		writeEngineErr(w, err, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"vehicleId": v.ID,
		"route":     v.Route,
		"length":    geo.RouteLength(v.Route, true),
	})
}

// TasksHandler handles POST/GET /v1/tasks
func (s *Server) TasksHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		pr := s.getPrincipal(r)
		if !pr.CanDispatch() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
			return
		}
		var in model.TaskIn
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateTaskIn(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid task", err.Error(), r.URL.Path)
			return
		}
		t, err := s.Engine.Registry().AddTask(in)
		if err != nil {
			writeEngineErr(w, err, r.URL.Path)
			return
		}
		s.journal(r.Context())
		writeJSON(w, http.StatusCreated, t)
	case http.MethodGet:
		status := r.URL.Query().Get("status")
		items := s.Engine.Registry().ListTasks()
		if status != "" {
			filtered := items[:0]
			for _, t := range items {
				if string(t.Status) == status {
					filtered = append(filtered, t)
				}
			}
			items = filtered
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// TaskByIDHandler handles GET /v1/tasks/{id} and POST /v1/tasks/{id}/assign.
// assign accepts ?gated=1 to apply the route-length acceptance gate.
func (s *Server) TaskByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/tasks/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]

	if len(parts) > 1 && parts[1] == "assign" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		pr := s.getPrincipal(r)
		if !pr.CanDispatch() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
			return
		}
		gated := r.URL.Query().Get("gated") == "1" || strings.EqualFold(r.URL.Query().Get("gated"), "true")
		var res model.AssignResult
		var err error
		if gated {
			res, err = s.Engine.AssignGated(id)
		} else {
			res, err = s.Engine.Assign(id)
		}
		if err != nil {
			writeEngineErr(w, err, r.URL.Path)
			return
		}
		if res.Assigned {
			metrics.Assignments.WithLabelValues("assigned").Inc()
			s.emit(r.Context(), "task.assigned", map[string]any{"taskId": id, "vehicleId": res.VehicleID, "ts": time.Now().UTC().Format(time.RFC3339)})
			s.journal(r.Context())
		} else {
			metrics.Assignments.WithLabelValues("rejected").Inc()
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	t, err := s.Engine.Registry().TaskSnapshot(id)
	if err != nil {
		writeEngineErr(w, err, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// OptimizeHandler handles POST /v1/optimize: standalone stop-list
// optimization detached from any vehicle.
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var in model.OptimizeIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateOptimizeIn(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
		return
	}
	o, err := opt.New(s.OptCfg)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Optimizer init failed", err.Error(), r.URL.Path)
		return
	}
	start := time.Now()
	route, err := o.Optimize(in.Stops, in.ReturnToDepot)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Optimize failed", err.Error(), r.URL.Path)
		return
	}
	metrics.OptimizeDuration.Observe(time.Since(start).Seconds())
	metrics.OptimizeStops.Observe(float64(len(in.Stops)))
	writeJSON(w, http.StatusOK, map[string]any{
		"route":  route,
		"length": geo.RouteLength(route, in.ReturnToDepot),
	})
}

// FleetEventsStreamHandler handles GET /v1/fleet/events/stream (SSE).
// ?vehicleId= narrows the stream to one vehicle's events.
func (s *Server) FleetEventsStreamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	topic := "fleet"
	if vid := r.URL.Query().Get("vehicleId"); vid != "" {
		topic = vid
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(topic)
	defer s.Broker.Unsubscribe(topic, ch)

	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"ts\":%q}\n\n", time.Now().Format(time.RFC3339))
		flusher.Flush()
	}
	heartbeat()

	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt := <-ch:
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			heartbeat()
		}
	}
}

// FleetLocationsHandler handles GET /v1/fleet/locations
func (s *Server) FleetLocationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": s.Locations.List()})
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions (admin)
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var in model.SubscriptionIn
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if in.URL == "" || len(in.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events required", r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), in)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		items, err := s.Store.ListSubscriptions(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id} (admin)
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
		writeEngineErr(w, err, r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check DB connectivity when using the Postgres store
	type pinger interface{ Ping(ctx context.Context) error }
	if pg, ok := s.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.Info())
}
