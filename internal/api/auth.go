// Package api implements HTTP handlers and helpers for the fleet
// dispatch service.
package api

import (
	"net/http"
	"strings"
)

type Principal struct {
	Role      string // admin, dispatcher, driver
	VehicleID string
}

// getPrincipal extracts the caller's role.
// - If Authorization: Bearer is present, uses the configured verifier
//   (dev or hmac mode).
// - Else falls back to headers for dev.
func (s *Server) getPrincipal(r *http.Request) Principal {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		if pr, err := s.Auth.Verify(tok); err == nil {
			return Principal{Role: pr.Role, VehicleID: pr.VehicleID}
		}
	}
	role := r.Header.Get("X-Role")
	vehicleID := r.Header.Get("X-Vehicle-Id")
	if role == "" {
		role = "admin"
	}
	return Principal{Role: strings.ToLower(role), VehicleID: vehicleID}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// CanDispatch reports whether the principal may mutate assignments.
func (p Principal) CanDispatch() bool { return p.Role == "admin" || p.Role == "dispatcher" }
