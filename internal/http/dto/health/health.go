// Package health contiene DTOs para endpoints de health check.
package health

import "time"

// ComponentStatus es el estado de una dependencia.
type ComponentStatus struct {
	Status  string `json:"status"` // "ok" | "error"
	Message string `json:"message,omitempty"`
}

// HealthResponse es la respuesta de /healthz y /readyz.
type HealthResponse struct {
	Status     string                     `json:"status"` // "ok" | "ready" | "unavailable"
	Components map[string]ComponentStatus `json:"components,omitempty"`
	Version    string                     `json:"version,omitempty"`
	Timestamp  time.Time                  `json:"timestamp"`
}
