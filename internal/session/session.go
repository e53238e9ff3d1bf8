// Package session modela la sesión de navegador, su almacenamiento en cache y
// la validación de integridad que se aplica en cada request autenticado.
package session

import "time"

// Session es el estado server-side referenciado por la cookie "sid".
type Session struct {
	ID            string    `json:"-"`
	AccountID     string    `json:"account_id"`
	Role          string    `json:"role"`
	CreatedAt     time.Time `json:"created_at"`
	UserAgent     string    `json:"user_agent"`
	IP            string    `json:"ip"`
	Fingerprint   string    `json:"fingerprint"`
	CSRFToken     string    `json:"csrf_token"`
	Authenticated bool      `json:"authenticated"`
}
