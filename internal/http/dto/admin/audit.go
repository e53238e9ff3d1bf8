// Package admin contiene los DTOs de administración.
package admin

import "time"

// AuditEntry es una entrada del log de auditoría.
type AuditEntry struct {
	ID        string         `json:"id"`
	EventType string         `json:"event_type"`
	AccountID *string        `json:"account_id,omitempty"`
	IP        string         `json:"ip,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Pagination describe la página devuelta.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// AuditListResponse es la respuesta de GET /admin/security-audit.
type AuditListResponse struct {
	Entries    []AuditEntry `json:"entries"`
	Pagination Pagination   `json:"pagination"`
}
