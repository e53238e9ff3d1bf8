package repository

import (
	"context"
	"time"
)

// AuditEntry es un registro inmutable de un evento de seguridad.
type AuditEntry struct {
	ID        string
	EventType string
	Details   map[string]any
	AccountID *string
	IP        string
	UserAgent string
	Timestamp time.Time
}

// AuditFilter filtra y pagina la lectura del log de auditoría.
type AuditFilter struct {
	EventType string
	Limit     int
	Offset    int
}

// AuditRepository es append-only: no hay update ni delete.
type AuditRepository interface {
	// Append persiste una entrada.
	Append(ctx context.Context, e AuditEntry) error

	// List retorna entradas (más nuevas primero) y el total que matchea el filtro.
	List(ctx context.Context, f AuditFilter) ([]AuditEntry, int, error)

	// CountByIP cuenta entradas de eventType desde una IP con Timestamp >= since.
	CountByIP(ctx context.Context, eventType, ip string, since time.Time) (int, error)

	// RecentForAccount retorna las últimas n entradas de la cuenta.
	RecentForAccount(ctx context.Context, accountID string, n int) ([]AuditEntry, error)
}
