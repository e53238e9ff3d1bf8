package repository

import (
	"context"
	"time"
)

// BlacklistedIP es administrada por un flujo externo; acá es solo lectura.
type BlacklistedIP struct {
	IP        string
	Reason    string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// Active reporta si la entrada sigue vigente en now.
func (b BlacklistedIP) Active(now time.Time) bool {
	return b.ExpiresAt == nil || now.Before(*b.ExpiresAt)
}

// BlacklistRepository lee la lista de IPs bloqueadas.
type BlacklistRepository interface {
	// ListActive retorna las entradas sin expirar a la fecha now.
	ListActive(ctx context.Context, now time.Time) ([]BlacklistedIP, error)

	// Add agrega o reemplaza una entrada. Lo usa el flujo de administración y los tests.
	Add(ctx context.Context, b BlacklistedIP) error
}
