package repository

import (
	"context"
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Account es la identidad que consume el núcleo de seguridad.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string

	TwoFactorEnabled bool
	// TwoFactorSecret es el secreto TOTP sellado; nil si no hay aprovisionamiento.
	TwoFactorSecret *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPendingSecret reporta si hay un secreto aprovisionado sin confirmar.
func (a *Account) HasPendingSecret() bool {
	return a != nil && !a.TwoFactorEnabled && a.TwoFactorSecret != nil && *a.TwoFactorSecret != ""
}

// AccountRepository define las operaciones sobre cuentas.
// El alta y la edición de perfiles son responsabilidad de otros servicios;
// acá solo se mutan los campos de 2FA.
type AccountRepository interface {
	// GetByID retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, id string) (*Account, error)

	// GetByEmail busca por email normalizado (lowercase). Retorna ErrNotFound si no existe.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// Create inserta una cuenta. Retorna ErrConflict si el email ya existe.
	Create(ctx context.Context, a Account) error

	// SetTwoFactorSecret guarda (o limpia con nil) el secreto sellado.
	SetTwoFactorSecret(ctx context.Context, id string, sealed *string) error

	// SetTwoFactorEnabled cambia el flag de 2FA.
	SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error

	// ClearTwoFactor limpia secreto y flag en una sola escritura.
	ClearTwoFactor(ctx context.Context, id string) error
}
