// Package bootstrap siembra la cuenta administradora inicial.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dropDatabas3/lexguard/internal/domain/repository"
	"github.com/dropDatabas3/lexguard/internal/observability/logger"
	"github.com/dropDatabas3/lexguard/internal/security/password"
	"github.com/google/uuid"
)

// MinPasswordLen es el largo mínimo aceptado para la contraseña sembrada.
const MinPasswordLen = 10

var (
	ErrInvalidEmail = errors.New("bootstrap: invalid admin email")
	ErrWeakPassword = fmt.Errorf("bootstrap: admin password must be at least %d characters", MinPasswordLen)
)

// AdminSeed describe la cuenta a crear.
type AdminSeed struct {
	Email    string
	Password string
	// Params de argon2id; cero usa password.Default.
	Params password.Params
}

// SeedAdmin crea la cuenta admin si el email no existe. Retorna el id de la
// cuenta y si fue creada en esta llamada.
func SeedAdmin(ctx context.Context, accounts repository.AccountRepository, seed AdminSeed) (string, bool, error) {
	log := logger.From(ctx).With(logger.Layer("bootstrap"), logger.Op("SeedAdmin"))

	email := strings.ToLower(strings.TrimSpace(seed.Email))
	if email == "" || !strings.Contains(email, "@") {
		return "", false, ErrInvalidEmail
	}
	if len(seed.Password) < MinPasswordLen {
		return "", false, ErrWeakPassword
	}

	existing, err := accounts.GetByEmail(ctx, email)
	switch {
	case err == nil:
		log.Info("admin account already present, skipping seed", logger.AccountID(existing.ID))
		return existing.ID, false, nil
	case !repository.IsNotFound(err):
		return "", false, fmt.Errorf("check existing admin: %w", err)
	}

	params := seed.Params
	if params == (password.Params{}) {
		params = password.Default
	}
	hash, err := password.Hash(params, seed.Password)
	if err != nil {
		return "", false, fmt.Errorf("hash admin password: %w", err)
	}

	id := uuid.NewString()
	if err := accounts.Create(ctx, repository.Account{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		Role:         repository.RoleAdmin,
	}); err != nil {
		if repository.IsConflict(err) {
			// otra instancia la creó en paralelo
			acc, gerr := accounts.GetByEmail(ctx, email)
			if gerr == nil {
				return acc.ID, false, nil
			}
		}
		return "", false, fmt.Errorf("create admin: %w", err)
	}

	log.Info("admin account seeded", logger.AccountID(id))
	return id, true, nil
}
