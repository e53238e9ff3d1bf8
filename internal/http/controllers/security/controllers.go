// Package security contiene los controllers de 2FA y CSRF.
package security

import (
	"context"

	svc "github.com/dropDatabas3/lexguard/internal/http/services/security"
	"github.com/dropDatabas3/lexguard/internal/security/totp"
)

// TwoFactorService es el ciclo de vida del segundo factor.
type TwoFactorService interface {
	GenerateSecret(ctx context.Context, accountID string) (*totp.Provisioning, error)
	Enable(ctx context.Context, accountID, code string) ([]string, error)
	Disable(ctx context.Context, accountID, password, code string) error
}

// Controllers agrupa los controllers del dominio security.
type Controllers struct {
	TwoFactor *TwoFactorController
	CSRF      *CSRFController
}

func NewControllers(twoFactor TwoFactorService, csrf svc.CSRFService) *Controllers {
	return &Controllers{
		TwoFactor: NewTwoFactorController(twoFactor),
		CSRF:      NewCSRFController(csrf),
	}
}
