// Package auth implementa login en dos fases y logout sobre sesiones de
// navegador.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/lexguard/internal/audit"
	"github.com/dropDatabas3/lexguard/internal/domain/repository"
	jwtx "github.com/dropDatabas3/lexguard/internal/jwt"
	"github.com/dropDatabas3/lexguard/internal/security/anomaly"
	"github.com/dropDatabas3/lexguard/internal/security/totp"
	"github.com/dropDatabas3/lexguard/internal/session"
)

// Errores de servicio. El controller los traduce a AppError; cualquier falla
// de autenticación se expone con el mismo mensaje.
var (
	ErrMissingFields      = errors.New("auth: missing fields")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

// PasswordChecker verifica una contraseña contra un hash.
type PasswordChecker interface {
	Check(ctx context.Context, hash, plain string) bool
}

// SecondFactor decide la segunda fase.
type SecondFactor interface {
	VerifyLogin(ctx context.Context, acc *repository.Account, code string) totp.Verification
}

// ChallengeIssuer emite y valida el desafío 2FA.
type ChallengeIssuer interface {
	IssueMFA(accountID string) (string, *jwtx.MFAClaims, error)
	ParseMFA(token string) (*jwtx.MFAClaims, error)
}

// SessionStore crea y destruye sesiones.
type SessionStore interface {
	Create(ctx context.Context, s *session.Session) error
	Destroy(ctx context.Context, id string) error
}

// TokenGenerator emite tokens CSRF.
type TokenGenerator interface {
	GenerateToken() (string, error)
}

// AnomalyDetector se consulta antes de registrar el login.
type AnomalyDetector interface {
	Detect(ctx context.Context, accountID, ip, userAgent string, now time.Time) []anomaly.Anomaly
}

// AuditLogger registra eventos de login.
type AuditLogger interface {
	Log(ctx context.Context, eventType string, details map[string]any, accountID string, rc *audit.RequestContext)
}

// ClientInfo es el contexto del dispositivo que inicia sesión.
type ClientInfo struct {
	IP          string
	UserAgent   string
	Fingerprint string
	// PreviousSessionID se destruye al autenticar para evitar fijación.
	PreviousSessionID string
}

// LoginInput son las credenciales de cualquiera de las dos fases.
type LoginInput struct {
	Email    string
	Password string
	Code     string
	MFAToken string
}

// LoginResult es el resultado de Login. Si MFARequired, Session es nil.
type LoginResult struct {
	Session      *session.Session
	Method       string
	MFARequired  bool
	MFAToken     string
	MFAExpiresIn time.Duration
	Anomalies    []anomaly.Anomaly
}

// LoginService autentica cuentas.
type LoginService interface {
	Login(ctx context.Context, in LoginInput, client ClientInfo) (*LoginResult, error)
}

// LogoutService cierra sesiones.
type LogoutService interface {
	Logout(ctx context.Context, s *session.Session) error
}
