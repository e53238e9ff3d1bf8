// Package audit registra eventos de seguridad de forma asíncrona y best-effort.
//
// Log nunca bloquea ni falla el request: las entradas van a un buffer y un
// worker las persiste. Si el buffer está lleno o la escritura falla, la
// entrada se vuelca al logger de proceso ("audit.fallback").
package audit

import "context"

// Tipos de evento.
const (
	EventIPBlocked          = "IP_BLOCKED"
	EventAnomalyDetected    = "ANOMALY_DETECTED"
	EventTwoFactorEnabled   = "2FA_ENABLED"
	EventTwoFactorDisabled  = "2FA_DISABLED"
	EventAPIError           = "API_ERROR"
	EventLoginSuccess       = "LOGIN_SUCCESS"
	EventLoginFailed        = "LOGIN_FAILED"
	EventLogout             = "LOGOUT"
	EventSessionInvalidated = "SESSION_INVALIDATED"
	EventSessionIPChanged   = "SESSION_IP_CHANGED"
	EventCSRFViolation      = "CSRF_VIOLATION"
)

// RequestContext son los datos del request que acompañan a cada entrada.
type RequestContext struct {
	IP        string
	UserAgent string
}

type rcKey struct{}

// WithRequestContext adjunta los datos del request al contexto para que los
// services puedan auditar sin recibirlos por parámetro.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, rcKey{}, rc)
}

// RequestContextFrom retorna el RequestContext del contexto o nil.
func RequestContextFrom(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(rcKey{}).(RequestContext); ok {
		return &rc
	}
	return nil
}
