package middlewares

import (
	"context"
	"net/http"

	"github.com/dropDatabas3/lexguard/internal/audit"
)

// AuditLogger es el subconjunto de audit.Logger que usan los middlewares.
type AuditLogger interface {
	Log(ctx context.Context, eventType string, details map[string]any, accountID string, rc *audit.RequestContext)
}

// auditEvent registra un evento con la cuenta y el contexto del request.
func auditEvent(a AuditLogger, r *http.Request, eventType string, details map[string]any) {
	if a == nil {
		return
	}
	ctx := r.Context()
	rc := audit.RequestContextFrom(ctx)
	if rc == nil {
		rc = &audit.RequestContext{IP: clientIPOf(r), UserAgent: r.UserAgent()}
	}
	accountID := ""
	if s := GetSession(ctx); s != nil {
		accountID = s.AccountID
	}
	a.Log(ctx, eventType, details, accountID, rc)
}

// WithAPIErrorAudit registra API_ERROR para respuestas 401, 403 y 429.
func WithAPIErrorAudit(a AuditLogger) Middleware {
	return func(next http.Handler) http.Handler {
		if a == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, _ = withState(r)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			switch rec.status {
			case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
				auditEvent(a, r, audit.EventAPIError, map[string]any{
					"status":     rec.status,
					"method":     r.Method,
					"path":       r.URL.Path,
					"request_id": GetRequestID(r.Context()),
				})
			}
		})
	}
}
