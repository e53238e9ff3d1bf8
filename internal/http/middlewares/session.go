package middlewares

import (
	"context"
	"errors"
	"net/http"

	"github.com/dropDatabas3/lexguard/internal/audit"
	httperrors "github.com/dropDatabas3/lexguard/internal/http/errors"
	"github.com/dropDatabas3/lexguard/internal/metrics"
	"github.com/dropDatabas3/lexguard/internal/observability/logger"
	"github.com/dropDatabas3/lexguard/internal/security/anomaly"
	"github.com/dropDatabas3/lexguard/internal/session"
)

// SessionStore es el subconjunto de session.Store que usan los middlewares.
type SessionStore interface {
	IDFromRequest(r *http.Request) string
	Get(ctx context.Context, id string) (*session.Session, error)
	Save(ctx context.Context, s *session.Session) error
	Destroy(ctx context.Context, id string) error
	DeletionCookie() *http.Cookie
}

// IntegrityValidator valida una sesión contra el request.
type IntegrityValidator interface {
	Validate(s *session.Session, userAgent, ip string) session.Verdict
}

// WithSession carga la sesión de la cookie, si existe. No rechaza: las rutas
// protegidas usan RequireAuth.
func WithSession(store SessionStore) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := store.IDFromRequest(r)
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}
			r, st := withState(r)
			s, err := store.Get(r.Context(), id)
			switch {
			case err == nil:
				st.setSession(s)
			case errors.Is(err, session.ErrNotFound):
			default:
				logger.From(r.Context()).Warn("session lookup failed", logger.SessionID(id), logger.Err(err))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthConfig agrupa las dependencias de RequireAuth.
type AuthConfig struct {
	Store     SessionStore
	Validator IntegrityValidator
	Audit     AuditLogger
	Metrics   *metrics.Metrics
}

// RequireAuth exige una sesión autenticada e íntegra. Una sesión inválida se
// destruye y la cookie se borra. Un cambio de IP solo se registra.
func RequireAuth(cfg AuthConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, st := withState(r)
			s := GetSession(r.Context())
			if s == nil || !s.Authenticated {
				httperrors.WriteError(w, httperrors.ErrUnauthorized)
				return
			}

			ip := clientIPOf(r)
			verdict := cfg.Validator.Validate(s, r.UserAgent(), ip)
			log := logger.From(r.Context()).With(logger.AccountID(s.AccountID), logger.SessionID(s.ID))

			if !verdict.Valid {
				if err := cfg.Store.Destroy(r.Context(), s.ID); err != nil {
					log.Error("failed to destroy invalid session", logger.Err(err))
				}
				http.SetCookie(w, cfg.Store.DeletionCookie())
				auditEvent(cfg.Audit, r, audit.EventSessionInvalidated, map[string]any{"reason": verdict.Reason})
				st.setSession(nil)
				cfg.Metrics.Blocked("session_" + verdict.Reason)
				log.Warn("session rejected", logger.String("reason", verdict.Reason))
				httperrors.WriteError(w, httperrors.ErrSessionInvalid)
				return
			}

			if verdict.IPChanged {
				prev := s.IP
				auditEvent(cfg.Audit, r, audit.EventSessionIPChanged, map[string]any{"previous_ip": prev, "ip": ip})
				st.addAnomalies(anomaly.Anomaly{
					Type:     anomaly.TypeSessionIPChange,
					Severity: anomaly.SeverityLow,
					Details:  map[string]any{"previous_ip": prev, "ip": ip},
				})
				cfg.Metrics.Anomaly(anomaly.TypeSessionIPChange)
				s.IP = ip
				if err := cfg.Store.Save(r.Context(), s); err != nil {
					log.Warn("failed to record session ip change", logger.Err(err))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole exige que la sesión tenga alguno de los roles dados.
func RequireRole(roles ...string) Middleware {
	allowed := newPathSet(roles)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := GetSession(r.Context())
			if s == nil || !s.Authenticated {
				httperrors.WriteError(w, httperrors.ErrUnauthorized)
				return
			}
			if !allowed.has(s.Role) {
				httperrors.WriteError(w, httperrors.ErrForbidden.WithDetail("insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
