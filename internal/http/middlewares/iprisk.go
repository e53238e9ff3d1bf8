package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/dropDatabas3/lexguard/internal/audit"
	httperrors "github.com/dropDatabas3/lexguard/internal/http/errors"
	"github.com/dropDatabas3/lexguard/internal/metrics"
	"github.com/dropDatabas3/lexguard/internal/observability/logger"
	"github.com/dropDatabas3/lexguard/internal/security/iprisk"
)

// RiskEvaluator evalúa la IP del request. Nunca falla: degrada a permitir.
type RiskEvaluator interface {
	Evaluate(ctx context.Context, ip, accountID string) iprisk.Assessment
}

// WithIPRisk rechaza con 403 las IPs bloqueadas y deja la evaluación en el
// contexto para las capas siguientes.
func WithIPRisk(ev RiskEvaluator, a AuditLogger, m *metrics.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		if ev == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, st := withState(r)
			ip := clientIPOf(r)
			as := ev.Evaluate(r.Context(), ip, GetAccountID(r.Context()))
			st.setAssessment(as)

			if !as.Allowed {
				reason, _, _ := strings.Cut(as.Reason, ":")
				logger.From(r.Context()).Warn("request blocked by ip risk",
					logger.Risk(string(as.Risk)), logger.String("reason", as.Reason))
				auditEvent(a, r, audit.EventIPBlocked, map[string]any{
					"reason":          as.Reason,
					"risk":            string(as.Risk),
					"failed_attempts": as.FailedAttempts,
					"path":            r.URL.Path,
				})
				m.Blocked(reason)
				httperrors.WriteError(w, httperrors.ErrIPBlocked)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
