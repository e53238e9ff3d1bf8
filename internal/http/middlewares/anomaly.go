package middlewares

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/lexguard/internal/security"
	"github.com/dropDatabas3/lexguard/internal/security/anomaly"
)

// AnomalyDetector retorna anomalías informativas; nunca falla.
type AnomalyDetector interface {
	Detect(ctx context.Context, accountID, ip, userAgent string, now time.Time) []anomaly.Anomaly
}

// AnomalyConfig configura WithAnomalyDetection.
type AnomalyConfig struct {
	Detector AnomalyDetector
	Recorder *anomaly.Recorder
	Clock    security.Clock
}

// WithAnomalyDetection corre el detector en requests autenticados y adjunta
// el resultado al contexto. Nunca bloquea.
func WithAnomalyDetection(cfg AnomalyConfig) Middleware {
	clock := security.OrSystem(cfg.Clock)
	return func(next http.Handler) http.Handler {
		if cfg.Detector == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID := GetAccountID(r.Context())
			if accountID == "" {
				next.ServeHTTP(w, r)
				return
			}
			r, st := withState(r)
			found := cfg.Detector.Detect(r.Context(), accountID, clientIPOf(r), r.UserAgent(), clock.Now())
			if len(found) > 0 {
				st.addAnomalies(found...)
				cfg.Recorder.Record(r.Context(), accountID, found)
			}
			next.ServeHTTP(w, r)
		})
	}
}
