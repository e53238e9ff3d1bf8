// Package router arma el router chi con la cadena global de middlewares y
// las rutas de la API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	adminctrl "github.com/dropDatabas3/lexguard/internal/http/controllers/admin"
	authctrl "github.com/dropDatabas3/lexguard/internal/http/controllers/auth"
	healthctrl "github.com/dropDatabas3/lexguard/internal/http/controllers/health"
	secctrl "github.com/dropDatabas3/lexguard/internal/http/controllers/security"
	httperrors "github.com/dropDatabas3/lexguard/internal/http/errors"
	mw "github.com/dropDatabas3/lexguard/internal/http/middlewares"
	"github.com/dropDatabas3/lexguard/internal/metrics"
	"github.com/dropDatabas3/lexguard/internal/rate"
	"github.com/dropDatabas3/lexguard/internal/security"
	"github.com/dropDatabas3/lexguard/internal/security/anomaly"
	"github.com/dropDatabas3/lexguard/internal/security/csrf"
)

// CORSConfig controla los orígenes del frontend.
type CORSConfig struct {
	AllowedOrigins []string
	MaxAge         int
}

// Deps contiene todo lo que el router recibe una sola vez al construirse.
type Deps struct {
	Auth     *authctrl.Controllers
	Security *secctrl.Controllers
	Admin    *adminctrl.Controllers
	Health   *healthctrl.HealthController
	Metrics  *metrics.Metrics

	Sessions   mw.SessionStore
	Integrity  mw.IntegrityValidator
	CSRF       mw.TokenValidator
	CSRFPolicy csrf.Policy
	Audit      mw.AuditLogger

	// Limiter es el límite global por IP; nil lo desactiva.
	Limiter  rate.Limiter
	Policies *rate.PolicySet
	SlowDown *rate.SlowDown

	IPRisk          mw.RiskEvaluator
	Anomaly         mw.AnomalyDetector
	AnomalyRecorder *anomaly.Recorder
	Clock           security.Clock

	TrustProxy bool
	MaxBody    int64
	CORS       CORSConfig
}

// infraPaths quedan fuera de rate limit y slow-down.
var infraPaths = []string{"/healthz", "/readyz", "/metrics"}

// New construye el handler raíz.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithClientIP(d.TrustProxy),
		mw.WithLogging(),
		d.Metrics.Middleware,
		corsHandler(d.CORS),
		mw.WithAPIErrorAudit(d.Audit),
		mw.WithSecurityHeaders(),
		mw.WithSanitize(d.MaxBody),
		mw.WithRateLimit(mw.RateLimitConfig{
			Limiter: d.Limiter,
			KeyFunc: mw.IPRateKey,
			Exempt:  infraPaths,
			Metrics: d.Metrics,
		}),
		mw.WithEndpointPolicies(d.Policies, d.Metrics),
		mw.WithSlowDown(mw.SlowDownConfig{
			SlowDown:       d.SlowDown,
			KeyFunc:        mw.IPRateKey,
			Exempt:         infraPaths,
			ExemptPrefixes: mw.DefaultSlowDownExemptPrefixes(),
		}),
		mw.WithIPRisk(d.IPRisk, d.Audit, d.Metrics),
		mw.WithSession(d.Sessions),
	)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	requireAuth := mw.RequireAuth(mw.AuthConfig{
		Store:     d.Sessions,
		Validator: d.Integrity,
		Audit:     d.Audit,
		Metrics:   d.Metrics,
	})
	requireCSRF := mw.RequireCSRF(mw.CSRFConfig{
		Validator: d.CSRF,
		Policy:    d.CSRFPolicy,
		Audit:     d.Audit,
		Metrics:   d.Metrics,
		MaxBody:   d.MaxBody,
	})
	// la detección corre sólo sobre sesiones que pasaron la validación de integridad
	detectAnomalies := mw.WithAnomalyDetection(mw.AnomalyConfig{
		Detector: d.Anomaly,
		Recorder: d.AnomalyRecorder,
		Clock:    d.Clock,
	})

	// ─── Infra ───
	if d.Health != nil {
		r.Get("/healthz", d.Health.Healthz)
		r.Get("/readyz", d.Health.Readyz)
	}
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	// ─── Login (sin CSRF: todavía no hay sesión) ───
	r.Group(func(r chi.Router) {
		r.Use(mw.WithNoStore())
		r.Post("/login", d.Auth.Login.Login)
		r.Post("/2fa/verify", d.Auth.Login.VerifyMFA)
	})

	// ─── Sesión autenticada ───
	r.Group(func(r chi.Router) {
		r.Use(requireAuth, detectAnomalies, requireCSRF, mw.WithNoStore())
		r.Post("/logout", d.Auth.Logout.Logout)
		r.Get("/csrf-token", d.Security.CSRF.GetToken)
		r.Post("/2fa/setup", d.Security.TwoFactor.Setup)
		r.Post("/2fa/enable", d.Security.TwoFactor.Enable)
		r.Post("/2fa/disable", d.Security.TwoFactor.Disable)
	})

	// ─── Admin ───
	r.Group(func(r chi.Router) {
		r.Use(requireAuth, detectAnomalies, mw.RequireRole("admin"), mw.WithNoStore())
		r.Get("/admin/security-audit", d.Admin.Audit.List)
	})

	return r
}

func corsHandler(c CORSConfig) func(http.Handler) http.Handler {
	if len(c.AllowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	maxAge := c.MaxAge
	if maxAge <= 0 {
		maxAge = 300
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   c.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", mw.CSRFHeader, "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           maxAge,
	})
}
