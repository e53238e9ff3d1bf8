package middlewares

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	httperrors "github.com/dropDatabas3/lexguard/internal/http/errors"
	"github.com/dropDatabas3/lexguard/internal/metrics"
	"github.com/dropDatabas3/lexguard/internal/observability/logger"
	"github.com/dropDatabas3/lexguard/internal/rate"
)

// RateKeyFunc genera la clave de rate limiting.
type RateKeyFunc func(r *http.Request) string

// IPRateKey limita por IP de cliente.
func IPRateKey(r *http.Request) string { return clientIPOf(r) }

// RateLimitConfig configura el límite global.
type RateLimitConfig struct {
	Limiter rate.Limiter
	KeyFunc RateKeyFunc
	// Exempt son paths exactos sin límite (health, métricas).
	Exempt  []string
	Metrics *metrics.Metrics
}

// WithRateLimit aplica el límite global. Ante error del limiter deja pasar.
func WithRateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPRateKey
	}
	exempt := newPathSet(cfg.Exempt)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt.has(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			res, err := cfg.Limiter.Allow(r.Context(), cfg.KeyFunc(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable, allowing request",
					logger.Policy("global"), logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			writeRateHeaders(w, res)
			if !res.Allowed {
				cfg.Metrics.RateLimited("global")
				httperrors.WriteError(w, httperrors.ErrRateLimitExceeded.WithRetryAfter(res.RetryAfter))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithEndpointPolicies aplica las políticas por prefijo de ruta (auth,
// password reset) con clave por IP.
func WithEndpointPolicies(ps *rate.PolicySet, m *metrics.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		if ps == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, res, ok, err := ps.Check(r.Context(), r.URL.Path, clientIPOf(r))
			if err != nil {
				logger.From(r.Context()).Warn("endpoint rate limiter unavailable, allowing request",
					logger.Policy(p.Name), logger.Err(err))
			}
			if !ok {
				writeRateHeaders(w, res)
				m.RateLimited(p.Name)
				httperrors.WriteError(w, httperrors.ErrRateLimitExceeded.WithRetryAfter(res.RetryAfter).WithDetail("policy "+p.Name))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeRateHeaders(w http.ResponseWriter, res rate.Result) {
	h := w.Header()
	if res.Limit > 0 {
		h.Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
	}
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
	if res.WindowTTL > 0 {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(res.WindowTTL).Unix(), 10))
	}
}

// SlowDownConfig configura el retardo progresivo.
type SlowDownConfig struct {
	SlowDown       *rate.SlowDown
	KeyFunc        RateKeyFunc
	Exempt         []string
	ExemptPrefixes []string
}

// DefaultSlowDownExemptPrefixes son recursos estáticos que nunca se demoran.
func DefaultSlowDownExemptPrefixes() []string {
	return []string{"/static/", "/assets/", "/favicon.ico"}
}

// WithSlowDown demora los requests por encima del umbral. Si el cliente
// cancela durante la espera, el request no llega al handler.
func WithSlowDown(cfg SlowDownConfig) Middleware {
	if cfg.SlowDown == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPRateKey
	}
	exempt := newPathSet(cfg.Exempt)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt.has(r.URL.Path) || hasAnyPrefix(r.URL.Path, cfg.ExemptPrefixes) {
				next.ServeHTTP(w, r)
				return
			}
			log := logger.From(r.Context())
			d, hits, err := cfg.SlowDown.Delay(r.Context(), cfg.KeyFunc(r))
			if err != nil {
				log.Warn("slow-down counter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if d > 0 {
				log.Debug("delaying request", logger.Int("hits", int(hits)), logger.DurationMs(d.Milliseconds()))
				if err := rate.Wait(r.Context(), d); err != nil {
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasAnyPrefix(p string, prefixes []string) bool {
	for _, pre := range prefixes {
		if strings.HasPrefix(p, pre) {
			return true
		}
	}
	return false
}
