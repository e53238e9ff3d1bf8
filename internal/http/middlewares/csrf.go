package middlewares

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/dropDatabas3/lexguard/internal/audit"
	httperrors "github.com/dropDatabas3/lexguard/internal/http/errors"
	"github.com/dropDatabas3/lexguard/internal/metrics"
	"github.com/dropDatabas3/lexguard/internal/observability/logger"
	"github.com/dropDatabas3/lexguard/internal/security/csrf"
)

const (
	CSRFHeader    = "X-CSRF-Token"
	CSRFBodyField = "_csrf"
)

// TokenValidator compara el token de la sesión con el presentado.
type TokenValidator interface {
	Validate(sessionToken, requestToken string) bool
}

// CSRFConfig configura RequireCSRF.
type CSRFConfig struct {
	Validator TokenValidator
	Policy    csrf.Policy
	Audit     AuditLogger
	Metrics   *metrics.Metrics
	MaxBody   int64
}

// RequireCSRF valida el token sincronizado con la sesión en requests que
// cambian estado. El token llega en X-CSRF-Token o en el campo _csrf del body.
func RequireCSRF(cfg CSRFConfig) Middleware {
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = DefaultMaxBody
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Policy.Required(r) {
				next.ServeHTTP(w, r)
				return
			}
			sessionToken := ""
			if s := GetSession(r.Context()); s != nil {
				sessionToken = s.CSRFToken
			}
			requestToken := requestCSRFToken(r, cfg.MaxBody)

			if !cfg.Validator.Validate(sessionToken, requestToken) {
				logger.From(r.Context()).Warn("csrf validation failed",
					logger.Bool("has_session_token", sessionToken != ""),
					logger.Bool("has_request_token", requestToken != ""))
				auditEvent(cfg.Audit, r, audit.EventCSRFViolation, map[string]any{
					"method": r.Method,
					"path":   r.URL.Path,
				})
				cfg.Metrics.Blocked("csrf")
				httperrors.WriteError(w, httperrors.ErrCSRFInvalid)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestCSRFToken lee el token del header o del body, reponiendo el body.
func requestCSRFToken(r *http.Request, maxBody int64) string {
	if t := strings.TrimSpace(r.Header.Get(CSRFHeader)); t != "" {
		return t
	}
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	switch {
	case strings.Contains(ct, "application/json"):
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(raw))
		if err != nil {
			return ""
		}
		var body struct {
			CSRF string `json:"_csrf"`
		}
		if json.Unmarshal(raw, &body) != nil {
			return ""
		}
		return body.CSRF
	case strings.Contains(ct, "application/x-www-form-urlencoded"), strings.Contains(ct, "multipart/form-data"):
		return r.PostFormValue(CSRFBodyField)
	}
	return ""
}
