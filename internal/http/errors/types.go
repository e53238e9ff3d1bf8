package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// Kind clasifica errores para logging, métricas y auditoría.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindAuth              Kind = "auth"
	KindRateLimit         Kind = "rate_limit"
	KindSecurityViolation Kind = "security_violation"
	KindNotFound          Kind = "not_found"
	KindInternal          Kind = "internal"
)

// AppError es el error estándar expuesto por la API.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"`
	Kind       Kind   `json:"-"`
	// RetryAfter se emite como header Retry-After cuando es > 0.
	RetryAfter time.Duration `json:"-"`
	Err        error         `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// Is compara por código, así errors.Is funciona con las copias de WithDetail.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

func New(status int, kind Kind, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Kind: kind}
}

func Wrap(err error, status int, kind Kind, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Kind: kind, Err: err}
}

// FromError convierte cualquier error en AppError; lo desconocido es 500.
func FromError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServerError.WithCause(err)
}

// WithDetail retorna una copia con detalle.
func (e *AppError) WithDetail(detail string) *AppError {
	c := *e
	c.Detail = detail
	return &c
}

// WithCause retorna una copia con la causa original.
func (e *AppError) WithCause(err error) *AppError {
	c := *e
	c.Err = err
	return &c
}

// WithRetryAfter retorna una copia con Retry-After.
func (e *AppError) WithRetryAfter(d time.Duration) *AppError {
	c := *e
	c.RetryAfter = d
	return &c
}

// ---------------------------------------------------------------------------------
// 400 Validación
// ---------------------------------------------------------------------------------

var (
	ErrBadRequest    = New(http.StatusBadRequest, KindValidation, "BAD_REQUEST", "malformed request")
	ErrInvalidJSON   = New(http.StatusBadRequest, KindValidation, "INVALID_JSON", "request body is not valid JSON")
	ErrMissingFields = New(http.StatusBadRequest, KindValidation, "MISSING_FIELDS", "required fields are missing")
	ErrBodyTooLarge  = New(http.StatusRequestEntityTooLarge, KindValidation, "BODY_TOO_LARGE", "request body too large")
	ErrInvalidState  = New(http.StatusBadRequest, KindValidation, "INVALID_STATE", "operation not allowed in the current state")
)

// ---------------------------------------------------------------------------------
// 401 Autenticación
// ---------------------------------------------------------------------------------

var (
	ErrUnauthorized = New(http.StatusUnauthorized, KindAuth, "UNAUTHORIZED", "authentication required")
	// ErrInvalidCredentials es la única respuesta ante cualquier falla de login.
	ErrInvalidCredentials = New(http.StatusUnauthorized, KindAuth, "INVALID_CREDENTIALS", "invalid credentials")
	ErrMFARequired        = New(http.StatusUnauthorized, KindAuth, "MFA_REQUIRED", "two-factor code required")
)

// ---------------------------------------------------------------------------------
// 401/403 Violaciones de seguridad
// ---------------------------------------------------------------------------------

var (
	ErrCSRFInvalid    = New(http.StatusForbidden, KindSecurityViolation, "CSRF_INVALID", "invalid or missing CSRF token")
	ErrSessionInvalid = New(http.StatusUnauthorized, KindSecurityViolation, "SESSION_INVALID", "session is no longer valid")
	ErrIPBlocked      = New(http.StatusForbidden, KindSecurityViolation, "IP_BLOCKED", "access denied")
	ErrForbidden      = New(http.StatusForbidden, KindSecurityViolation, "FORBIDDEN", "insufficient permissions")
)

// ---------------------------------------------------------------------------------
// 404/405
// ---------------------------------------------------------------------------------

var (
	ErrNotFound         = New(http.StatusNotFound, KindNotFound, "NOT_FOUND", "resource not found")
	ErrMethodNotAllowed = New(http.StatusMethodNotAllowed, KindNotFound, "METHOD_NOT_ALLOWED", "method not allowed")
)

// ---------------------------------------------------------------------------------
// 429
// ---------------------------------------------------------------------------------

var ErrRateLimitExceeded = New(http.StatusTooManyRequests, KindRateLimit, "RATE_LIMIT_EXCEEDED", "too many requests, try again later")

// ---------------------------------------------------------------------------------
// 5xx
// ---------------------------------------------------------------------------------

var (
	ErrInternalServerError = New(http.StatusInternalServerError, KindInternal, "INTERNAL_SERVER_ERROR", "internal server error")
	ErrServiceUnavailable  = New(http.StatusServiceUnavailable, KindInternal, "SERVICE_UNAVAILABLE", "service unavailable")
)
