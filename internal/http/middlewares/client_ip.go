package middlewares

import (
	"net"
	"net/http"
	"strings"

	"github.com/dropDatabas3/lexguard/internal/audit"
)

// ClientIP extrae la IP del cliente. Con trustProxy toma el primer salto de
// X-Forwarded-For (o X-Real-IP); si no, usa RemoteAddr.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
			first, _, _ := strings.Cut(xf, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
			return xr
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// WithClientIP resuelve la IP una vez y deja el contexto de auditoría listo
// para que cualquier capa pueda registrar eventos.
func WithClientIP(trustProxy bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r, trustProxy)
			r, st := withState(r)
			st.mu.Lock()
			st.clientIP = ip
			st.mu.Unlock()

			ctx := audit.WithRequestContext(r.Context(), audit.RequestContext{IP: ip, UserAgent: r.UserAgent()})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientIPOf usa la IP resuelta o, si el middleware no corrió, RemoteAddr.
func clientIPOf(r *http.Request) string {
	if ip := GetClientIP(r.Context()); ip != "" {
		return ip
	}
	return ClientIP(r, false)
}
