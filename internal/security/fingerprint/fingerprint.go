// Package fingerprint deriva un identificador de dispositivo a partir de
// metadatos del request. Es una señal de continuidad, no un factor de auth.
package fingerprint

import (
	"net/http"
	"strings"

	tokens "github.com/dropDatabas3/lexguard/internal/security/token"
)

// Generate retorna sha256 hex de los cuatro valores separados por "|".
func Generate(userAgent, acceptLanguage, acceptEncoding, ip string) string {
	return tokens.SHA256Hex(strings.Join([]string{userAgent, acceptLanguage, acceptEncoding, ip}, "|"))
}

// FromRequest toma los headers de r; ip viene resuelta por el caller.
func FromRequest(r *http.Request, ip string) string {
	return Generate(
		r.Header.Get("User-Agent"),
		r.Header.Get("Accept-Language"),
		r.Header.Get("Accept-Encoding"),
		ip,
	)
}
