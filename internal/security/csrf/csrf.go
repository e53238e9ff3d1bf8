// Package csrf emite y valida tokens anti-CSRF ligados a la sesión.
package csrf

import (
	"io"
	"net/http"
	"strings"

	"github.com/dropDatabas3/lexguard/internal/security"
	tokens "github.com/dropDatabas3/lexguard/internal/security/token"
)

// TokenBytes es la entropía del token antes de codificar (hex → 64 chars).
const TokenBytes = 32

// Service genera y compara tokens.
type Service struct {
	rand io.Reader
}

// NewService usa r como fuente de entropía; nil usa crypto/rand.
func NewService(r io.Reader) *Service {
	return &Service{rand: r}
}

func (s *Service) Name() string { return "csrf" }

func (s *Service) Criticality() security.Criticality { return security.HardGate }

// GenerateToken retorna 32 bytes aleatorios en hex.
func (s *Service) GenerateToken() (string, error) {
	return tokens.RandomHex(s.rand, TokenBytes)
}

// Validate compara en tiempo constante. Falla cerrado: vacío o longitudes
// distintas retornan false.
func (s *Service) Validate(sessionToken, requestToken string) bool {
	return tokens.ConstantTimeEqual(sessionToken, requestToken)
}

// Policy decide qué requests requieren token.
type Policy struct {
	// ExemptPaths son entradas sin sesión previa (login, registro, segundo factor).
	ExemptPaths []string
}

// DefaultPolicy exime login, registro y verificación del segundo factor.
func DefaultPolicy() Policy {
	return Policy{ExemptPaths: []string{"/login", "/register", "/2fa/verify"}}
}

// Required reporta si r debe presentar un token válido.
func (p Policy) Required(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	path := strings.TrimSuffix(r.URL.Path, "/")
	for _, exempt := range p.ExemptPaths {
		if path == strings.TrimSuffix(exempt, "/") {
			return false
		}
	}
	return true
}
