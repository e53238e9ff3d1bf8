// Package jwt emite y valida el token de desafío 2FA que conecta las dos
// fases del login.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/lexguard/internal/security"
	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// TypeMFA es el valor del claim "typ" del desafío 2FA.
	TypeMFA = "mfa"

	DefaultMFATTL = 5 * time.Minute
	minKeyLen     = 32
)

var (
	ErrInvalidToken = errors.New("jwt: invalid token")
	ErrWeakKey      = errors.New("jwt: signing key must be at least 32 bytes")
)

// MFAClaims son los claims del desafío.
type MFAClaims struct {
	Type string `json:"typ"`
	jwtv5.RegisteredClaims
}

// Issuer firma desafíos HS256 con una clave simétrica.
type Issuer struct {
	Iss   string
	TTL   time.Duration
	key   []byte
	clock security.Clock
}

func NewIssuer(iss string, key []byte, ttl time.Duration, clock security.Clock) (*Issuer, error) {
	if len(key) < minKeyLen {
		return nil, ErrWeakKey
	}
	if ttl <= 0 {
		ttl = DefaultMFATTL
	}
	return &Issuer{Iss: iss, TTL: ttl, key: key, clock: security.OrSystem(clock)}, nil
}

// IssueMFA emite un desafío para accountID. Retorna el token y su jti.
func (i *Issuer) IssueMFA(accountID string) (string, *MFAClaims, error) {
	now := i.clock.Now().UTC()
	claims := &MFAClaims{
		Type: TypeMFA,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    i.Iss,
			Subject:   accountID,
			ID:        uuid.NewString(),
			IssuedAt:  jwtv5.NewNumericDate(now),
			NotBefore: jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(i.TTL)),
		},
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	tk.Header["typ"] = "JWT"
	signed, err := tk.SignedString(i.key)
	if err != nil {
		return "", nil, fmt.Errorf("sign mfa token: %w", err)
	}
	return signed, claims, nil
}

// ParseMFA valida firma, issuer, expiración y tipo.
func (i *Issuer) ParseMFA(token string) (*MFAClaims, error) {
	claims := &MFAClaims{}
	tok, err := jwtv5.ParseWithClaims(token, claims,
		func(*jwtv5.Token) (any, error) { return i.key, nil },
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
		jwtv5.WithIssuer(i.Iss),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithTimeFunc(i.clock.Now),
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != TypeMFA || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
