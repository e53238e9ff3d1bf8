// Package security contiene el service de rotación de tokens CSRF.
package security

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/lexguard/internal/observability/logger"
	"github.com/dropDatabas3/lexguard/internal/session"
)

var ErrNoSession = errors.New("csrf: no session")

// TokenGenerator emite tokens CSRF.
type TokenGenerator interface {
	GenerateToken() (string, error)
}

// SessionSaver persiste la sesión con el token nuevo.
type SessionSaver interface {
	Save(ctx context.Context, s *session.Session) error
}

// CSRFService rota el token ligado a la sesión.
type CSRFService interface {
	Rotate(ctx context.Context, s *session.Session) (string, error)
}

// CSRFDeps contiene las dependencias del service.
type CSRFDeps struct {
	Tokens   TokenGenerator
	Sessions SessionSaver
}

type csrfService struct {
	d CSRFDeps
}

func NewCSRFService(d CSRFDeps) CSRFService {
	return &csrfService{d: d}
}

// Rotate genera un token nuevo y lo guarda en la sesión; el anterior deja de
// ser válido.
func (s *csrfService) Rotate(ctx context.Context, sess *session.Session) (string, error) {
	if sess == nil {
		return "", ErrNoSession
	}
	tok, err := s.d.Tokens.GenerateToken()
	if err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	prev := sess.CSRFToken
	sess.CSRFToken = tok
	if err := s.d.Sessions.Save(ctx, sess); err != nil {
		sess.CSRFToken = prev
		return "", fmt.Errorf("save session: %w", err)
	}
	logger.From(ctx).Debug("csrf token rotated",
		logger.Layer("service"), logger.Component("security.csrf"), logger.AccountID(sess.AccountID))
	return tok, nil
}
