package auth

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/lexguard/internal/audit"
	"github.com/dropDatabas3/lexguard/internal/observability/logger"
	"github.com/dropDatabas3/lexguard/internal/session"
)

// LogoutDeps contiene las dependencias del logout.
type LogoutDeps struct {
	Sessions SessionStore
	Audit    AuditLogger
}

type logoutService struct {
	d LogoutDeps
}

func NewLogoutService(d LogoutDeps) LogoutService {
	return &logoutService{d: d}
}

// Logout destruye la sesión y registra LOGOUT.
func (s *logoutService) Logout(ctx context.Context, sess *session.Session) error {
	if sess == nil {
		return nil
	}
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.logout"),
		logger.AccountID(sess.AccountID),
	)
	if err := s.d.Sessions.Destroy(ctx, sess.ID); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	if s.d.Audit != nil {
		s.d.Audit.Log(ctx, audit.EventLogout, nil, sess.AccountID, audit.RequestContextFrom(ctx))
	}
	log.Info("logout")
	return nil
}
