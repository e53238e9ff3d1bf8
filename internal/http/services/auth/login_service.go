package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/lexguard/internal/audit"
	"github.com/dropDatabas3/lexguard/internal/cache"
	"github.com/dropDatabas3/lexguard/internal/domain/repository"
	"github.com/dropDatabas3/lexguard/internal/observability/logger"
	"github.com/dropDatabas3/lexguard/internal/security"
	"github.com/dropDatabas3/lexguard/internal/security/anomaly"
	"github.com/dropDatabas3/lexguard/internal/session"
	"go.uber.org/zap"
)

// LoginDeps contiene las dependencias del login.
type LoginDeps struct {
	Accounts   repository.AccountRepository
	Passwords  PasswordChecker
	TwoFactor  SecondFactor
	Challenges ChallengeIssuer
	// Replay registra desafíos ya canjeados. Opcional.
	Replay   cache.Client
	Sessions SessionStore
	CSRF     TokenGenerator
	Detector AnomalyDetector
	Recorder *anomaly.Recorder
	Audit    AuditLogger
	Clock    security.Clock
	// DummyHash se verifica cuando la cuenta no existe, para que el tiempo de
	// respuesta no revele qué emails están registrados.
	DummyHash string
}

type loginService struct {
	d     LoginDeps
	clock security.Clock
}

func NewLoginService(d LoginDeps) LoginService {
	return &loginService{d: d, clock: security.OrSystem(d.Clock)}
}

// Login resuelve cualquiera de las dos fases. Retorna MFARequired sin sesión
// cuando la contraseña es correcta pero falta un código válido.
func (s *loginService) Login(ctx context.Context, in LoginInput, client ClientInfo) (*LoginResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.login"),
		logger.Op("Login"),
	)
	ctx = s.withRequestContext(ctx, client)

	if strings.TrimSpace(in.MFAToken) != "" {
		return s.secondPhase(ctx, log, in, client)
	}

	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || in.Password == "" {
		return nil, ErrMissingFields
	}

	acc, err := s.d.Accounts.GetByEmail(ctx, email)
	if err != nil {
		if !repository.IsNotFound(err) {
			return nil, fmt.Errorf("load account: %w", err)
		}
		if s.d.DummyHash != "" {
			_ = s.d.Passwords.Check(ctx, s.d.DummyHash, in.Password)
		}
		s.failed(ctx, "", "unknown_account", "password")
		return nil, ErrInvalidCredentials
	}
	if !s.d.Passwords.Check(ctx, acc.PasswordHash, in.Password) {
		s.failed(ctx, acc.ID, "invalid_password", "password")
		log.Info("login rejected", logger.AccountID(acc.ID))
		return nil, ErrInvalidCredentials
	}

	if acc.TwoFactorEnabled {
		v := s.d.TwoFactor.VerifyLogin(ctx, acc, in.Code)
		if !v.Verified {
			if strings.TrimSpace(in.Code) != "" {
				s.failed(ctx, acc.ID, "invalid_2fa_code", "password")
			}
			return s.challenge(acc.ID)
		}
		return s.complete(ctx, log, acc, v.Method, client)
	}
	return s.complete(ctx, log, acc, "password", client)
}

func (s *loginService) secondPhase(ctx context.Context, log *zap.Logger, in LoginInput, client ClientInfo) (*LoginResult, error) {
	if strings.TrimSpace(in.Code) == "" {
		return nil, ErrMissingFields
	}
	claims, err := s.d.Challenges.ParseMFA(in.MFAToken)
	if err != nil {
		s.failed(ctx, "", "invalid_mfa_token", "mfa")
		return nil, ErrInvalidCredentials
	}
	// el desafío se reclama antes de verificar: dos requests concurrentes con
	// el mismo token no pueden abrir dos sesiones
	if !s.claim(ctx, claims.ID, claims.ExpiresAt.Time) {
		s.failed(ctx, claims.Subject, "mfa_token_reused", "mfa")
		return nil, ErrInvalidCredentials
	}
	acc, err := s.d.Accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		s.release(ctx, claims.ID)
		if repository.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	v := s.d.TwoFactor.VerifyLogin(ctx, acc, in.Code)
	if !v.Verified {
		// un código incorrecto no quema el desafío
		s.release(ctx, claims.ID)
		s.failed(ctx, acc.ID, "invalid_2fa_code", "mfa")
		return nil, ErrInvalidCredentials
	}
	method := v.Method
	if method == "" {
		method = "password"
	}
	return s.complete(ctx, log, acc, method, client)
}

func (s *loginService) challenge(accountID string) (*LoginResult, error) {
	tok, claims, err := s.d.Challenges.IssueMFA(accountID)
	if err != nil {
		return nil, fmt.Errorf("issue mfa challenge: %w", err)
	}
	return &LoginResult{
		MFARequired:  true,
		MFAToken:     tok,
		MFAExpiresIn: claims.ExpiresAt.Time.Sub(s.clock.Now()),
	}, nil
}

func (s *loginService) complete(ctx context.Context, log *zap.Logger, acc *repository.Account, method string, client ClientInfo) (*LoginResult, error) {
	now := s.clock.Now()

	var found []anomaly.Anomaly
	if s.d.Detector != nil {
		found = s.d.Detector.Detect(ctx, acc.ID, client.IP, client.UserAgent, now)
		s.d.Recorder.Record(ctx, acc.ID, found)
	}

	if client.PreviousSessionID != "" {
		if err := s.d.Sessions.Destroy(ctx, client.PreviousSessionID); err != nil {
			log.Warn("failed to destroy previous session", logger.Err(err))
		}
	}

	csrfToken, err := s.d.CSRF.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate csrf token: %w", err)
	}
	sess := &session.Session{
		AccountID:     acc.ID,
		Role:          acc.Role,
		CreatedAt:     now.UTC(),
		UserAgent:     client.UserAgent,
		IP:            client.IP,
		Fingerprint:   client.Fingerprint,
		CSRFToken:     csrfToken,
		Authenticated: true,
	}
	if err := s.d.Sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	details := map[string]any{"method": method, "fingerprint": client.Fingerprint}
	if len(found) > 0 {
		kinds := make([]string, 0, len(found))
		for _, a := range found {
			kinds = append(kinds, a.Type)
		}
		details["anomalies"] = kinds
	}
	s.audit(ctx, audit.EventLoginSuccess, acc.ID, details)
	log.Info("login succeeded", logger.AccountID(acc.ID), logger.String("method", method))

	return &LoginResult{Session: sess, Method: method, Anomalies: found}, nil
}

func (s *loginService) failed(ctx context.Context, accountID, reason, stage string) {
	s.audit(ctx, audit.EventLoginFailed, accountID, map[string]any{"reason": reason, "stage": stage})
}

func (s *loginService) audit(ctx context.Context, event, accountID string, details map[string]any) {
	if s.d.Audit == nil {
		return
	}
	s.d.Audit.Log(ctx, event, details, accountID, audit.RequestContextFrom(ctx))
}

func (s *loginService) withRequestContext(ctx context.Context, client ClientInfo) context.Context {
	if audit.RequestContextFrom(ctx) != nil {
		return ctx
	}
	return audit.WithRequestContext(ctx, audit.RequestContext{IP: client.IP, UserAgent: client.UserAgent})
}

func replayKey(jti string) string { return "mfa:used:" + jti }

// claim marca jti como canjeado de forma atómica. Retorna false si ya lo estaba.
// Si el store de replay falla, deja pasar: la firma y la expiración del JWT siguen vigentes.
func (s *loginService) claim(ctx context.Context, jti string, exp time.Time) bool {
	if s.d.Replay == nil {
		return true
	}
	ttl := exp.Sub(s.clock.Now())
	if ttl <= 0 {
		return true
	}
	ok, err := s.d.Replay.SetNX(ctx, replayKey(jti), "1", ttl)
	if err != nil {
		logger.From(ctx).Warn("mfa replay store unavailable", logger.Err(err))
		return true
	}
	return ok
}

func (s *loginService) release(ctx context.Context, jti string) {
	if s.d.Replay == nil {
		return
	}
	if err := s.d.Replay.Delete(ctx, replayKey(jti)); err != nil {
		logger.From(ctx).Warn("failed to release mfa challenge", logger.Err(err))
	}
}
