package session

import (
	"time"

	"github.com/dropDatabas3/lexguard/internal/security"
)

// DefaultMaxAge es la vida máxima de una sesión desde su creación.
const DefaultMaxAge = 24 * time.Hour

// Motivos de rechazo.
const (
	ReasonMissing           = "missing"
	ReasonExpired           = "expired"
	ReasonUserAgentMismatch = "user_agent_mismatch"
)

// Verdict es el resultado de Validate. IPChanged no invalida la sesión.
type Verdict struct {
	Valid     bool
	Reason    string
	IPChanged bool
}

// Validator chequea edad, continuidad de user-agent y deriva de IP.
type Validator struct {
	maxAge time.Duration
	clock  security.Clock
}

func NewValidator(maxAge time.Duration, clock security.Clock) *Validator {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Validator{maxAge: maxAge, clock: security.OrSystem(clock)}
}

func (v *Validator) Name() string { return "session_integrity" }

func (v *Validator) Criticality() security.Criticality { return security.HardGate }

// Validate compara la sesión contra el request actual.
func (v *Validator) Validate(s *Session, userAgent, ip string) Verdict {
	if s == nil || s.AccountID == "" || s.CreatedAt.IsZero() {
		return Verdict{Reason: ReasonMissing}
	}
	if v.clock.Now().Sub(s.CreatedAt) > v.maxAge {
		return Verdict{Reason: ReasonExpired}
	}
	if s.UserAgent != userAgent {
		return Verdict{Reason: ReasonUserAgentMismatch}
	}
	return Verdict{Valid: true, IPChanged: s.IP != ip}
}
