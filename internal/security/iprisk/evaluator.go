// Package iprisk evalúa el riesgo de una IP: lista negra y frecuencia de
// intentos fallidos de login en una ventana móvil.
package iprisk

import (
	"context"
	"time"

	"github.com/dropDatabas3/lexguard/internal/audit"
	"github.com/dropDatabas3/lexguard/internal/observability/logger"
	"github.com/dropDatabas3/lexguard/internal/security"
)

// Risk es el nivel de riesgo evaluado.
type Risk string

const (
	RiskLow     Risk = "low"
	RiskMedium  Risk = "medium"
	RiskHigh    Risk = "high"
	RiskUnknown Risk = "unknown"
)

// Motivos de denegación.
const (
	ReasonBlacklisted    = "blacklisted"
	ReasonFailedAttempts = "too_many_failed_attempts"
	// ReasonBlacklistUnavailable: la lista negra no se pudo cargar y no hay snapshot previo.
	ReasonBlacklistUnavailable = "blacklist_unavailable"
)

// Assessment es el resultado de Evaluate.
type Assessment struct {
	Allowed        bool
	Risk           Risk
	Reason         string
	FailedAttempts int
}

// Blacklist resuelve si una IP está bloqueada.
type Blacklist interface {
	Lookup(ctx context.Context, ip string) (hit bool, reason string, err error)
}

// AttemptCounter cuenta eventos por IP desde un instante.
type AttemptCounter interface {
	CountByIP(ctx context.Context, eventType, ip string, since time.Time) (int, error)
}

// Config define umbrales; los conteos comparan con "mayor que".
type Config struct {
	Window        time.Duration
	SoftThreshold int
	HardCeiling   int
	Timeout       time.Duration
}

func DefaultConfig() Config {
	return Config{Window: time.Hour, SoftThreshold: 5, HardCeiling: 10, Timeout: 250 * time.Millisecond}
}

// Evaluator combina lista negra y conteo de fallos.
type Evaluator struct {
	blacklist Blacklist
	attempts  AttemptCounter
	clock     security.Clock
	cfg       Config
}

func NewEvaluator(bl Blacklist, attempts AttemptCounter, cfg Config, clock security.Clock) *Evaluator {
	d := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = d.Window
	}
	if cfg.SoftThreshold <= 0 {
		cfg.SoftThreshold = d.SoftThreshold
	}
	if cfg.HardCeiling <= 0 {
		cfg.HardCeiling = d.HardCeiling
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	return &Evaluator{blacklist: bl, attempts: attempts, clock: security.OrSystem(clock), cfg: cfg}
}

func (e *Evaluator) Name() string { return "ip_risk" }

func (e *Evaluator) Criticality() security.Criticality { return security.SoftSignal }

// Evaluate nunca retorna error. Ante una falla interna decide según la
// Criticality del chequeo que falló: la lista negra (HardGate por defecto)
// deniega y el conteo de intentos (SoftSignal por defecto) permite con riesgo unknown.
func (e *Evaluator) Evaluate(ctx context.Context, ip, accountID string) Assessment {
	log := logger.From(ctx).With(logger.Component("iprisk"), logger.ClientIP(ip))

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	if e.blacklist != nil {
		hit, reason, err := e.blacklist.Lookup(ctx, ip)
		if err != nil {
			if security.CriticalityOf(e.blacklist, security.HardGate).FailOpen() {
				log.Warn("blacklist lookup failed, failing open", logger.Err(err))
				return Assessment{Allowed: true, Risk: RiskUnknown}
			}
			log.Error("blacklist unavailable, failing closed", logger.Err(err))
			return Assessment{Allowed: false, Risk: RiskUnknown, Reason: ReasonBlacklistUnavailable}
		}
		if hit {
			r := ReasonBlacklisted
			if reason != "" {
				r = ReasonBlacklisted + ": " + reason
			}
			return Assessment{Allowed: false, Risk: RiskHigh, Reason: r}
		}
	}

	if e.attempts == nil {
		return Assessment{Allowed: true, Risk: RiskLow}
	}
	since := e.clock.Now().Add(-e.cfg.Window)
	n, err := e.attempts.CountByIP(ctx, audit.EventLoginFailed, ip, since)
	if err != nil {
		if !security.CriticalityOf(e.attempts, security.SoftSignal).FailOpen() {
			log.Error("failed-attempt count unavailable, failing closed", logger.Err(err))
			return Assessment{Allowed: false, Risk: RiskUnknown, Reason: ReasonFailedAttempts}
		}
		log.Warn("failed-attempt count unavailable, failing open", logger.Err(err))
		return Assessment{Allowed: true, Risk: RiskUnknown}
	}

	switch {
	case n > e.cfg.HardCeiling:
		return Assessment{Allowed: false, Risk: RiskHigh, Reason: ReasonFailedAttempts, FailedAttempts: n}
	case n > e.cfg.SoftThreshold:
		return Assessment{Allowed: true, Risk: RiskMedium, FailedAttempts: n}
	default:
		return Assessment{Allowed: true, Risk: RiskLow, FailedAttempts: n}
	}
}
