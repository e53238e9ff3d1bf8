// Package anomaly compara el contexto del request con la actividad reciente de
// la cuenta y emite señales informativas. Nunca bloquea.
package anomaly

import (
	"context"
	"time"

	"github.com/dropDatabas3/lexguard/internal/domain/repository"
	"github.com/dropDatabas3/lexguard/internal/observability/logger"
	"github.com/dropDatabas3/lexguard/internal/security"
)

// Tipos de anomalía.
const (
	TypeNewIP           = "new_ip"
	TypeUnusualTime     = "unusual_time"
	TypeNewCountry      = "new_country"
	TypeSessionIPChange = "session_ip_change"
)

// Severidades.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

type Anomaly struct {
	Type     string         `json:"type"`
	Severity string         `json:"severity"`
	Details  map[string]any `json:"details,omitempty"`
}

// ActivitySource lee la actividad reciente de una cuenta.
type ActivitySource interface {
	RecentForAccount(ctx context.Context, accountID string, n int) ([]repository.AuditEntry, error)
}

// Locator resuelve el país (ISO) de una IP. Opcional.
type Locator interface {
	Country(ip string) (string, error)
}

type Config struct {
	RecentLimit int
	// Ventana de actividad normal [ActiveFrom, ActiveTo) en horas locales.
	ActiveFrom int
	ActiveTo   int
	Location   *time.Location
	Timeout    time.Duration
}

func DefaultConfig() Config {
	return Config{RecentLimit: 10, ActiveFrom: 6, ActiveTo: 22, Location: time.Local, Timeout: 200 * time.Millisecond}
}

// Detector evalúa reglas sobre la actividad reciente.
type Detector struct {
	source  ActivitySource
	locator Locator
	cfg     Config
}

// NewDetector crea un detector; locator puede ser nil.
func NewDetector(source ActivitySource, locator Locator, cfg Config) *Detector {
	d := DefaultConfig()
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = d.RecentLimit
	}
	if cfg.ActiveFrom == 0 && cfg.ActiveTo == 0 {
		cfg.ActiveFrom, cfg.ActiveTo = d.ActiveFrom, d.ActiveTo
	}
	if cfg.Location == nil {
		cfg.Location = d.Location
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	return &Detector{source: source, locator: locator, cfg: cfg}
}

func (d *Detector) Name() string { return "anomaly" }

func (d *Detector) Criticality() security.Criticality { return security.SoftSignal }

// Detect retorna las anomalías del request. Ante cualquier error retorna nil.
func (d *Detector) Detect(ctx context.Context, accountID, ip, userAgent string, now time.Time) (out []Anomaly) {
	log := logger.From(ctx).With(logger.Component("anomaly"), logger.AccountID(accountID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("anomaly detection panicked", logger.Any("panic", r))
			out = nil
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	recent, err := d.source.RecentForAccount(ctx, accountID, d.cfg.RecentLimit)
	if err != nil {
		log.Warn("recent activity unavailable, skipping anomaly detection", logger.Err(err))
		return nil
	}

	seen := make(map[string]struct{}, len(recent))
	for _, e := range recent {
		if e.IP != "" {
			seen[e.IP] = struct{}{}
		}
	}
	if _, ok := seen[ip]; !ok {
		out = append(out, Anomaly{Type: TypeNewIP, Severity: SeverityMedium, Details: map[string]any{"ip": ip}})
	}

	if hour := now.In(d.cfg.Location).Hour(); !d.activeHour(hour) {
		out = append(out, Anomaly{Type: TypeUnusualTime, Severity: SeverityLow, Details: map[string]any{"hour": hour}})
	}

	if a, ok := d.countryAnomaly(ip, seen); ok {
		out = append(out, a)
	}
	return out
}

func (d *Detector) activeHour(h int) bool {
	if d.cfg.ActiveFrom <= d.cfg.ActiveTo {
		return h >= d.cfg.ActiveFrom && h < d.cfg.ActiveTo
	}
	// Ventana que cruza medianoche, ej. 20 → 4.
	return h >= d.cfg.ActiveFrom || h < d.cfg.ActiveTo
}

func (d *Detector) countryAnomaly(ip string, seen map[string]struct{}) (Anomaly, bool) {
	if d.locator == nil || len(seen) == 0 {
		return Anomaly{}, false
	}
	current, err := d.locator.Country(ip)
	if err != nil || current == "" {
		return Anomaly{}, false
	}
	for prev := range seen {
		if c, err := d.locator.Country(prev); err == nil && c == current {
			return Anomaly{}, false
		}
	}
	return Anomaly{Type: TypeNewCountry, Severity: SeverityMedium, Details: map[string]any{"country": current}}, true
}
