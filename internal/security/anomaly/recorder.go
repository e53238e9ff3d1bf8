package anomaly

import (
	"context"

	"github.com/dropDatabas3/lexguard/internal/audit"
	"github.com/dropDatabas3/lexguard/internal/observability/logger"
)

// AuditLogger registra ANOMALY_DETECTED.
type AuditLogger interface {
	Log(ctx context.Context, eventType string, details map[string]any, accountID string, rc *audit.RequestContext)
}

// Recorder audita anomalías una vez por (cuenta, tipo) dentro del TTL del
// Deduper. OnDetected se llama siempre, para métricas.
type Recorder struct {
	Audit      AuditLogger
	Deduper    *Deduper
	OnDetected func(kind string)
}

func (r *Recorder) Record(ctx context.Context, accountID string, found []Anomaly) {
	if r == nil {
		return
	}
	log := logger.From(ctx).With(logger.Component("anomaly"), logger.AccountID(accountID))
	for _, a := range found {
		if r.OnDetected != nil {
			r.OnDetected(a.Type)
		}
		if r.Deduper != nil && !r.Deduper.First(accountID, a) {
			continue
		}
		log.Info("anomaly detected", logger.String("type", a.Type), logger.String("severity", a.Severity))
		if r.Audit != nil {
			r.Audit.Log(ctx, audit.EventAnomalyDetected, map[string]any{
				"type":     a.Type,
				"severity": a.Severity,
				"details":  a.Details,
			}, accountID, audit.RequestContextFrom(ctx))
		}
	}
}
