// Package admin contiene los controllers de administración de seguridad.
package admin

import (
	"context"

	"github.com/dropDatabas3/lexguard/internal/audit"
)

// AuditQuerier lee el log de auditoría paginado.
type AuditQuerier interface {
	Query(ctx context.Context, f audit.Filter) (audit.Page, error)
}

// Controllers agrupa los controllers admin.
type Controllers struct {
	Audit *AuditController
}

func NewControllers(q AuditQuerier) *Controllers {
	return &Controllers{Audit: NewAuditController(q)}
}
