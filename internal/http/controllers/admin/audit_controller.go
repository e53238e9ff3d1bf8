package admin

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/lexguard/internal/audit"
	dto "github.com/dropDatabas3/lexguard/internal/http/dto/admin"
	httperrors "github.com/dropDatabas3/lexguard/internal/http/errors"
	"github.com/dropDatabas3/lexguard/internal/http/helpers"
	"github.com/dropDatabas3/lexguard/internal/observability/logger"
)

// AuditController maneja GET /admin/security-audit.
type AuditController struct {
	reader AuditQuerier
}

func NewAuditController(reader AuditQuerier) *AuditController {
	return &AuditController{reader: reader}
}

// List acepta ?eventType=&page=&limit=. limit se acota a audit.MaxPageLimit.
func (c *AuditController) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("AuditController.List"))

	q := r.URL.Query()
	eventType := strings.TrimSpace(q.Get("eventType"))
	if eventType == "" {
		eventType = strings.TrimSpace(q.Get("event_type"))
	}

	page, err := c.reader.Query(ctx, audit.Filter{
		EventType: strings.ToUpper(eventType),
		Page:      helpers.QueryInt(r, "page", 1),
		Limit:     helpers.QueryInt(r, "limit", audit.DefaultPageLimit),
	})
	if err != nil {
		log.Error("audit query failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return
	}

	resp := dto.AuditListResponse{
		Entries: make([]dto.AuditEntry, 0, len(page.Entries)),
		Pagination: dto.Pagination{
			Page:       page.Page,
			Limit:      page.Limit,
			Total:      page.Total,
			TotalPages: (page.Total + page.Limit - 1) / page.Limit,
		},
	}
	for _, e := range page.Entries {
		resp.Entries = append(resp.Entries, dto.AuditEntry{
			ID:        e.ID,
			EventType: e.EventType,
			AccountID: e.AccountID,
			IP:        e.IP,
			UserAgent: e.UserAgent,
			Details:   e.Details,
			Timestamp: e.Timestamp,
		})
	}

	helpers.NoStore(w)
	helpers.WriteJSON(w, http.StatusOK, resp)
}
