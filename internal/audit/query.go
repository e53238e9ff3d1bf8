package audit

import (
	"context"
	"fmt"
	"math"

	"github.com/dropDatabas3/lexguard/internal/domain/repository"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Filter es la consulta del endpoint de administración. Page empieza en 1.
type Filter struct {
	EventType string
	Page      int
	Limit     int
}

// Page es una página del log de auditoría.
type Page struct {
	Entries []repository.AuditEntry
	Total   int
	Page    int
	Limit   int
}

// Reader consulta el log de auditoría.
type Reader struct {
	repo repository.AuditRepository
}

func NewReader(repo repository.AuditRepository) *Reader {
	return &Reader{repo: repo}
}

// Query normaliza paginación y lee una página, más nuevas primero.
func (r *Reader) Query(ctx context.Context, f Filter) (Page, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultPageLimit
	case f.Limit > MaxPageLimit:
		f.Limit = MaxPageLimit
	}
	// acota Page para que el offset no desborde int
	if maxPage := math.MaxInt / f.Limit; f.Page > maxPage {
		f.Page = maxPage
	}
	entries, total, err := r.repo.List(ctx, repository.AuditFilter{
		EventType: f.EventType,
		Limit:     f.Limit,
		Offset:    (f.Page - 1) * f.Limit,
	})
	if err != nil {
		return Page{}, fmt.Errorf("list audit entries: %w", err)
	}
	return Page{Entries: entries, Total: total, Page: f.Page, Limit: f.Limit}, nil
}
