package pg

import (
	"context"
	"time"

	"github.com/dropDatabas3/lexguard/internal/domain/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type auditRepo struct {
	pool *pgxpool.Pool
}

const auditColumns = `id, event_type, details, account_id, ip, user_agent, occurred_at`

func (r *auditRepo) Append(ctx context.Context, e repository.AuditEntry) error {
	const query = `
		INSERT INTO security_audit (id, event_type, details, account_id, ip, user_agent, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	_, err := r.pool.Exec(ctx, query, e.ID, e.EventType, details, e.AccountID, e.IP, e.UserAgent, e.Timestamp)
	return err
}

func (r *auditRepo) List(ctx context.Context, f repository.AuditFilter) ([]repository.AuditEntry, int, error) {
	const countQuery = `SELECT COUNT(*) FROM security_audit WHERE ($1 = '' OR event_type = $1)`
	const listQuery = `
		SELECT ` + auditColumns + ` FROM security_audit
		WHERE ($1 = '' OR event_type = $1)
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	if f.Offset < 0 {
		f.Offset = 0
	}
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, f.EventType).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, listQuery, f.EventType, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	entries, err := collectEntries(rows)
	return entries, total, err
}

func (r *auditRepo) CountByIP(ctx context.Context, eventType, ip string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM security_audit WHERE ip = $1 AND event_type = $2 AND occurred_at >= $3`
	var n int
	err := r.pool.QueryRow(ctx, query, ip, eventType, since).Scan(&n)
	return n, err
}

func (r *auditRepo) RecentForAccount(ctx context.Context, accountID string, n int) ([]repository.AuditEntry, error) {
	const query = `
		SELECT ` + auditColumns + ` FROM security_audit
		WHERE account_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, accountID, n)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]repository.AuditEntry, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (repository.AuditEntry, error) {
		var e repository.AuditEntry
		err := row.Scan(&e.ID, &e.EventType, &e.Details, &e.AccountID, &e.IP, &e.UserAgent, &e.Timestamp)
		return e, err
	})
}
