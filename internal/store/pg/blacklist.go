package pg

import (
	"context"
	"time"

	"github.com/dropDatabas3/lexguard/internal/domain/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type blacklistRepo struct {
	pool *pgxpool.Pool
}

func (r *blacklistRepo) ListActive(ctx context.Context, now time.Time) ([]repository.BlacklistedIP, error) {
	const query = `
		SELECT ip, reason, expires_at, created_at FROM blacklisted_ip
		WHERE expires_at IS NULL OR expires_at > $1
	`
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (repository.BlacklistedIP, error) {
		var b repository.BlacklistedIP
		err := row.Scan(&b.IP, &b.Reason, &b.ExpiresAt, &b.CreatedAt)
		return b, err
	})
}

func (r *blacklistRepo) Add(ctx context.Context, b repository.BlacklistedIP) error {
	const query = `
		INSERT INTO blacklisted_ip (ip, reason, expires_at, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (ip) DO UPDATE SET reason = $2, expires_at = $3
	`
	_, err := r.pool.Exec(ctx, query, b.IP, b.Reason, b.ExpiresAt)
	return err
}
