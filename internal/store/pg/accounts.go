package pg

import (
	"context"
	"errors"
	"strings"

	"github.com/dropDatabas3/lexguard/internal/domain/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type accountRepo struct {
	pool *pgxpool.Pool
}

const accountColumns = `id, email, password_hash, role, two_factor_enabled, two_factor_secret, created_at, updated_at`

func scanAccount(row pgx.Row) (*repository.Account, error) {
	var a repository.Account
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Role, &a.TwoFactorEnabled, &a.TwoFactorSecret, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *accountRepo) GetByID(ctx context.Context, id string) (*repository.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM account WHERE id = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

func (r *accountRepo) GetByEmail(ctx context.Context, email string) (*repository.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM account WHERE LOWER(email) = LOWER($1) LIMIT 1`
	return scanAccount(r.pool.QueryRow(ctx, query, strings.TrimSpace(email)))
}

func (r *accountRepo) Create(ctx context.Context, a repository.Account) error {
	const query = `
		INSERT INTO account (id, email, password_hash, role, two_factor_enabled, two_factor_secret, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`
	_, err := r.pool.Exec(ctx, query, a.ID, strings.ToLower(a.Email), a.PasswordHash, a.Role, a.TwoFactorEnabled, a.TwoFactorSecret)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return repository.ErrConflict
	}
	return err
}

func (r *accountRepo) SetTwoFactorSecret(ctx context.Context, id string, sealed *string) error {
	const query = `UPDATE account SET two_factor_secret = $2, updated_at = NOW() WHERE id = $1`
	return execOne(ctx, r.pool, query, id, sealed)
}

func (r *accountRepo) SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error {
	const query = `UPDATE account SET two_factor_enabled = $2, updated_at = NOW() WHERE id = $1`
	return execOne(ctx, r.pool, query, id, enabled)
}

func (r *accountRepo) ClearTwoFactor(ctx context.Context, id string) error {
	const query = `UPDATE account SET two_factor_enabled = FALSE, two_factor_secret = NULL, updated_at = NOW() WHERE id = $1`
	return execOne(ctx, r.pool, query, id)
}

// execOne ejecuta un UPDATE y mapea 0 filas a ErrNotFound.
func execOne(ctx context.Context, pool *pgxpool.Pool, query string, args ...any) error {
	tag, err := pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
