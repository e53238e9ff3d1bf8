package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type backupCodeRepo struct {
	pool *pgxpool.Pool
}

func (r *backupCodeRepo) ReplaceBackupCodes(ctx context.Context, accountID string, hashes []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM backup_code WHERE account_id = $1`, accountID); err != nil {
		return err
	}
	for _, h := range hashes {
		if _, err := tx.Exec(ctx,
			`INSERT INTO backup_code (account_id, code_hash, created_at) VALUES ($1, $2, NOW()) ON CONFLICT DO NOTHING`,
			accountID, h); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ConsumeBackupCode usa DELETE para que el consumo sea atómico.
func (r *backupCodeRepo) ConsumeBackupCode(ctx context.Context, accountID, hash string) (bool, error) {
	const query = `DELETE FROM backup_code WHERE account_id = $1 AND code_hash = $2`
	tag, err := r.pool.Exec(ctx, query, accountID, hash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *backupCodeRepo) DeleteBackupCodes(ctx context.Context, accountID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM backup_code WHERE account_id = $1`, accountID)
	return err
}

func (r *backupCodeRepo) CountBackupCodes(ctx context.Context, accountID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM backup_code WHERE account_id = $1`, accountID).Scan(&n)
	return n, err
}
