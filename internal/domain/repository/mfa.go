package repository

import "context"

// BackupCodeRepository guarda los códigos de respaldo hasheados (SHA-256 hex).
type BackupCodeRepository interface {
	// ReplaceBackupCodes reemplaza el lote vigente de la cuenta.
	ReplaceBackupCodes(ctx context.Context, accountID string, hashes []string) error

	// ConsumeBackupCode borra el código si existe. Retorna true si fue consumido.
	// Debe ser atómico: dos requests concurrentes con el mismo código no pueden
	// consumirlo ambas.
	ConsumeBackupCode(ctx context.Context, accountID, hash string) (bool, error)

	// DeleteBackupCodes elimina todos los códigos de la cuenta.
	DeleteBackupCodes(ctx context.Context, accountID string) error

	// CountBackupCodes retorna cuántos códigos quedan sin usar.
	CountBackupCodes(ctx context.Context, accountID string) (int, error)
}
