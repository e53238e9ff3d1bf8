// Package totp implementa el segundo factor: secretos RFC 6238, códigos de
// respaldo y la máquina de estados DISABLED → SECRET_PENDING → ENABLED.
package totp

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"io"
	"strings"

	"github.com/dropDatabas3/lexguard/internal/audit"
	"github.com/dropDatabas3/lexguard/internal/domain/repository"
	"github.com/dropDatabas3/lexguard/internal/observability/logger"
	"github.com/dropDatabas3/lexguard/internal/security"
	"github.com/dropDatabas3/lexguard/internal/security/secretbox"
	tokens "github.com/dropDatabas3/lexguard/internal/security/token"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var (
	ErrAlreadyEnabled  = errors.New("totp: two-factor already enabled")
	ErrNotInitiated    = errors.New("totp: setup not initiated")
	ErrNotEnabled      = errors.New("totp: two-factor not enabled")
	ErrInvalidCode     = errors.New("totp: invalid code")
	ErrInvalidPassword = errors.New("totp: invalid password")
)

// PasswordChecker verifica una contraseña contra el hash de la cuenta.
type PasswordChecker interface {
	Check(ctx context.Context, hash, plain string) bool
}

// AuditLogger registra eventos de 2FA.
type AuditLogger interface {
	Log(ctx context.Context, eventType string, details map[string]any, accountID string, rc *audit.RequestContext)
}

// Deps agrupa las dependencias del Manager.
type Deps struct {
	Accounts    repository.AccountRepository
	BackupCodes repository.BackupCodeRepository
	Passwords   PasswordChecker
	Sealer      secretbox.Sealer
	Audit       AuditLogger
	Clock       security.Clock
	// Rand es la fuente de entropía; nil usa crypto/rand.
	Rand   io.Reader
	Config Config
}

// Manager es dueño del estado 2FA de las cuentas.
type Manager struct {
	accounts    repository.AccountRepository
	backupCodes repository.BackupCodeRepository
	passwords   PasswordChecker
	sealer      secretbox.Sealer
	audit       AuditLogger
	clock       security.Clock
	rand        io.Reader
	cfg         Config
}

func NewManager(d Deps) *Manager {
	d.Config.defaults()
	if d.Sealer == nil {
		d.Sealer = secretbox.Plain{}
	}
	return &Manager{
		accounts:    d.Accounts,
		backupCodes: d.BackupCodes,
		passwords:   d.Passwords,
		sealer:      d.Sealer,
		audit:       d.Audit,
		clock:       security.OrSystem(d.Clock),
		rand:        d.Rand,
		cfg:         d.Config,
	}
}

func (m *Manager) Name() string { return "totp" }

func (m *Manager) Criticality() security.Criticality { return security.HardGate }

// Provisioning es el resultado de GenerateSecret.
type Provisioning struct {
	Secret string
	URI    string
	// QRCode es un data URL PNG listo para un <img>.
	QRCode      string
	BackupCodes []string
}

// Verification es el resultado de VerifyLogin.
type Verification struct {
	Verified bool
	Required bool
	// Method es "totp" o "backup_code" cuando Verified y Required.
	Method string
}

// GenerateSecret crea un secreto pendiente de confirmación.
func (m *Manager) GenerateSecret(ctx context.Context, accountID string) (*Provisioning, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("totp.generate_secret"), logger.AccountID(accountID))

	acc, err := m.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if acc.TwoFactorEnabled {
		return nil, ErrAlreadyEnabled
	}

	opts := totp.GenerateOpts{
		Issuer:      m.cfg.Issuer,
		AccountName: acc.Email,
		Period:      uint(m.cfg.Period.Seconds()),
		SecretSize:  m.cfg.SecretSize,
		Digits:      m.cfg.digits(),
		Algorithm:   otp.AlgorithmSHA1,
	}
	if m.rand != nil {
		opts.Rand = m.rand
	}
	if opts.AccountName == "" {
		opts.AccountName = acc.ID
	}
	key, err := totp.Generate(opts)
	if err != nil {
		return nil, fmt.Errorf("generate totp key: %w", err)
	}

	qr, err := qrDataURL(key, m.cfg.QRSize)
	if err != nil {
		return nil, err
	}

	codes, err := m.GenerateBackupCodes()
	if err != nil {
		return nil, err
	}

	sealed, err := m.sealer.Seal(key.Secret())
	if err != nil {
		return nil, fmt.Errorf("seal secret: %w", err)
	}
	if err := m.accounts.SetTwoFactorSecret(ctx, accountID, &sealed); err != nil {
		return nil, fmt.Errorf("store secret: %w", err)
	}
	if err := m.backupCodes.ReplaceBackupCodes(ctx, accountID, hashCodes(codes)); err != nil {
		return nil, fmt.Errorf("store backup codes: %w", err)
	}

	log.Info("totp secret provisioned")
	return &Provisioning{Secret: key.Secret(), URI: key.URL(), QRCode: qr, BackupCodes: codes}, nil
}

// Enable confirma el secreto pendiente con un código válido y emite un lote
// nuevo de códigos de respaldo.
func (m *Manager) Enable(ctx context.Context, accountID, code string) ([]string, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("totp.enable"), logger.AccountID(accountID))

	acc, err := m.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if acc.TwoFactorEnabled {
		return nil, ErrAlreadyEnabled
	}
	if !acc.HasPendingSecret() {
		return nil, ErrNotInitiated
	}

	ok, err := m.verifyTOTP(acc, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Debug("totp enable rejected")
		return nil, ErrInvalidCode
	}

	codes, err := m.GenerateBackupCodes()
	if err != nil {
		return nil, err
	}
	if err := m.backupCodes.ReplaceBackupCodes(ctx, accountID, hashCodes(codes)); err != nil {
		return nil, fmt.Errorf("store backup codes: %w", err)
	}
	if err := m.accounts.SetTwoFactorEnabled(ctx, accountID, true); err != nil {
		return nil, fmt.Errorf("enable two-factor: %w", err)
	}

	m.auditLog(ctx, audit.EventTwoFactorEnabled, accountID, map[string]any{"method": "totp"})
	log.Info("two-factor enabled")
	return codes, nil
}

// Disable requiere contraseña y código TOTP válidos.
func (m *Manager) Disable(ctx context.Context, accountID, password, code string) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("totp.disable"), logger.AccountID(accountID))

	acc, err := m.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if !acc.TwoFactorEnabled {
		return ErrNotEnabled
	}
	if m.passwords == nil || !m.passwords.Check(ctx, acc.PasswordHash, password) {
		return ErrInvalidPassword
	}
	ok, err := m.verifyTOTP(acc, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCode
	}

	if err := m.accounts.ClearTwoFactor(ctx, accountID); err != nil {
		return fmt.Errorf("clear two-factor: %w", err)
	}
	if err := m.backupCodes.DeleteBackupCodes(ctx, accountID); err != nil {
		log.Warn("delete backup codes failed", logger.Err(err))
	}

	m.auditLog(ctx, audit.EventTwoFactorDisabled, accountID, nil)
	log.Info("two-factor disabled")
	return nil
}

// VerifyLogin decide la segunda fase del login. Nunca retorna error: cualquier
// falla interna degrada a {Verified:false, Required:true}.
func (m *Manager) VerifyLogin(ctx context.Context, acc *repository.Account, code string) Verification {
	if acc == nil {
		return Verification{Required: true}
	}
	if !acc.TwoFactorEnabled {
		return Verification{Verified: true, Required: false}
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return Verification{Required: true}
	}

	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("totp.verify_login"), logger.AccountID(acc.ID))

	if len(code) == m.cfg.Digits {
		ok, err := m.verifyTOTP(acc, code)
		if err != nil {
			log.Warn("totp verification failed", logger.Err(err))
		}
		if ok {
			return Verification{Verified: true, Required: true, Method: "totp"}
		}
	}
	if len(code) == m.cfg.BackupCodeLength && isDigits(code) {
		used, err := m.backupCodes.ConsumeBackupCode(ctx, acc.ID, tokens.SHA256Hex(code))
		if err != nil {
			log.Warn("backup code lookup failed", logger.Err(err))
			return Verification{Required: true}
		}
		if used {
			log.Info("backup code consumed")
			return Verification{Verified: true, Required: true, Method: "backup_code"}
		}
	}
	return Verification{Required: true}
}

// GenerateBackupCodes genera un lote con la fuente criptográfica configurada.
func (m *Manager) GenerateBackupCodes() ([]string, error) {
	codes := make([]string, 0, m.cfg.BackupCodeCount)
	seen := make(map[string]struct{}, m.cfg.BackupCodeCount)
	for len(codes) < m.cfg.BackupCodeCount {
		c, err := tokens.RandomDigits(m.rand, m.cfg.BackupCodeLength)
		if err != nil {
			return nil, fmt.Errorf("generate backup code: %w", err)
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		codes = append(codes, c)
	}
	return codes, nil
}

func (m *Manager) verifyTOTP(acc *repository.Account, code string) (bool, error) {
	if acc.TwoFactorSecret == nil {
		return false, nil
	}
	code = strings.TrimSpace(code)
	if len(code) != m.cfg.Digits || !isDigits(code) {
		return false, nil
	}
	secret, err := m.sealer.Open(*acc.TwoFactorSecret)
	if err != nil {
		return false, fmt.Errorf("open secret: %w", err)
	}
	ok, err := totp.ValidateCustom(code, secret, m.clock.Now(), m.cfg.validateOpts())
	if err != nil {
		return false, fmt.Errorf("validate code: %w", err)
	}
	return ok, nil
}

func (m *Manager) auditLog(ctx context.Context, event, accountID string, details map[string]any) {
	if m.audit == nil {
		return
	}
	m.audit.Log(ctx, event, details, accountID, audit.RequestContextFrom(ctx))
}

func qrDataURL(key *otp.Key, size int) (string, error) {
	img, err := key.Image(size, size)
	if err != nil {
		return "", fmt.Errorf("render qr: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func hashCodes(codes []string) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = tokens.SHA256Hex(c)
	}
	return out
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
