package totp

import (
	"context"
	"encoding/base32"
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/lexguard/internal/audit"
	"github.com/dropDatabas3/lexguard/internal/domain/repository"
	"github.com/dropDatabas3/lexguard/internal/security"
	"github.com/dropDatabas3/lexguard/internal/security/secretbox"
	"github.com/dropDatabas3/lexguard/internal/store/memory"
	"github.com/stretchr/testify/require"
)

// Secreto RFC 6238 ("12345678901234567890" en base32).
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

// Mitad de un paso de 30s, para que ±60s caiga exactamente en ±2 pasos.
var baseTime = time.Unix(1_700_000_025, 0).UTC()

type stubPasswords struct{}

func (stubPasswords) Check(_ context.Context, hash, plain string) bool {
	return hash == "hash:"+plain
}

type recordedEvent struct {
	Type      string
	AccountID string
}

type recordingAudit struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingAudit) Log(_ context.Context, eventType string, _ map[string]any, accountID string, _ *audit.RequestContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{eventType, accountID})
}

func (r *recordingAudit) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store *memory.Store
	audit *recordingAudit
	mgr   *Manager
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, DefaultConfig())
}

func newFixtureWith(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), audit: &recordingAudit{}, now: baseTime}
	require.NoError(t, f.store.Create(context.Background(), repository.Account{
		ID: "acc-1", Email: "ana@example.com", PasswordHash: "hash:pw", Role: repository.RoleUser,
	}))
	f.mgr = NewManager(Deps{
		Accounts:    f.store,
		BackupCodes: f.store,
		Passwords:   stubPasswords{},
		Audit:       f.audit,
		Clock:       security.ClockFunc(func() time.Time { return f.now }),
		Config:      cfg,
	})
	return f
}

// enableWithSecret deja la cuenta en ENABLED con un secreto conocido.
func (f *fixture) enableWithSecret(t *testing.T, secret string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.SetTwoFactorSecret(ctx, "acc-1", &secret))
	require.NoError(t, f.store.SetTwoFactorEnabled(ctx, "acc-1", true))
}

func (f *fixture) account(t *testing.T) *repository.Account {
	t.Helper()
	acc, err := f.store.GetByID(context.Background(), "acc-1")
	require.NoError(t, err)
	return acc
}

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := GenerateCode(DefaultConfig(), secret, at)
	require.NoError(t, err)
	return code
}

func TestVerifyLogin_DriftWindow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enableWithSecret(t, rfcSecret)
	acc := f.account(t)

	for _, offset := range []time.Duration{-60 * time.Second, -30 * time.Second, 0, 30 * time.Second, 60 * time.Second} {
		code := codeAt(t, rfcSecret, baseTime.Add(offset))
		v := f.mgr.VerifyLogin(context.Background(), acc, code)
		require.True(t, v.Verified, "offset %s should verify", offset)
		require.Equal(t, "totp", v.Method)
	}
	for _, offset := range []time.Duration{-90 * time.Second, 90 * time.Second} {
		code := codeAt(t, rfcSecret, baseTime.Add(offset))
		v := f.mgr.VerifyLogin(context.Background(), acc, code)
		require.False(t, v.Verified, "offset %s should fail", offset)
		require.True(t, v.Required)
	}
}

func TestVerifyLogin_PartialConfigKeepsDefaultSkew(t *testing.T) {
	t.Parallel()
	f := newFixtureWith(t, Config{Issuer: "x"})
	f.enableWithSecret(t, rfcSecret)
	acc := f.account(t)

	for _, offset := range []time.Duration{-60 * time.Second, -30 * time.Second, 30 * time.Second, 60 * time.Second} {
		v := f.mgr.VerifyLogin(context.Background(), acc, codeAt(t, rfcSecret, baseTime.Add(offset)))
		require.True(t, v.Verified, "offset %s should verify", offset)
	}
}

func TestVerifyLogin_ExplicitZeroSkewIsHonoured(t *testing.T) {
	t.Parallel()
	f := newFixtureWith(t, Config{Skew: SkewSteps(0)})
	f.enableWithSecret(t, rfcSecret)
	acc := f.account(t)

	require.True(t, f.mgr.VerifyLogin(context.Background(), acc, codeAt(t, rfcSecret, baseTime)).Verified)
	v := f.mgr.VerifyLogin(context.Background(), acc, codeAt(t, rfcSecret, baseTime.Add(-30*time.Second)))
	require.False(t, v.Verified)
}

func TestVerifyLogin_WithoutTwoFactor(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	v := f.mgr.VerifyLogin(context.Background(), f.account(t), "")
	require.Equal(t, Verification{Verified: true, Required: false}, v)
}

func TestVerifyLogin_MissingOrGarbageCode(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enableWithSecret(t, rfcSecret)
	acc := f.account(t)

	require.Equal(t, Verification{Required: true}, f.mgr.VerifyLogin(context.Background(), acc, ""))
	require.Equal(t, Verification{Required: true}, f.mgr.VerifyLogin(context.Background(), acc, "abcdef"))
	require.Equal(t, Verification{Required: true}, f.mgr.VerifyLogin(context.Background(), nil, "123456"))
}

func TestVerifyLogin_CorruptSecretDegrades(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	box, err := secretbox.New(base64.StdEncoding.EncodeToString(make([]byte, 32)))
	require.NoError(t, err)
	f.mgr.sealer = box
	f.enableWithSecret(t, "not-sealed")

	v := f.mgr.VerifyLogin(context.Background(), f.account(t), "123456")
	require.Equal(t, Verification{Required: true}, v)
}

func TestStateMachine_SetupEnableDisable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.mgr.Enable(ctx, "acc-1", "123456")
	require.ErrorIs(t, err, ErrNotInitiated)

	prov, err := f.mgr.GenerateSecret(ctx, "acc-1")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(prov.URI, "otpauth://totp/"))
	require.Contains(t, prov.URI, "issuer=LexGuard")
	require.True(t, strings.HasPrefix(prov.QRCode, "data:image/png;base64,"))
	require.Len(t, prov.BackupCodes, 8)

	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(prov.Secret)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(raw), 20)

	acc := f.account(t)
	require.False(t, acc.TwoFactorEnabled)
	require.True(t, acc.HasPendingSecret())

	// Un código inválido no muta el estado.
	wrong := codeAt(t, prov.Secret, baseTime.Add(10*time.Minute))
	_, err = f.mgr.Enable(ctx, "acc-1", wrong)
	require.ErrorIs(t, err, ErrInvalidCode)
	require.False(t, f.account(t).TwoFactorEnabled)

	codes, err := f.mgr.Enable(ctx, "acc-1", codeAt(t, prov.Secret, baseTime))
	require.NoError(t, err)
	require.Len(t, codes, 8)
	require.True(t, f.account(t).TwoFactorEnabled)

	_, err = f.mgr.Enable(ctx, "acc-1", codeAt(t, prov.Secret, baseTime))
	require.ErrorIs(t, err, ErrAlreadyEnabled)
	_, err = f.mgr.GenerateSecret(ctx, "acc-1")
	require.ErrorIs(t, err, ErrAlreadyEnabled)

	// El lote de setup fue reemplazado por el de enable.
	used, _ := f.store.ConsumeBackupCode(ctx, "acc-1", hashCodes(prov.BackupCodes[:1])[0])
	require.False(t, used)

	require.ErrorIs(t, f.mgr.Disable(ctx, "acc-1", "nope", codeAt(t, prov.Secret, baseTime)), ErrInvalidPassword)
	require.ErrorIs(t, f.mgr.Disable(ctx, "acc-1", "pw", wrong), ErrInvalidCode)
	require.True(t, f.account(t).TwoFactorEnabled)

	require.NoError(t, f.mgr.Disable(ctx, "acc-1", "pw", codeAt(t, prov.Secret, baseTime.Add(30*time.Second))))
	acc = f.account(t)
	require.False(t, acc.TwoFactorEnabled)
	require.Nil(t, acc.TwoFactorSecret)
	n, _ := f.store.CountBackupCodes(ctx, "acc-1")
	require.Zero(t, n)

	require.ErrorIs(t, f.mgr.Disable(ctx, "acc-1", "pw", "123456"), ErrNotEnabled)
	require.Equal(t, []string{audit.EventTwoFactorEnabled, audit.EventTwoFactorDisabled}, f.audit.types())
}

func TestGenerateSecret_SealsAtRest(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	box, err := secretbox.New(base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32))))
	require.NoError(t, err)
	f.mgr.sealer = box

	prov, err := f.mgr.GenerateSecret(context.Background(), "acc-1")
	require.NoError(t, err)
	stored := *f.account(t).TwoFactorSecret
	require.NotEqual(t, prov.Secret, stored)

	codes, err := f.mgr.Enable(context.Background(), "acc-1", codeAt(t, prov.Secret, baseTime))
	require.NoError(t, err)
	require.NotEmpty(t, codes)
}

func TestVerifyLogin_BackupCodeIsOneTime(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	prov, err := f.mgr.GenerateSecret(ctx, "acc-1")
	require.NoError(t, err)
	codes, err := f.mgr.Enable(ctx, "acc-1", codeAt(t, prov.Secret, baseTime))
	require.NoError(t, err)

	acc := f.account(t)
	v := f.mgr.VerifyLogin(ctx, acc, codes[0])
	require.True(t, v.Verified)
	require.Equal(t, "backup_code", v.Method)

	v = f.mgr.VerifyLogin(ctx, acc, codes[0])
	require.False(t, v.Verified)
	require.True(t, v.Required)
}

func TestGenerateBackupCodes_FormatAndEntropy(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	first, err := f.mgr.GenerateBackupCodes()
	require.NoError(t, err)
	second, err := f.mgr.GenerateBackupCodes()
	require.NoError(t, err)

	require.Len(t, first, 8)
	seen := map[string]bool{}
	for _, c := range first {
		require.Len(t, c, 8)
		require.True(t, isDigits(c))
		require.False(t, seen[c], "duplicate code in batch")
		seen[c] = true
	}
	for _, c := range second {
		require.False(t, seen[c], "batches share code %s", c)
	}
}

// sequenceReader produce 0,1,2,...,249,0,1,... de forma determinista.
type sequenceReader struct{ n byte }

func (s *sequenceReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = s.n
		s.n = (s.n + 1) % 250
	}
	return len(p), nil
}

func TestGenerateBackupCodes_InjectedRandIsDeterministic(t *testing.T) {
	t.Parallel()
	build := func() *Manager {
		return NewManager(Deps{Rand: &sequenceReader{}, Config: DefaultConfig()})
	}
	a, err := build().GenerateBackupCodes()
	require.NoError(t, err)
	b, err := build().GenerateBackupCodes()
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Equal(t, "01234567", a[0])
}
