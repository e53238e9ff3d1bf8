package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/lexguard/internal/audit"
	"github.com/dropDatabas3/lexguard/internal/cache"
	"github.com/dropDatabas3/lexguard/internal/domain/repository"
	adminctrl "github.com/dropDatabas3/lexguard/internal/http/controllers/admin"
	authctrl "github.com/dropDatabas3/lexguard/internal/http/controllers/auth"
	healthctrl "github.com/dropDatabas3/lexguard/internal/http/controllers/health"
	secctrl "github.com/dropDatabas3/lexguard/internal/http/controllers/security"
	mw "github.com/dropDatabas3/lexguard/internal/http/middlewares"
	authsvc "github.com/dropDatabas3/lexguard/internal/http/services/auth"
	healthsvc "github.com/dropDatabas3/lexguard/internal/http/services/health"
	secsvc "github.com/dropDatabas3/lexguard/internal/http/services/security"
	jwtx "github.com/dropDatabas3/lexguard/internal/jwt"
	"github.com/dropDatabas3/lexguard/internal/metrics"
	"github.com/dropDatabas3/lexguard/internal/rate"
	"github.com/dropDatabas3/lexguard/internal/security/anomaly"
	"github.com/dropDatabas3/lexguard/internal/security/csrf"
	"github.com/dropDatabas3/lexguard/internal/security/iprisk"
	"github.com/dropDatabas3/lexguard/internal/security/password"
	"github.com/dropDatabas3/lexguard/internal/security/totp"
	"github.com/dropDatabas3/lexguard/internal/session"
	"github.com/dropDatabas3/lexguard/internal/store/memory"
)

const testPassword = "correct horse battery"

var fastArgon = password.Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLen: 32}

type harness struct {
	srv   *httptest.Server
	store *memory.Store
	audit *audit.Logger
}

func newHarness(t *testing.T, opts ...func(*Deps)) *harness {
	t.Helper()
	ctx := context.Background()

	st := memory.New()
	hash, err := password.Hash(fastArgon, testPassword)
	require.NoError(t, err)
	require.NoError(t, st.Create(ctx, repository.Account{ID: "acc-user", Email: "ana@firm.test", PasswordHash: hash, Role: repository.RoleUser}))
	require.NoError(t, st.Create(ctx, repository.Account{ID: "acc-admin", Email: "admin@firm.test", PasswordHash: hash, Role: repository.RoleAdmin}))

	m, err := metrics.New(nil)
	require.NoError(t, err)

	auditLog := audit.New(st, audit.Config{}, nil, audit.Hooks{OnDrop: m.AuditDropped, OnWriteError: m.AuditWriteFailed})
	t.Cleanup(func() { _ = auditLog.Close(context.Background()) })

	sessions := session.NewStore(cache.NewMemory("test:"), session.DefaultMaxAge, session.CookieConfig{}, nil)
	csrfSvc := csrf.NewService(nil)
	issuer, err := jwtx.NewIssuer("lexguard-test", []byte(strings.Repeat("s", 32)), 0, nil)
	require.NoError(t, err)

	totpMgr := totp.NewManager(totp.Deps{
		Accounts:    st,
		BackupCodes: st,
		Passwords:   password.Checker{},
		Audit:       auditLog,
		Config:      totp.DefaultConfig(),
	})
	detector := anomaly.NewDetector(st, nil, anomaly.DefaultConfig())
	recorder := &anomaly.Recorder{Audit: auditLog, Deduper: anomaly.NewDeduper(time.Minute), OnDetected: m.Anomaly}

	login := authsvc.NewLoginService(authsvc.LoginDeps{
		Accounts:   st,
		Passwords:  password.Checker{},
		TwoFactor:  totpMgr,
		Challenges: issuer,
		Replay:     cache.NewMemory("mfa:"),
		Sessions:   sessions,
		CSRF:       csrfSvc,
		Detector:   detector,
		Recorder:   recorder,
		Audit:      auditLog,
	})
	logout := authsvc.NewLogoutService(authsvc.LogoutDeps{Sessions: sessions, Audit: auditLog})

	deps := Deps{
		Auth:     authctrl.NewControllers(login, logout, sessions),
		Security: secctrl.NewControllers(totpMgr, secsvc.NewCSRFService(secsvc.CSRFDeps{Tokens: csrfSvc, Sessions: sessions})),
		Admin:    adminctrl.NewControllers(audit.NewReader(st)),
		Health: healthctrl.NewHealthController(healthsvc.NewHealthService(healthsvc.Deps{
			Checks:  map[string]healthsvc.Pinger{"store": st},
			Version: "test",
		})),
		Metrics:         m,
		Sessions:        sessions,
		Integrity:       session.NewValidator(session.DefaultMaxAge, nil),
		CSRF:            csrfSvc,
		CSRFPolicy:      csrf.DefaultPolicy(),
		Audit:           auditLog,
		Limiter:         rate.NewMemoryLimiter("rl:global:", 2000, 10*time.Minute, nil),
		Policies:        rate.NewPolicySet(rate.MemoryFactory(nil), rate.DefaultPolicies()...),
		IPRisk:          iprisk.NewEvaluator(iprisk.NewCachedBlacklist(st, time.Second, nil), st, iprisk.DefaultConfig(), nil),
		Anomaly:         detector,
		AnomalyRecorder: recorder,
	}
	for _, o := range opts {
		o(&deps)
	}

	srv := httptest.NewServer(New(deps))
	t.Cleanup(srv.Close)
	return &harness{srv: srv, store: st, audit: auditLog}
}

// client representa un navegador con su propio jar de cookies.
type client struct {
	t    *testing.T
	base string
	http *http.Client
	csrf string
	// ua reemplaza el User-Agent por defecto del cliente Go.
	ua string
}

func (h *harness) newClient(t *testing.T) *client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, base: h.srv.URL, http: &http.Client{Jar: jar}}
}

func (c *client) do(method, path string, body any) (*http.Response, map[string]any) {
	c.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.csrf != "" {
		req.Header.Set(mw.CSRFHeader, c.csrf)
	}
	if c.ua != "" {
		req.Header.Set("User-Agent", c.ua)
	}
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

// login completa el login de un paso y guarda el token CSRF.
func (c *client) login(email string) {
	c.t.Helper()
	resp, body := c.do(http.MethodPost, "/login", map[string]string{"email": email, "password": testPassword})
	require.Equal(c.t, http.StatusOK, resp.StatusCode, body)
	c.csrf, _ = body["csrf_token"].(string)
	require.NotEmpty(c.t, c.csrf)
}
