package middlewares

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dropDatabas3/lexguard/internal/audit"
	"github.com/dropDatabas3/lexguard/internal/rate"
	"github.com/dropDatabas3/lexguard/internal/security"
	"github.com/dropDatabas3/lexguard/internal/security/anomaly"
	"github.com/dropDatabas3/lexguard/internal/security/csrf"
	"github.com/dropDatabas3/lexguard/internal/security/iprisk"
	"github.com/dropDatabas3/lexguard/internal/session"
	"github.com/dropDatabas3/lexguard/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	WithSecurityHeaders()(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	h := rec.Header()
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "max-age=31536000; includeSubDomains", h.Get("Strict-Transport-Security"))
	assert.Contains(t, h.Get("Content-Security-Policy"), "default-src 'none'")
	assert.Equal(t, "no-referrer", h.Get("Referrer-Policy"))
	assert.NotEmpty(t, h.Get("Permissions-Policy"))
	assert.Equal(t, "same-origin", h.Get("Cross-Origin-Opener-Policy"))
}

func TestRequestID_PropagatesOrGenerates(t *testing.T) {
	var seen string
	h := WithRequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "abc-123", seen)
	require.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Len(t, seen, 36)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.1.1:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	require.Equal(t, "10.1.1.1", ClientIP(r, false))
	require.Equal(t, "203.0.113.7", ClientIP(r, true))
}

func TestRecover(t *testing.T) {
	h := WithRecover()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSanitize_QueryAndNestedBody(t *testing.T) {
	var gotQuery string
	var gotBody map[string]any
	h := WithSanitize(0)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
	}))

	body := `{"email":"a@b.c","$where":"1","nested":{"a.b":1,"ok":true,"list":[{"__proto__":{"x":1},"keep":2}]},"constructor":1}`
	req := httptest.NewRequest(http.MethodPost, "/login?$gt=1&page=2&a.b=3", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, "page=2", gotQuery)
	require.Equal(t, "a@b.c", gotBody["email"])
	require.NotContains(t, gotBody, "$where")
	require.NotContains(t, gotBody, "constructor")
	nested := gotBody["nested"].(map[string]any)
	require.NotContains(t, nested, "a.b")
	require.Equal(t, true, nested["ok"])
	item := nested["list"].([]any)[0].(map[string]any)
	require.NotContains(t, item, "__proto__")
	require.EqualValues(t, 2, item["keep"])
}

func TestSanitize_BodyLimitAndInvalidJSON(t *testing.T) {
	h := WithSanitize(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_, _ = w.Write(b)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":"`+strings.Repeat("x", 64)+`"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{bad`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "{bad", rec.Body.String())
}

func TestUnsafeKey(t *testing.T) {
	for _, k := range []string{"$ne", "a.b", "__proto__", "constructor", "prototype"} {
		require.True(t, UnsafeKey(k), k)
	}
	for _, k := range []string{"email", "proto", "_csrf", "code"} {
		require.False(t, UnsafeKey(k), k)
	}
}

func TestRateLimit_2001stRequestRejectedOtherIPUnaffected(t *testing.T) {
	clock := security.FixedClock(time.Date(2025, 1, 1, 12, 1, 0, 0, time.UTC))
	a := &recordingAudit{}
	h := Chain(okHandler,
		WithClientIP(false),
		WithAPIErrorAudit(a),
		WithRateLimit(RateLimitConfig{
			Limiter: rate.NewMemoryLimiter("rl:global:", 2000, 10*time.Minute, clock),
			Exempt:  []string{"/healthz"},
		}),
	)

	for i := 0; i < 2000; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, withIP(httptest.NewRequest(http.MethodGet, "/x", nil), "198.51.100.1"))
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withIP(httptest.NewRequest(http.MethodGet, "/x", nil), "198.51.100.1"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	require.Equal(t, []string{audit.EventAPIError}, a.types())
	require.Equal(t, 429, a.last().Details["status"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, withIP(httptest.NewRequest(http.MethodGet, "/x", nil), "198.51.100.2"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, withIP(httptest.NewRequest(http.MethodGet, "/healthz", nil), "198.51.100.1"))
	require.Equal(t, http.StatusOK, rec.Code)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (rate.Result, error) {
	return rate.Result{}, errors.New("redis down")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	rec := httptest.NewRecorder()
	WithRateLimit(RateLimitConfig{Limiter: brokenLimiter{}})(okHandler).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestEndpointPolicies(t *testing.T) {
	ps := rate.NewPolicySet(rate.MemoryFactory(nil), rate.DefaultPolicies()...)
	h := WithEndpointPolicies(ps, nil)(okHandler)

	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, withIP(httptest.NewRequest(http.MethodPost, "/login", nil), "192.0.2.1"))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withIP(httptest.NewRequest(http.MethodPost, "/2fa/verify", nil), "192.0.2.1"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, withIP(httptest.NewRequest(http.MethodGet, "/csrf-token", nil), "192.0.2.1"))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSlowDown_ExemptsStaticAndCancels(t *testing.T) {
	sd := rate.NewSlowDown(rate.MemoryFactory(nil), 15*time.Minute, 0, time.Hour, time.Hour)
	called := 0
	h := WithSlowDown(SlowDownConfig{SlowDown: sd, ExemptPrefixes: DefaultSlowDownExemptPrefixes()})(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called++ }))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	require.Equal(t, 1, called)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api", nil).WithContext(ctx))
	require.Equal(t, 1, called)
}

type fixedEvaluator iprisk.Assessment

func (f fixedEvaluator) Evaluate(context.Context, string, string) iprisk.Assessment {
	return iprisk.Assessment(f)
}

func TestIPRisk_BlocksAndAudits(t *testing.T) {
	a := &recordingAudit{}
	deny := fixedEvaluator{Allowed: false, Risk: iprisk.RiskHigh, Reason: iprisk.ReasonFailedAttempts, FailedAttempts: 11}
	h := Chain(okHandler, WithClientIP(false), WithIPRisk(deny, a, nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withIP(httptest.NewRequest(http.MethodPost, "/login", nil), "203.0.113.5"))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "IP_BLOCKED")
	require.Equal(t, []string{audit.EventIPBlocked}, a.types())
	require.Equal(t, "203.0.113.5", a.last().RC.IP)

	var got iprisk.Assessment
	allow := fixedEvaluator{Allowed: true, Risk: iprisk.RiskMedium}
	h = WithIPRisk(allow, a, nil)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, _ = GetRiskAssessment(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, iprisk.RiskMedium, got.Risk)
}

func TestIPRisk_BlacklistStoreDownDenies(t *testing.T) {
	st := memory.New()
	st.Fail = errors.New("connection refused")
	ev := iprisk.NewEvaluator(iprisk.NewCachedBlacklist(st, time.Minute, nil), st, iprisk.DefaultConfig(), nil)
	a := &recordingAudit{}
	h := Chain(okHandler, WithClientIP(false), WithIPRisk(ev, a, nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withIP(httptest.NewRequest(http.MethodPost, "/login", nil), "203.0.113.5"))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "IP_BLOCKED")
	require.Equal(t, []string{audit.EventIPBlocked}, a.types())
	require.Equal(t, iprisk.ReasonBlacklistUnavailable, a.last().Details["reason"])
}

func authChain(store *session.Store, a AuditLogger, clock security.Clock, h http.Handler) http.Handler {
	return Chain(h,
		WithClientIP(false),
		WithSession(store),
		RequireAuth(AuthConfig{Store: store, Validator: session.NewValidator(0, clock), Audit: a}),
	)
}

func createSession(t *testing.T, store *session.Store, created time.Time, ip string) *session.Session {
	t.Helper()
	s := &session.Session{
		AccountID: "acc-1", Role: "user", CreatedAt: created,
		UserAgent: testUA, IP: ip, CSRFToken: strings.Repeat("ab", 32), Authenticated: true,
	}
	require.NoError(t, store.Create(context.Background(), s))
	return s
}

func sessionRequest(method, path, ip string, s *session.Session) *http.Request {
	r := withIP(httptest.NewRequest(method, path, nil), ip)
	r.AddCookie(&http.Cookie{Name: "sid", Value: s.ID})
	return r
}

func TestRequireAuth_NoSession(t *testing.T) {
	rec := httptest.NewRecorder()
	authChain(newSessionStore(), nil, nil, okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_ExpiredSessionDestroyed(t *testing.T) {
	now := time.Now()
	store := newSessionStore()
	s := createSession(t, store, now.Add(-2*time.Hour), "10.0.0.1")
	a := &recordingAudit{}
	h := authChain(store, a, security.FixedClock(now.Add(23*time.Hour)), okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, sessionRequest(http.MethodGet, "/", "10.0.0.1", s))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "SESSION_INVALID")
	require.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
	require.Equal(t, []string{audit.EventSessionInvalidated}, a.types())
	require.Equal(t, "acc-1", a.last().AccountID)

	_, err := store.Get(context.Background(), s.ID)
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestRequireAuth_UserAgentMismatch(t *testing.T) {
	store := newSessionStore()
	s := createSession(t, store, time.Now(), "10.0.0.1")
	req := sessionRequest(http.MethodGet, "/", "10.0.0.1", s)
	req.Header.Set("User-Agent", "curl/8.0")

	rec := httptest.NewRecorder()
	authChain(store, nil, nil, okHandler).ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_IPChangeIsSoft(t *testing.T) {
	store := newSessionStore()
	s := createSession(t, store, time.Now(), "10.0.0.1")
	a := &recordingAudit{}
	var anomalies []anomaly.Anomaly
	h := authChain(store, a, nil, http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		anomalies = GetAnomalies(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, sessionRequest(http.MethodGet, "/", "172.16.0.9", s))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{audit.EventSessionIPChanged}, a.types())
	require.Len(t, anomalies, 1)
	require.Equal(t, anomaly.TypeSessionIPChange, anomalies[0].Type)

	stored, err := store.Get(context.Background(), s.ID)
	require.NoError(t, err)
	require.Equal(t, "172.16.0.9", stored.IP)
}

func TestRequireRole(t *testing.T) {
	store := newSessionStore()
	s := createSession(t, store, time.Now(), "10.0.0.1")
	h := Chain(okHandler, WithSession(store), RequireRole("admin"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, sessionRequest(http.MethodGet, "/admin/security-audit", "10.0.0.1", s))
	require.Equal(t, http.StatusForbidden, rec.Code)

	s.Role = "admin"
	require.NoError(t, store.Save(context.Background(), s))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, sessionRequest(http.MethodGet, "/admin/security-audit", "10.0.0.1", s))
	require.Equal(t, http.StatusOK, rec.Code)
}

func csrfChain(store *session.Store, a AuditLogger) http.Handler {
	return Chain(okHandler,
		WithClientIP(false),
		WithSession(store),
		RequireCSRF(CSRFConfig{Validator: csrf.NewService(nil), Policy: csrf.DefaultPolicy(), Audit: a}),
	)
}

func TestRequireCSRF(t *testing.T) {
	store := newSessionStore()
	s := createSession(t, store, time.Now(), "10.0.0.1")
	a := &recordingAudit{}
	h := csrfChain(store, a)

	cases := []struct {
		name   string
		req    func() *http.Request
		status int
	}{
		{"missing token", func() *http.Request {
			return sessionRequest(http.MethodPost, "/2fa/setup", "10.0.0.1", s)
		}, http.StatusForbidden},
		{"wrong token", func() *http.Request {
			r := sessionRequest(http.MethodPost, "/2fa/setup", "10.0.0.1", s)
			r.Header.Set(CSRFHeader, strings.Repeat("cd", 32))
			return r
		}, http.StatusForbidden},
		{"truncated token", func() *http.Request {
			r := sessionRequest(http.MethodPost, "/2fa/setup", "10.0.0.1", s)
			r.Header.Set(CSRFHeader, s.CSRFToken[:63])
			return r
		}, http.StatusForbidden},
		{"header token", func() *http.Request {
			r := sessionRequest(http.MethodPost, "/2fa/setup", "10.0.0.1", s)
			r.Header.Set(CSRFHeader, s.CSRFToken)
			return r
		}, http.StatusOK},
		{"json body token", func() *http.Request {
			r := sessionRequest(http.MethodPost, "/2fa/enable", "10.0.0.1", s)
			r.Body = io.NopCloser(bytes.NewBufferString(`{"code":"123456","_csrf":"` + s.CSRFToken + `"}`))
			r.Header.Set("Content-Type", "application/json")
			return r
		}, http.StatusOK},
		{"safe method", func() *http.Request {
			return sessionRequest(http.MethodGet, "/csrf-token", "10.0.0.1", s)
		}, http.StatusOK},
		{"exempt login", func() *http.Request {
			return withIP(httptest.NewRequest(http.MethodPost, "/login", nil), "10.0.0.1")
		}, http.StatusOK},
		{"no session", func() *http.Request {
			r := withIP(httptest.NewRequest(http.MethodPost, "/logout", nil), "10.0.0.1")
			r.Header.Set(CSRFHeader, s.CSRFToken)
			return r
		}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tc.req())
			require.Equal(t, tc.status, rec.Code)
		})
	}
	require.Contains(t, a.types(), audit.EventCSRFViolation)
}

func TestRequireCSRF_BodyIsRestored(t *testing.T) {
	store := newSessionStore()
	s := createSession(t, store, time.Now(), "10.0.0.1")
	var got map[string]string
	h := Chain(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}), WithSession(store), RequireCSRF(CSRFConfig{Validator: csrf.NewService(nil), Policy: csrf.DefaultPolicy()}))

	r := sessionRequest(http.MethodPost, "/2fa/enable", "10.0.0.1", s)
	r.Body = io.NopCloser(bytes.NewBufferString(`{"code":"123456","_csrf":"` + s.CSRFToken + `"}`))
	r.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(httptest.NewRecorder(), r)
	require.Equal(t, "123456", got["code"])
}

type stubDetector []anomaly.Anomaly

func (d stubDetector) Detect(context.Context, string, string, string, time.Time) []anomaly.Anomaly {
	return d
}

func TestAnomalyDetection_OnlyAuthenticatedAndDeduped(t *testing.T) {
	store := newSessionStore()
	s := createSession(t, store, time.Now(), "10.0.0.1")
	a := &recordingAudit{}
	var seen []anomaly.Anomaly
	h := Chain(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetAnomalies(r.Context())
	}),
		WithSession(store),
		WithAnomalyDetection(AnomalyConfig{
			Detector: stubDetector{{Type: anomaly.TypeNewIP, Severity: anomaly.SeverityMedium}},
			Recorder: &anomaly.Recorder{Audit: a, Deduper: anomaly.NewDeduper(time.Minute)},
		}),
	)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Empty(t, seen)
	require.Empty(t, a.types())

	for i := 0; i < 3; i++ {
		h.ServeHTTP(httptest.NewRecorder(), sessionRequest(http.MethodGet, "/", "10.0.0.1", s))
		require.Len(t, seen, 1)
	}
	require.Equal(t, []string{audit.EventAnomalyDetected}, a.types())
	require.Equal(t, "acc-1", a.last().AccountID)
}

func TestAPIErrorAudit_OnlyAuthAndRateStatuses(t *testing.T) {
	a := &recordingAudit{}
	for _, status := range []int{200, 400, 401, 403, 404, 429, 500} {
		status := status
		h := WithAPIErrorAudit(a)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(status) }))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	require.Equal(t, []string{audit.EventAPIError, audit.EventAPIError, audit.EventAPIError}, a.types())
}
