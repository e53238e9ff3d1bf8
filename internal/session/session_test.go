package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dropDatabas3/lexguard/internal/cache"
	"github.com/dropDatabas3/lexguard/internal/security"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func sess(created time.Time) *Session {
	return &Session{AccountID: "acc-1", CreatedAt: created, UserAgent: "ua", IP: "10.0.0.1"}
}

func TestValidate_Age(t *testing.T) {
	t.Parallel()
	v := NewValidator(24*time.Hour, security.FixedClock(now))

	require.Equal(t, Verdict{Reason: ReasonExpired}, v.Validate(sess(now.Add(-25*time.Hour)), "ua", "10.0.0.1"))
	require.Equal(t, Verdict{Valid: true}, v.Validate(sess(now.Add(-time.Hour)), "ua", "10.0.0.1"))
}

func TestValidate_Missing(t *testing.T) {
	t.Parallel()
	v := NewValidator(0, security.FixedClock(now))
	require.Equal(t, ReasonMissing, v.Validate(nil, "ua", "ip").Reason)
	require.Equal(t, ReasonMissing, v.Validate(&Session{CreatedAt: now}, "ua", "ip").Reason)
	require.Equal(t, ReasonMissing, v.Validate(&Session{AccountID: "a"}, "ua", "ip").Reason)
}

func TestValidate_UserAgentMustMatchExactly(t *testing.T) {
	t.Parallel()
	v := NewValidator(0, security.FixedClock(now))
	got := v.Validate(sess(now.Add(-time.Minute)), "UA", "10.0.0.1")
	require.False(t, got.Valid)
	require.Equal(t, ReasonUserAgentMismatch, got.Reason)
}

func TestValidate_IPDriftIsSoft(t *testing.T) {
	t.Parallel()
	v := NewValidator(0, security.FixedClock(now))
	got := v.Validate(sess(now.Add(-time.Minute)), "ua", "192.168.1.9")
	require.True(t, got.Valid)
	require.True(t, got.IPChanged)
}

func TestStore_Lifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewStore(cache.NewMemory(""), time.Hour, CookieConfig{Secure: true}, nil)

	s := &Session{AccountID: "acc-1", CreatedAt: time.Now(), UserAgent: "ua", CSRFToken: "tok", Authenticated: true}
	require.NoError(t, st.Create(ctx, s))
	require.NotEmpty(t, s.ID)

	got, err := st.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, "acc-1", got.AccountID)
	require.Equal(t, "tok", got.CSRFToken)
	require.True(t, got.Authenticated)

	c := st.Cookie(s)
	require.Equal(t, "sid", c.Name)
	require.True(t, c.HttpOnly)
	require.True(t, c.Secure)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(c)
	require.Equal(t, s.ID, st.IDFromRequest(r))

	require.NoError(t, st.Destroy(ctx, s.ID))
	_, err = st.Get(ctx, s.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, -1, st.DeletionCookie().MaxAge)
}
