package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "dev", c.App.Env)
	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, "memory", c.Storage.Driver)
	assert.Equal(t, "memory", c.Cache.Kind)
	assert.Equal(t, 24*time.Hour, c.Session.TTL.Duration)
	assert.Equal(t, 5*time.Minute, c.MFA.ChallengeTTL.Duration)
	assert.Equal(t, int64(2000), c.Rate.MaxRequests)
	assert.Equal(t, 10*time.Minute, c.Rate.Window.Duration)
	assert.Equal(t, int64(10), c.Rate.Auth.Limit)
	assert.Equal(t, 500*time.Millisecond, c.Rate.SlowDown.Step.Duration)
	assert.Equal(t, 6, c.Anomaly.ActiveFrom)
	assert.Equal(t, 22, c.Anomaly.ActiveTo)
	assert.True(t, c.Rate.Enabled)
	assert.True(t, c.Anomaly.Enabled)
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	p := writeYAML(t, `
server:
  addr: ":9000"
  cors_allowed_origins: ["https://app.firm.test"]
session:
  ttl: 12h
  secure: true
rate:
  enabled: false
  slow_down:
    step: 250ms
`)
	t.Setenv("LEXGUARD_SERVER_ADDR", ":9100")
	t.Setenv("LEXGUARD_SERVER_CORS_ALLOWED_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("LEXGUARD_SESSION_TTL", "6h")

	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, ":9100", c.Server.Addr)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, c.Server.CORSAllowedOrigins)
	assert.Equal(t, 6*time.Hour, c.Session.TTL.Duration)
	assert.True(t, c.Session.Secure)
	assert.False(t, c.Rate.Enabled)
	assert.Equal(t, 250*time.Millisecond, c.Rate.SlowDown.Step.Duration)
}

func TestLoad_InvalidDuration(t *testing.T) {
	p := writeYAML(t, "session:\n  ttl: tomorrow\n")
	_, err := Load(p)
	require.Error(t, err)
}

func TestValidate_Prod(t *testing.T) {
	t.Setenv("LEXGUARD_APP_ENV", "prod")
	_, err := Load("")
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "storage.driver=memory")
	assert.Contains(t, msg, "mfa.signing_key is required")
	assert.Contains(t, msg, "security.secretbox_key is required")

	t.Setenv("LEXGUARD_STORAGE_DRIVER", "postgres")
	t.Setenv("LEXGUARD_STORAGE_DSN", "postgres://lexguard@localhost/lexguard")
	t.Setenv("LEXGUARD_MFA_SIGNING_KEY", strings.Repeat("k", 32))
	t.Setenv("LEXGUARD_SECRETBOX_KEY", strings.Repeat("ab", 32))
	t.Setenv("LEXGUARD_SESSION_SECURE", "true")
	c, err := Load("")
	require.NoError(t, err)
	assert.True(t, c.IsProd())
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown driver":   "storage:\n  driver: sqlite\n",
		"redis needs addr": "cache:\n  kind: redis\n",
		"short key":        "mfa:\n  signing_key: short\n",
		"samesite none":    "session:\n  samesite: None\n",
		"bad timezone":     "anomaly:\n  timezone: Mars/Olympus\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeYAML(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoad_ExampleFile(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "configs", "config.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "memory", c.Storage.Driver)
	assert.Equal(t, []string{"http://localhost:5173"}, c.Server.CORSAllowedOrigins)
	assert.Equal(t, 15*time.Minute, c.Rate.SlowDown.Window.Duration)
	assert.Equal(t, int64(100), c.Rate.SlowDown.DelayAfter)
	assert.True(t, c.Storage.Postgres.Migrate)
}
