// Package config carga la configuración desde YAML, aplica defaults y
// overrides LEXGUARD_* del entorno, y valida el resultado.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix antecede todas las variables de entorno reconocidas.
const EnvPrefix = "LEXGUARD_"

// Duration acepta "15m", "1h30m" en YAML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", n.Line, err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

type Config struct {
	App struct {
		// dev | staging | prod
		Env     string `yaml:"env"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
		// TrustProxy toma la IP de X-Forwarded-For / X-Real-IP.
		TrustProxy      bool     `yaml:"trust_proxy"`
		ReadTimeout     Duration `yaml:"read_timeout"`
		WriteTimeout    Duration `yaml:"write_timeout"`
		ShutdownTimeout Duration `yaml:"shutdown_timeout"`
		MaxBodyBytes    int64    `yaml:"max_body_bytes"`
	} `yaml:"server"`

	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`

	Storage struct {
		// memory | postgres
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int32    `yaml:"max_conns"`
			MinConns        int32    `yaml:"min_conns"`
			ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
			// Migrate aplica las migraciones embebidas al arrancar.
			Migrate bool `yaml:"migrate"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Session struct {
		CookieName string   `yaml:"cookie_name"`
		Domain     string   `yaml:"domain"`
		SameSite   string   `yaml:"samesite"`
		Secure     bool     `yaml:"secure"`
		TTL        Duration `yaml:"ttl"`
	} `yaml:"session"`

	MFA struct {
		// TOTPIssuer es el nombre que muestra la app autenticadora.
		TOTPIssuer   string   `yaml:"totp_issuer"`
		JWTIssuer    string   `yaml:"jwt_issuer"`
		SigningKey   string   `yaml:"signing_key"`
		ChallengeTTL Duration `yaml:"challenge_ttl"`
	} `yaml:"mfa"`

	Security struct {
		// SecretboxKey sella los secretos TOTP (32 bytes en base64 o hex).
		SecretboxKey     string   `yaml:"secretbox_key"`
		BlacklistRefresh Duration `yaml:"blacklist_refresh"`
		FailedWindow     Duration `yaml:"failed_window"`
		SoftThreshold    int      `yaml:"soft_threshold"`
		HardCeiling      int      `yaml:"hard_ceiling"`
	} `yaml:"security"`

	Rate struct {
		Enabled     bool     `yaml:"enabled"`
		Window      Duration `yaml:"window"`
		MaxRequests int64    `yaml:"max_requests"`

		Auth struct {
			Limit  int64    `yaml:"limit"`
			Window Duration `yaml:"window"`
		} `yaml:"auth"`
		PasswordReset struct {
			Limit  int64    `yaml:"limit"`
			Window Duration `yaml:"window"`
		} `yaml:"password_reset"`

		SlowDown struct {
			Enabled    bool     `yaml:"enabled"`
			Window     Duration `yaml:"window"`
			DelayAfter int64    `yaml:"delay_after"`
			Step       Duration `yaml:"step"`
			MaxDelay   Duration `yaml:"max_delay"`
		} `yaml:"slow_down"`
	} `yaml:"rate"`

	Anomaly struct {
		Enabled    bool     `yaml:"enabled"`
		GeoIPPath  string   `yaml:"geoip_path"`
		ActiveFrom int      `yaml:"active_from"`
		ActiveTo   int      `yaml:"active_to"`
		Timezone   string   `yaml:"timezone"`
		DedupeTTL  Duration `yaml:"dedupe_ttl"`
	} `yaml:"anomaly"`

	Audit struct {
		BufferSize   int      `yaml:"buffer_size"`
		WriteTimeout Duration `yaml:"write_timeout"`
	} `yaml:"audit"`

	Bootstrap struct {
		AdminEmail    string `yaml:"admin_email"`
		AdminPassword string `yaml:"admin_password"`
	} `yaml:"bootstrap"`
}

// Load lee path (si no está vacío), aplica defaults y entorno, y valida.
func Load(path string) (*Config, error) {
	var c Config
	c.Rate.Enabled = true
	c.Rate.SlowDown.Enabled = true
	c.Anomaly.Enabled = true

	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	c.applyDefaults()
	c.applyEnvOverrides()
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDur(d *Duration, def time.Duration) {
	if d.Duration <= 0 {
		d.Duration = def
	}
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	setDur(&c.Server.ReadTimeout, 10*time.Second)
	setDur(&c.Server.WriteTimeout, 30*time.Second)
	setDur(&c.Server.ShutdownTimeout, 15*time.Second)
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = 1 << 20
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Postgres.MaxConns <= 0 {
		c.Storage.Postgres.MaxConns = 10
	}
	setDur(&c.Storage.Postgres.ConnMaxLifetime, time.Hour)

	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "lexguard:"
	}

	if c.Session.CookieName == "" {
		c.Session.CookieName = "sid"
	}
	if c.Session.SameSite == "" {
		c.Session.SameSite = "Lax"
	}
	setDur(&c.Session.TTL, 24*time.Hour)

	if c.MFA.TOTPIssuer == "" {
		c.MFA.TOTPIssuer = "LexGuard"
	}
	if c.MFA.JWTIssuer == "" {
		c.MFA.JWTIssuer = "lexguard"
	}
	setDur(&c.MFA.ChallengeTTL, 5*time.Minute)

	setDur(&c.Security.BlacklistRefresh, 30*time.Second)
	setDur(&c.Security.FailedWindow, time.Hour)
	if c.Security.SoftThreshold <= 0 {
		c.Security.SoftThreshold = 5
	}
	if c.Security.HardCeiling <= 0 {
		c.Security.HardCeiling = 10
	}

	setDur(&c.Rate.Window, 10*time.Minute)
	if c.Rate.MaxRequests <= 0 {
		c.Rate.MaxRequests = 2000
	}
	if c.Rate.Auth.Limit <= 0 {
		c.Rate.Auth.Limit = 10
	}
	setDur(&c.Rate.Auth.Window, 5*time.Minute)
	if c.Rate.PasswordReset.Limit <= 0 {
		c.Rate.PasswordReset.Limit = 3
	}
	setDur(&c.Rate.PasswordReset.Window, time.Hour)
	setDur(&c.Rate.SlowDown.Window, 15*time.Minute)
	if c.Rate.SlowDown.DelayAfter <= 0 {
		c.Rate.SlowDown.DelayAfter = 100
	}
	setDur(&c.Rate.SlowDown.Step, 500*time.Millisecond)
	setDur(&c.Rate.SlowDown.MaxDelay, 10*time.Second)

	if c.Anomaly.ActiveFrom == 0 && c.Anomaly.ActiveTo == 0 {
		c.Anomaly.ActiveFrom, c.Anomaly.ActiveTo = 6, 22
	}
	setDur(&c.Anomaly.DedupeTTL, 10*time.Minute)

	if c.Audit.BufferSize <= 0 {
		c.Audit.BufferSize = 1024
	}
	setDur(&c.Audit.WriteTimeout, 2*time.Second)
}

// applyEnvOverrides aplica LEXGUARD_* sobre lo leído del YAML.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("APP_VERSION"); ok {
		c.App.Version = v
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvCSV("SERVER_CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}
	if v, ok := getEnvBool("SERVER_TRUST_PROXY"); ok {
		c.Server.TrustProxy = v
	}
	if v, ok := getEnvDur("SERVER_SHUTDOWN_TIMEOUT"); ok {
		c.Server.ShutdownTimeout.Duration = v
	}

	// LOG
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvStr("LOG_FILE"); ok {
		c.Log.File = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_CONNS"); ok {
		c.Storage.Postgres.MaxConns = int32(v)
	}
	if v, ok := getEnvBool("POSTGRES_MIGRATE"); ok {
		c.Storage.Postgres.Migrate = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}

	// SESSION
	if v, ok := getEnvStr("SESSION_COOKIE_NAME"); ok {
		c.Session.CookieName = v
	}
	if v, ok := getEnvStr("SESSION_DOMAIN"); ok {
		c.Session.Domain = v
	}
	if v, ok := getEnvStr("SESSION_SAMESITE"); ok {
		c.Session.SameSite = v
	}
	if v, ok := getEnvBool("SESSION_SECURE"); ok {
		c.Session.Secure = v
	}
	if v, ok := getEnvDur("SESSION_TTL"); ok {
		c.Session.TTL.Duration = v
	}

	// MFA
	if v, ok := getEnvStr("MFA_TOTP_ISSUER"); ok {
		c.MFA.TOTPIssuer = v
	}
	if v, ok := getEnvStr("MFA_SIGNING_KEY"); ok {
		c.MFA.SigningKey = v
	}
	if v, ok := getEnvDur("MFA_CHALLENGE_TTL"); ok {
		c.MFA.ChallengeTTL.Duration = v
	}

	// SECURITY
	if v, ok := getEnvStr("SECRETBOX_KEY"); ok {
		c.Security.SecretboxKey = v
	}
	if v, ok := getEnvInt("SECURITY_HARD_CEILING"); ok {
		c.Security.HardCeiling = v
	}
	if v, ok := getEnvInt("SECURITY_SOFT_THRESHOLD"); ok {
		c.Security.SoftThreshold = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvInt("RATE_MAX_REQUESTS"); ok {
		c.Rate.MaxRequests = int64(v)
	}
	if v, ok := getEnvDur("RATE_WINDOW"); ok {
		c.Rate.Window.Duration = v
	}
	if v, ok := getEnvBool("RATE_SLOW_DOWN_ENABLED"); ok {
		c.Rate.SlowDown.Enabled = v
	}

	// ANOMALY
	if v, ok := getEnvBool("ANOMALY_ENABLED"); ok {
		c.Anomaly.Enabled = v
	}
	if v, ok := getEnvStr("ANOMALY_GEOIP_PATH"); ok {
		c.Anomaly.GeoIPPath = v
	}
	if v, ok := getEnvStr("ANOMALY_TIMEZONE"); ok {
		c.Anomaly.Timezone = v
	}

	// BOOTSTRAP
	if v, ok := getEnvStr("BOOTSTRAP_ADMIN_EMAIL"); ok {
		c.Bootstrap.AdminEmail = v
	}
	if v, ok := getEnvStr("BOOTSTRAP_ADMIN_PASSWORD"); ok {
		c.Bootstrap.AdminPassword = v
	}
}

// IsProd reporta si el entorno es productivo.
func (c *Config) IsProd() bool { return strings.EqualFold(c.App.Env, "prod") }

// Validate rechaza combinaciones que dejarían el servicio inseguro o sin
// dependencias.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case "memory":
		if c.IsProd() {
			errs = append(errs, errors.New("storage.driver=memory is not allowed in prod"))
		}
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown %q", c.Storage.Driver))
	}

	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Addr) == "" {
			errs = append(errs, errors.New("cache.redis.addr is required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.kind: unknown %q", c.Cache.Kind))
	}

	switch c.Session.SameSite {
	case "Lax", "Strict":
	case "None":
		if !c.Session.Secure {
			errs = append(errs, errors.New("session.samesite=None requires session.secure"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.samesite: unknown %q", c.Session.SameSite))
	}

	if c.MFA.SigningKey != "" && len(c.MFA.SigningKey) < 32 {
		errs = append(errs, errors.New("mfa.signing_key must be at least 32 bytes"))
	}
	if c.Anomaly.ActiveFrom < 0 || c.Anomaly.ActiveFrom > 23 || c.Anomaly.ActiveTo < 0 || c.Anomaly.ActiveTo > 24 {
		errs = append(errs, errors.New("anomaly.active_from/active_to must be hours in [0,24]"))
	}
	if c.Anomaly.Timezone != "" {
		if _, err := time.LoadLocation(c.Anomaly.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("anomaly.timezone: %w", err))
		}
	}

	if c.IsProd() {
		if c.MFA.SigningKey == "" {
			errs = append(errs, errors.New("mfa.signing_key is required in prod"))
		}
		if c.Security.SecretboxKey == "" {
			errs = append(errs, errors.New("security.secretbox_key is required in prod"))
		}
		if !c.Session.Secure {
			errs = append(errs, errors.New("session.secure must be true in prod"))
		}
	}

	return errors.Join(errs...)
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(EnvPrefix + key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}
