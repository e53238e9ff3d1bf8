// Package server construye el handler HTTP con todas sus dependencias a
// partir de la configuración.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/lexguard/internal/audit"
	"github.com/dropDatabas3/lexguard/internal/bootstrap"
	"github.com/dropDatabas3/lexguard/internal/cache"
	"github.com/dropDatabas3/lexguard/internal/config"
	"github.com/dropDatabas3/lexguard/internal/domain/repository"
	adminctrl "github.com/dropDatabas3/lexguard/internal/http/controllers/admin"
	authctrl "github.com/dropDatabas3/lexguard/internal/http/controllers/auth"
	healthctrl "github.com/dropDatabas3/lexguard/internal/http/controllers/health"
	secctrl "github.com/dropDatabas3/lexguard/internal/http/controllers/security"
	"github.com/dropDatabas3/lexguard/internal/http/router"
	authsvc "github.com/dropDatabas3/lexguard/internal/http/services/auth"
	healthsvc "github.com/dropDatabas3/lexguard/internal/http/services/health"
	secsvc "github.com/dropDatabas3/lexguard/internal/http/services/security"
	jwtx "github.com/dropDatabas3/lexguard/internal/jwt"
	"github.com/dropDatabas3/lexguard/internal/metrics"
	"github.com/dropDatabas3/lexguard/internal/observability/logger"
	"github.com/dropDatabas3/lexguard/internal/rate"
	"github.com/dropDatabas3/lexguard/internal/security"
	"github.com/dropDatabas3/lexguard/internal/security/anomaly"
	"github.com/dropDatabas3/lexguard/internal/security/csrf"
	"github.com/dropDatabas3/lexguard/internal/security/iprisk"
	"github.com/dropDatabas3/lexguard/internal/security/password"
	"github.com/dropDatabas3/lexguard/internal/security/secretbox"
	tokens "github.com/dropDatabas3/lexguard/internal/security/token"
	"github.com/dropDatabas3/lexguard/internal/security/totp"
	"github.com/dropDatabas3/lexguard/internal/session"
	"github.com/dropDatabas3/lexguard/internal/store/memory"
	"github.com/dropDatabas3/lexguard/internal/store/pg"
	migrations "github.com/dropDatabas3/lexguard/migrations/postgres"
)

// backend agrupa los repositorios de un driver de storage.
type backend struct {
	Accounts    repository.AccountRepository
	BackupCodes repository.BackupCodeRepository
	Audit       repository.AuditRepository
	Blacklist   repository.BlacklistRepository
	Ping        func(ctx context.Context) error
	close       func()
}

// App es el resultado del wiring. Close libera todo en orden inverso.
type App struct {
	Handler  http.Handler
	Metrics  *metrics.Metrics
	Accounts repository.AccountRepository

	closers []func(ctx context.Context) error
}

// Options permite inyectar dependencias en tests.
type Options struct {
	Clock security.Clock
	// PasswordParams reemplaza password.Default (tests usan parámetros baratos).
	PasswordParams *password.Params
}

// Build arma el handler. Ante error libera lo que haya abierto.
func Build(ctx context.Context, cfg *config.Config, opts Options) (app *App, err error) {
	log := logger.From(ctx).With(logger.Layer("server"), logger.Op("Build"))
	app = &App{}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
			app = nil
		}
	}()

	clock := security.OrSystem(opts.Clock)
	params := password.Default
	if opts.PasswordParams != nil {
		params = *opts.PasswordParams
	}

	// 1. Métricas
	m, err := metrics.New(nil)
	if err != nil {
		return app, fmt.Errorf("metrics: %w", err)
	}
	app.Metrics = m

	// 2. Storage
	be, err := openBackend(ctx, cfg, m)
	if err != nil {
		return app, err
	}
	app.Accounts = be.Accounts
	app.closers = append(app.closers, func(context.Context) error { be.close(); return nil })

	// 3. Cache y rate limiting
	var (
		sessionCache cache.Client
		factory      rate.Factory
		cachePing    func(ctx context.Context) error
	)
	switch cfg.Cache.Kind {
	case "redis":
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		sessionCache = cache.NewRedis(rc, cfg.Cache.Redis.Prefix)
		factory = rate.RedisFactory(rc, clock)
		cachePing = sessionCache.Ping
		log.Info("cache backend: redis", logger.String("addr", cfg.Cache.Redis.Addr))
	default:
		sessionCache = cache.NewMemory(cfg.Cache.Redis.Prefix)
		factory = rate.MemoryFactory(clock)
		cachePing = sessionCache.Ping
		log.Info("cache backend: memory")
	}
	app.closers = append(app.closers, func(context.Context) error { return sessionCache.Close() })

	// 4. Auditoría
	auditLog := audit.New(be.Audit, audit.Config{
		BufferSize:   cfg.Audit.BufferSize,
		WriteTimeout: cfg.Audit.WriteTimeout.Duration,
	}, clock, audit.Hooks{OnDrop: m.AuditDropped, OnWriteError: m.AuditWriteFailed})
	app.closers = append(app.closers, auditLog.Close)

	// 5. Secretos y claves
	var sealer secretbox.Sealer = secretbox.Plain{}
	if key := strings.TrimSpace(cfg.Security.SecretboxKey); key != "" {
		box, err := secretbox.New(key)
		if err != nil {
			return app, fmt.Errorf("secretbox: %w", err)
		}
		sealer = box
	} else {
		log.Warn("security.secretbox_key not set, TOTP secrets are stored unsealed")
	}

	signingKey := cfg.MFA.SigningKey
	if signingKey == "" {
		signingKey, err = tokens.RandomHex(nil, 32)
		if err != nil {
			return app, fmt.Errorf("generate mfa signing key: %w", err)
		}
		log.Warn("mfa.signing_key not set, using an ephemeral key; pending challenges will not survive a restart")
	}
	issuer, err := jwtx.NewIssuer(cfg.MFA.JWTIssuer, []byte(signingKey), cfg.MFA.ChallengeTTL.Duration, clock)
	if err != nil {
		return app, fmt.Errorf("mfa issuer: %w", err)
	}

	dummyPlain, err := tokens.RandomHex(nil, 16)
	if err != nil {
		return app, err
	}
	dummyHash, err := password.Hash(params, dummyPlain)
	if err != nil {
		return app, fmt.Errorf("dummy hash: %w", err)
	}

	// 6. Componentes de seguridad
	sessions := session.NewStore(sessionCache, cfg.Session.TTL.Duration, session.CookieConfig{
		Name:     cfg.Session.CookieName,
		Domain:   cfg.Session.Domain,
		Secure:   cfg.Session.Secure,
		SameSite: cfg.Session.SameSite,
	}, nil)
	csrfSvc := csrf.NewService(nil)

	totpCfg := totp.DefaultConfig()
	totpCfg.Issuer = cfg.MFA.TOTPIssuer
	totpMgr := totp.NewManager(totp.Deps{
		Accounts:    be.Accounts,
		BackupCodes: be.BackupCodes,
		Passwords:   password.Checker{},
		Sealer:      sealer,
		Audit:       auditLog,
		Clock:       clock,
		Config:      totpCfg,
	})

	evaluator := iprisk.NewEvaluator(
		iprisk.NewCachedBlacklist(be.Blacklist, cfg.Security.BlacklistRefresh.Duration, clock),
		be.Audit,
		iprisk.Config{
			Window:        cfg.Security.FailedWindow.Duration,
			SoftThreshold: cfg.Security.SoftThreshold,
			HardCeiling:   cfg.Security.HardCeiling,
		},
		clock,
	)

	var (
		detector *anomaly.Detector
		recorder *anomaly.Recorder
	)
	if cfg.Anomaly.Enabled {
		var locator anomaly.Locator
		if p := strings.TrimSpace(cfg.Anomaly.GeoIPPath); p != "" {
			geo, err := anomaly.OpenGeoIP(p)
			if err != nil {
				return app, fmt.Errorf("open geoip: %w", err)
			}
			locator = geo
			app.closers = append(app.closers, func(context.Context) error { return geo.Close() })
		}
		acfg := anomaly.DefaultConfig()
		acfg.ActiveFrom, acfg.ActiveTo = cfg.Anomaly.ActiveFrom, cfg.Anomaly.ActiveTo
		if cfg.Anomaly.Timezone != "" {
			if acfg.Location, err = time.LoadLocation(cfg.Anomaly.Timezone); err != nil {
				return app, fmt.Errorf("anomaly timezone: %w", err)
			}
		}
		detector = anomaly.NewDetector(be.Audit, locator, acfg)
		recorder = &anomaly.Recorder{
			Audit:      auditLog,
			Deduper:    anomaly.NewDeduper(cfg.Anomaly.DedupeTTL.Duration),
			OnDetected: m.Anomaly,
		}
	}

	// 7. Services y controllers
	loginDeps := authsvc.LoginDeps{
		Accounts:   be.Accounts,
		Passwords:  password.Checker{},
		TwoFactor:  totpMgr,
		Challenges: issuer,
		Replay:     sessionCache,
		Sessions:   sessions,
		CSRF:       csrfSvc,
		Recorder:   recorder,
		Audit:      auditLog,
		Clock:      clock,
		DummyHash:  dummyHash,
	}
	if detector != nil {
		loginDeps.Detector = detector
	}
	login := authsvc.NewLoginService(loginDeps)
	logout := authsvc.NewLogoutService(authsvc.LogoutDeps{Sessions: sessions, Audit: auditLog})
	health := healthsvc.NewHealthService(healthsvc.Deps{
		Checks: map[string]healthsvc.Pinger{
			"store": pingFunc(be.Ping),
			"cache": pingFunc(cachePing),
		},
		Version: cfg.App.Version,
		Clock:   clock,
	})

	deps := router.Deps{
		Auth:       authctrl.NewControllers(login, logout, sessions),
		Security:   secctrl.NewControllers(totpMgr, secsvc.NewCSRFService(secsvc.CSRFDeps{Tokens: csrfSvc, Sessions: sessions})),
		Admin:      adminctrl.NewControllers(audit.NewReader(be.Audit)),
		Health:     healthctrl.NewHealthController(health),
		Metrics:    m,
		Sessions:   sessions,
		Integrity:  session.NewValidator(cfg.Session.TTL.Duration, clock),
		CSRF:       csrfSvc,
		CSRFPolicy: csrf.DefaultPolicy(),
		Audit:      auditLog,
		IPRisk:     evaluator,
		Clock:      clock,
		TrustProxy: cfg.Server.TrustProxy,
		MaxBody:    cfg.Server.MaxBodyBytes,
		CORS:       router.CORSConfig{AllowedOrigins: cfg.Server.CORSAllowedOrigins},
	}
	if cfg.Rate.Enabled {
		deps.Limiter = factory("rl:global:", cfg.Rate.MaxRequests, cfg.Rate.Window.Duration)
		deps.Policies = rate.NewPolicySet(factory,
			rate.Policy{Name: "auth", Limit: cfg.Rate.Auth.Limit, Window: cfg.Rate.Auth.Window.Duration, Prefixes: []string{"/login", "/2fa/"}},
			rate.Policy{Name: "password_reset", Limit: cfg.Rate.PasswordReset.Limit, Window: cfg.Rate.PasswordReset.Window.Duration, Prefixes: []string{"/password-reset", "/password-reset/"}},
		)
		if cfg.Rate.SlowDown.Enabled {
			sd := cfg.Rate.SlowDown
			deps.SlowDown = rate.NewSlowDown(factory, sd.Window.Duration, sd.DelayAfter, sd.Step.Duration, sd.MaxDelay.Duration)
		}
	}
	if detector != nil {
		deps.Anomaly = detector
		deps.AnomalyRecorder = recorder
	}
	app.Handler = router.New(deps)

	// 8. Cuenta admin inicial
	if cfg.Bootstrap.AdminEmail != "" {
		if _, _, err := bootstrap.SeedAdmin(ctx, be.Accounts, bootstrap.AdminSeed{
			Email:    cfg.Bootstrap.AdminEmail,
			Password: cfg.Bootstrap.AdminPassword,
			Params:   params,
		}); err != nil {
			return app, fmt.Errorf("seed admin: %w", err)
		}
	}

	return app, nil
}

func openBackend(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*backend, error) {
	log := logger.From(ctx).With(logger.Layer("server"), logger.Component("storage"))

	switch cfg.Storage.Driver {
	case "postgres":
		st, err := pg.New(ctx, pg.Config{
			DSN:             cfg.Storage.DSN,
			MaxConns:        cfg.Storage.Postgres.MaxConns,
			MinConns:        cfg.Storage.Postgres.MinConns,
			ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime.Duration,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.Storage.Postgres.Migrate {
			applied, err := st.Migrate(ctx, migrations.SecurityFS, migrations.SecurityDir)
			if err != nil {
				st.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			log.Info("migrations applied", logger.Count(len(applied)))
		}
		if err := m.RegisterPool(nil, st.Stat); err != nil {
			log.Warn("pool metrics not registered", logger.Err(err))
		}
		return &backend{
			Accounts:    st.Accounts,
			BackupCodes: st.BackupCodes,
			Audit:       st.Audit,
			Blacklist:   st.Blacklist,
			Ping:        st.Ping,
			close:       st.Close,
		}, nil

	case "memory":
		log.Warn("storage backend: memory, data is lost on restart")
		st := memory.New()
		return &backend{
			Accounts:    st,
			BackupCodes: st,
			Audit:       st,
			Blacklist:   st,
			Ping:        st.Ping,
			close:       st.Close,
		}, nil
	}
	return nil, fmt.Errorf("storage: unknown driver %q", cfg.Storage.Driver)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Close libera los recursos en orden inverso de apertura.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
