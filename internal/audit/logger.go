package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dropDatabas3/lexguard/internal/domain/repository"
	"github.com/dropDatabas3/lexguard/internal/observability/logger"
	"github.com/dropDatabas3/lexguard/internal/security"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Writer persiste entradas. repository.AuditRepository lo satisface.
type Writer interface {
	Append(ctx context.Context, e repository.AuditEntry) error
}

// Config controla el buffer y el fallback.
type Config struct {
	BufferSize   int
	WriteTimeout time.Duration
	// FallbackPerSecond limita cuántas entradas por segundo se vuelcan al log
	// de proceso; el resto solo incrementa contadores.
	FallbackPerSecond float64
	FallbackBurst     int
}

func (c *Config) defaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = 1024
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 2 * time.Second
	}
	if c.FallbackPerSecond <= 0 {
		c.FallbackPerSecond = 20
	}
	if c.FallbackBurst <= 0 {
		c.FallbackBurst = 50
	}
}

// Hooks permite observar pérdidas (métricas). Ambos son opcionales.
type Hooks struct {
	OnDrop       func()
	OnWriteError func()
}

// Logger despacha entradas a un Writer desde un worker.
type Logger struct {
	cfg      Config
	writer   Writer
	clock    security.Clock
	hooks    Hooks
	fallback *zap.Logger
	throttle *rate.Limiter

	ch        chan repository.AuditEntry
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	dropped atomic.Uint64
	failed  atomic.Uint64
}

// New arranca el worker. Llamar Close al apagar para drenar el buffer.
func New(w Writer, cfg Config, clock security.Clock, hooks Hooks) *Logger {
	cfg.defaults()
	l := &Logger{
		cfg:      cfg,
		writer:   w,
		clock:    security.OrSystem(clock),
		hooks:    hooks,
		fallback: logger.Named("audit.fallback"),
		throttle: rate.NewLimiter(rate.Limit(cfg.FallbackPerSecond), cfg.FallbackBurst),
		ch:       make(chan repository.AuditEntry, cfg.BufferSize),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Logger) Name() string { return "audit" }

func (l *Logger) Criticality() security.Criticality { return security.SoftSignal }

// Log encola una entrada. accountID vacío significa "sin cuenta".
func (l *Logger) Log(ctx context.Context, eventType string, details map[string]any, accountID string, rc *RequestContext) {
	if l == nil {
		return
	}
	now := l.clock.Now().UTC()
	e := repository.AuditEntry{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		EventType: eventType,
		Details:   details,
		Timestamp: now,
	}
	if accountID != "" {
		id := accountID
		e.AccountID = &id
	}
	if rc != nil {
		e.IP = rc.IP
		e.UserAgent = rc.UserAgent
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.fallbackWrite(ctx, e, "closed", nil)
		return
	}
	select {
	case l.ch <- e:
	default:
		l.dropped.Add(1)
		if l.hooks.OnDrop != nil {
			l.hooks.OnDrop()
		}
		l.fallbackWrite(ctx, e, "buffer_full", nil)
	}
}

func (l *Logger) run() {
	defer l.wg.Done()
	for e := range l.ch {
		l.write(e)
	}
}

func (l *Logger) write(e repository.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.WriteTimeout)
	defer cancel()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = panicError{r}
			}
		}()
		err = l.writer.Append(ctx, e)
	}()
	if err != nil {
		l.failed.Add(1)
		if l.hooks.OnWriteError != nil {
			l.hooks.OnWriteError()
		}
		l.fallbackWrite(ctx, e, "write_failed", err)
	}
}

func (l *Logger) fallbackWrite(_ context.Context, e repository.AuditEntry, reason string, err error) {
	if !l.throttle.Allow() {
		return
	}
	account := ""
	if e.AccountID != nil {
		account = *e.AccountID
	}
	l.fallback.Warn("audit entry not persisted",
		logger.String("reason", reason),
		logger.EventType(e.EventType),
		logger.AccountID(account),
		logger.ClientIP(e.IP),
		logger.Any("details", e.Details),
		zap.Time("timestamp", e.Timestamp),
		logger.Err(err),
	)
}

// Close deja de aceptar entradas y espera a que el worker drene el buffer
// o a que ctx expire.
func (l *Logger) Close(ctx context.Context) error {
	if l == nil {
		return nil
	}
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.ch)
		l.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped retorna cuántas entradas se descartaron por buffer lleno.
func (l *Logger) Dropped() uint64 { return l.dropped.Load() }

// Failed retorna cuántas escrituras fallaron.
func (l *Logger) Failed() uint64 { return l.failed.Load() }

type panicError struct{ v any }

func (p panicError) Error() string { return fmt.Sprintf("audit writer panic: %v", p.v) }
