// Package rate implementa limitación fixed-window por clave y el slow-down
// progresivo. Los contadores viven en Redis (compartidos entre réplicas) o en
// memoria, siempre con incremento atómico.
package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/lexguard/internal/security"
	rdb "github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed     bool
	Limit       int64
	Remaining   int64
	RetryAfter  time.Duration
	WindowTTL   time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Factory construye limiters sobre un backend concreto.
type Factory func(prefix string, max int64, window time.Duration) Limiter

// window calcula el inicio de la ventana y el tiempo restante.
func window(now time.Time, size time.Duration) (time.Time, time.Duration) {
	start := now.Truncate(size)
	return start, start.Add(size).Sub(now)
}

func buildResult(hits, max int64, ttl time.Duration) Result {
	remaining := max - hits
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:     hits <= max,
		Limit:       max,
		Remaining:   remaining,
		CurrentHits: hits,
		WindowTTL:   ttl,
	}
	if !res.Allowed {
		res.RetryAfter = ttl
	}
	return res
}

func sanitizeKey(key string) string {
	return strings.ReplaceAll(key, " ", "_")
}

// RedisLimiter: fixed window con INCR + EXPIRE en una transacción MULTI.
type RedisLimiter struct {
	Client *rdb.Client
	Prefix string
	Max    int64
	Window time.Duration
	Clock  security.Clock
}

func NewRedisLimiter(client *rdb.Client, prefix string, max int64, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{Client: client, Prefix: prefix, Max: max, Window: window}
}

// RedisFactory retorna una Factory que comparte client.
func RedisFactory(client *rdb.Client, clock security.Clock) Factory {
	return func(prefix string, max int64, window time.Duration) Limiter {
		l := NewRedisLimiter(client, prefix, max, window)
		l.Clock = clock
		return l
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := security.OrSystem(l.Clock).Now().UTC()
	winStart, ttl := window(now, l.Window)
	redisKey := fmt.Sprintf("%s%s:%d", l.Prefix, sanitizeKey(key), winStart.Unix())

	// La key incluye el inicio de la ventana, así que reescribir el EXPIRE en
	// cada hit es idempotente y evita keys huérfanas sin TTL.
	pipe := l.Client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, ttl+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}
	return buildResult(incr.Val(), l.Max, ttl), nil
}
