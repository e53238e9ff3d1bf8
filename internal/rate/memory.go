package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/lexguard/internal/security"
	gocache "github.com/patrickmn/go-cache"
)

// MemoryLimiter es el fixed window in-process. go-cache serializa Add e
// IncrementInt64 bajo su mutex, y las ventanas viejas expiran solas.
type MemoryLimiter struct {
	Prefix string
	Max    int64
	Window time.Duration
	Clock  security.Clock

	counters *gocache.Cache
}

func NewMemoryLimiter(prefix string, max int64, window time.Duration, clock security.Clock) *MemoryLimiter {
	return &MemoryLimiter{
		Prefix:   prefix,
		Max:      max,
		Window:   window,
		Clock:    clock,
		counters: gocache.New(window, window),
	}
}

// MemoryFactory crea limiters en memoria con el reloj dado.
func MemoryFactory(clock security.Clock) Factory {
	return func(prefix string, max int64, window time.Duration) Limiter {
		return NewMemoryLimiter(prefix, max, window, clock)
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := security.OrSystem(l.Clock).Now().UTC()
	winStart, ttl := window(now, l.Window)
	k := fmt.Sprintf("%s%s:%d", l.Prefix, sanitizeKey(key), winStart.Unix())

	// Add falla si la key existe; en ese caso solo incrementamos.
	_ = l.counters.Add(k, int64(0), ttl+time.Second)
	hits, err := l.counters.IncrementInt64(k, 1)
	if err != nil {
		// La key expiró entre Add e Increment: empieza una ventana nueva.
		l.counters.Set(k, int64(1), ttl+time.Second)
		hits = 1
	}
	return buildResult(hits, l.Max, ttl), nil
}
