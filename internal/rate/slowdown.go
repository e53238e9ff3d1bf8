package rate

import (
	"context"
	"math"
	"time"
)

// SlowDown calcula un retardo creciente después de DelayAfter requests en la
// ventana. No rechaza: el middleware espera el retardo y sigue.
type SlowDown struct {
	counter    Limiter
	DelayAfter int64
	Step       time.Duration
	MaxDelay   time.Duration
}

// NewSlowDown cuenta hits con un limiter de la factory dada.
func NewSlowDown(f Factory, window time.Duration, delayAfter int64, step, maxDelay time.Duration) *SlowDown {
	return &SlowDown{
		counter:    f("sd:", math.MaxInt64, window),
		DelayAfter: delayAfter,
		Step:       step,
		MaxDelay:   maxDelay,
	}
}

// Delay registra el hit de key y retorna cuánto debe esperar el request.
func (s *SlowDown) Delay(ctx context.Context, key string) (time.Duration, int64, error) {
	res, err := s.counter.Allow(ctx, key)
	if err != nil {
		return 0, 0, err
	}
	return s.delayFor(res.CurrentHits), res.CurrentHits, nil
}

func (s *SlowDown) delayFor(hits int64) time.Duration {
	over := hits - s.DelayAfter
	if over <= 0 {
		return 0
	}
	if s.MaxDelay > 0 && over > int64(s.MaxDelay/s.Step) {
		return s.MaxDelay
	}
	return time.Duration(over) * s.Step
}

// Wait duerme d o hasta que ctx termine.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
