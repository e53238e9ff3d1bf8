// Package health implementa los chequeos de liveness y readiness.
package health

import (
	"context"
	"sync"
	"time"

	dto "github.com/dropDatabas3/lexguard/internal/http/dto/health"
	"github.com/dropDatabas3/lexguard/internal/security"
	"golang.org/x/sync/errgroup"
)

// Pinger es una dependencia que responde a Ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthService reporta el estado del proceso y sus dependencias.
type HealthService interface {
	Live(ctx context.Context) dto.HealthResponse
	Ready(ctx context.Context) (dto.HealthResponse, bool)
}

// Deps contiene las dependencias a chequear por nombre.
type Deps struct {
	Checks  map[string]Pinger
	Version string
	Timeout time.Duration
	Clock   security.Clock
}

type healthService struct {
	d     Deps
	clock security.Clock
}

func NewHealthService(d Deps) HealthService {
	if d.Timeout <= 0 {
		d.Timeout = 2 * time.Second
	}
	return &healthService{d: d, clock: security.OrSystem(d.Clock)}
}

func (s *healthService) Live(context.Context) dto.HealthResponse {
	return dto.HealthResponse{Status: "ok", Version: s.d.Version, Timestamp: s.clock.Now().UTC()}
}

// Ready pinga todas las dependencias en paralelo.
func (s *healthService) Ready(ctx context.Context) (dto.HealthResponse, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.d.Timeout)
	defer cancel()

	var (
		mu  sync.Mutex
		g   errgroup.Group
		ok  = true
		out = make(map[string]dto.ComponentStatus, len(s.d.Checks))
	)
	for name, p := range s.d.Checks {
		name, p := name, p
		g.Go(func() error {
			st := dto.ComponentStatus{Status: "ok"}
			if err := p.Ping(ctx); err != nil {
				st = dto.ComponentStatus{Status: "error", Message: err.Error()}
			}
			mu.Lock()
			defer mu.Unlock()
			out[name] = st
			if st.Status != "ok" {
				ok = false
			}
			return nil
		})
	}
	_ = g.Wait()

	status := "ready"
	if !ok {
		status = "unavailable"
	}
	return dto.HealthResponse{Status: status, Components: out, Version: s.d.Version, Timestamp: s.clock.Now().UTC()}, ok
}
