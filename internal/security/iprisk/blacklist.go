package iprisk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dropDatabas3/lexguard/internal/domain/repository"
	"github.com/dropDatabas3/lexguard/internal/observability/logger"
	"github.com/dropDatabas3/lexguard/internal/security"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const snapshotKey = "blacklist:snapshot"

type snapshot map[string]repository.BlacklistedIP

// CachedBlacklist mantiene una foto de la lista en memoria y la refresca cada
// ttl. Si el refresh falla se sigue usando la última foto conocida.
type CachedBlacklist struct {
	repo  repository.BlacklistRepository
	clock security.Clock
	ttl   time.Duration

	cache *gocache.Cache
	group singleflight.Group

	mu    sync.RWMutex
	stale snapshot
}

func NewCachedBlacklist(repo repository.BlacklistRepository, ttl time.Duration, clock security.Clock) *CachedBlacklist {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedBlacklist{
		repo:  repo,
		clock: security.OrSystem(clock),
		ttl:   ttl,
		cache: gocache.New(ttl, time.Minute),
	}
}

func (b *CachedBlacklist) Name() string { return "blacklist" }

// Criticality: un hit siempre bloquea, en forma síncrona.
func (b *CachedBlacklist) Criticality() security.Criticality { return security.HardGate }

// Lookup reporta si ip está bloqueada y el motivo.
func (b *CachedBlacklist) Lookup(ctx context.Context, ip string) (bool, string, error) {
	snap, err := b.snapshot(ctx)
	if err != nil {
		return false, "", err
	}
	entry, ok := snap[ip]
	if !ok || !entry.Active(b.clock.Now()) {
		return false, "", nil
	}
	return true, entry.Reason, nil
}

// Invalidate fuerza la recarga en el próximo Lookup.
func (b *CachedBlacklist) Invalidate() {
	b.cache.Delete(snapshotKey)
}

func (b *CachedBlacklist) snapshot(ctx context.Context) (snapshot, error) {
	if v, ok := b.cache.Get(snapshotKey); ok {
		return v.(snapshot), nil
	}
	v, err, _ := b.group.Do(snapshotKey, func() (any, error) {
		list, err := b.repo.ListActive(ctx, b.clock.Now())
		if err != nil {
			return nil, err
		}
		snap := make(snapshot, len(list))
		for _, e := range list {
			snap[e.IP] = e
		}
		b.cache.Set(snapshotKey, snap, b.ttl)
		b.mu.Lock()
		b.stale = snap
		b.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		b.mu.RLock()
		stale := b.stale
		b.mu.RUnlock()
		if stale != nil {
			logger.From(ctx).Warn("blacklist refresh failed, using last snapshot",
				logger.Component("iprisk"), logger.Err(err))
			return stale, nil
		}
		return nil, fmt.Errorf("load blacklist: %w", err)
	}
	return v.(snapshot), nil
}
