package anomaly

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Deduper suprime anomalías repetidas de la misma cuenta dentro de un TTL,
// para no auditar la misma señal en cada request.
type Deduper struct {
	seen *gocache.Cache
	ttl  time.Duration
}

func NewDeduper(ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Deduper{seen: gocache.New(ttl, ttl), ttl: ttl}
}

// First reporta si es la primera vez que se ve (accountID, a.Type) en el TTL.
func (d *Deduper) First(accountID string, a Anomaly) bool {
	return d.seen.Add(accountID+"|"+a.Type, struct{}{}, d.ttl) == nil
}
