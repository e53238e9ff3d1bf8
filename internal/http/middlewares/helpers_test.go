package middlewares

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dropDatabas3/lexguard/internal/audit"
	"github.com/dropDatabas3/lexguard/internal/cache"
	"github.com/dropDatabas3/lexguard/internal/session"
)

type loggedEvent struct {
	Type      string
	AccountID string
	Details   map[string]any
	RC        *audit.RequestContext
}

type recordingAudit struct {
	mu     sync.Mutex
	events []loggedEvent
}

func (a *recordingAudit) Log(_ context.Context, eventType string, details map[string]any, accountID string, rc *audit.RequestContext) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, loggedEvent{Type: eventType, AccountID: accountID, Details: details, RC: rc})
}

func (a *recordingAudit) types() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Type)
	}
	return out
}

func (a *recordingAudit) last() loggedEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.events[len(a.events)-1]
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
})

func newSessionStore() *session.Store {
	return session.NewStore(cache.NewMemory("test:"), 24*time.Hour, session.CookieConfig{}, nil)
}

const testUA = "Mozilla/5.0 (test)"

// withIP fija RemoteAddr con puerto.
func withIP(r *http.Request, ip string) *http.Request {
	r.RemoteAddr = ip + ":40000"
	r.Header.Set("User-Agent", testUA)
	return r
}
