package middlewares

import (
	"context"
	"net/http"
	"sync"

	"github.com/dropDatabas3/lexguard/internal/security/anomaly"
	"github.com/dropDatabas3/lexguard/internal/security/iprisk"
	"github.com/dropDatabas3/lexguard/internal/session"
)

type ctxKey struct{}

// requestState es el estado que los middlewares acumulan durante el request.
// Se crea una vez y se muta in-place para que los middlewares externos
// (logging, auditoría) vean lo que resolvieron los internos.
type requestState struct {
	mu         sync.Mutex
	requestID  string
	clientIP   string
	session    *session.Session
	anomalies  []anomaly.Anomaly
	assessment *iprisk.Assessment
}

func stateFrom(ctx context.Context) *requestState {
	st, _ := ctx.Value(ctxKey{}).(*requestState)
	return st
}

// withState garantiza que r tenga estado y lo retorna.
func withState(r *http.Request) (*http.Request, *requestState) {
	if st := stateFrom(r.Context()); st != nil {
		return r, st
	}
	st := &requestState{}
	return r.WithContext(context.WithValue(r.Context(), ctxKey{}, st)), st
}

func GetRequestID(ctx context.Context) string {
	if st := stateFrom(ctx); st != nil {
		st.mu.Lock()
		defer st.mu.Unlock()
		return st.requestID
	}
	return ""
}

// GetClientIP retorna la IP resuelta por WithClientIP.
func GetClientIP(ctx context.Context) string {
	if st := stateFrom(ctx); st != nil {
		st.mu.Lock()
		defer st.mu.Unlock()
		return st.clientIP
	}
	return ""
}

// GetSession retorna la sesión cargada o nil.
func GetSession(ctx context.Context) *session.Session {
	if st := stateFrom(ctx); st != nil {
		st.mu.Lock()
		defer st.mu.Unlock()
		return st.session
	}
	return nil
}

// GetAccountID retorna la cuenta de la sesión autenticada, o "".
func GetAccountID(ctx context.Context) string {
	if s := GetSession(ctx); s != nil && s.Authenticated {
		return s.AccountID
	}
	return ""
}

// GetAnomalies retorna una copia de las anomalías del request.
func GetAnomalies(ctx context.Context) []anomaly.Anomaly {
	st := stateFrom(ctx)
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]anomaly.Anomaly(nil), st.anomalies...)
}

// GetRiskAssessment retorna la evaluación de IP del request, si hubo.
func GetRiskAssessment(ctx context.Context) (iprisk.Assessment, bool) {
	st := stateFrom(ctx)
	if st == nil {
		return iprisk.Assessment{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.assessment == nil {
		return iprisk.Assessment{}, false
	}
	return *st.assessment, true
}

func (st *requestState) setSession(s *session.Session) {
	st.mu.Lock()
	st.session = s
	st.mu.Unlock()
}

func (st *requestState) addAnomalies(as ...anomaly.Anomaly) {
	st.mu.Lock()
	st.anomalies = append(st.anomalies, as...)
	st.mu.Unlock()
}

func (st *requestState) setAssessment(a iprisk.Assessment) {
	st.mu.Lock()
	st.assessment = &a
	st.mu.Unlock()
}

// SetSession reemplaza la sesión del request. Lo usan login y logout para que
// los middlewares externos (auditoría, logging) vean la cuenta.
func SetSession(ctx context.Context, s *session.Session) {
	if st := stateFrom(ctx); st != nil {
		st.setSession(s)
	}
}
