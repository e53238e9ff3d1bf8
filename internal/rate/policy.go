package rate

import (
	"context"
	"strings"
	"time"
)

// Policy es un límite con nombre aplicado a un conjunto de prefijos de path.
type Policy struct {
	Name     string
	Limit    int64
	Window   time.Duration
	Prefixes []string
}

// Matches reporta si path cae bajo la política. Un prefijo que termina en "/"
// cubre el subárbol; si no, debe coincidir exacto.
func (p Policy) Matches(path string) bool {
	for _, pre := range p.Prefixes {
		if strings.HasSuffix(pre, "/") {
			if strings.HasPrefix(path, pre) {
				return true
			}
			continue
		}
		if path == pre {
			return true
		}
	}
	return false
}

// PolicySet agrupa políticas de endpoint con sus limiters.
type PolicySet struct {
	entries []policyEntry
}

type policyEntry struct {
	policy  Policy
	limiter Limiter
}

func NewPolicySet(f Factory, policies ...Policy) *PolicySet {
	ps := &PolicySet{}
	for _, p := range policies {
		ps.entries = append(ps.entries, policyEntry{
			policy:  p,
			limiter: f("rl:"+p.Name+":", p.Limit, p.Window),
		})
	}
	return ps
}

// Check aplica todas las políticas que matchean path. Retorna la primera que
// rechaza; si ninguna rechaza, ok es true.
func (ps *PolicySet) Check(ctx context.Context, path, key string) (Policy, Result, bool, error) {
	if ps == nil {
		return Policy{}, Result{Allowed: true}, true, nil
	}
	for _, e := range ps.entries {
		if !e.policy.Matches(path) {
			continue
		}
		res, err := e.limiter.Allow(ctx, key)
		if err != nil {
			return e.policy, res, true, err
		}
		if !res.Allowed {
			return e.policy, res, false, nil
		}
	}
	return Policy{}, Result{Allowed: true}, true, nil
}

// DefaultPolicies: auth 10/5m sobre login y 2FA, password reset 3/1h.
func DefaultPolicies() []Policy {
	return []Policy{
		{Name: "auth", Limit: 10, Window: 5 * time.Minute, Prefixes: []string{"/login", "/2fa/"}},
		{Name: "password_reset", Limit: 3, Window: time.Hour, Prefixes: []string{"/password-reset", "/password-reset/"}},
	}
}
