// Package memory implementa los repositorios en memoria. Se usa en dev
// (storage.driver=memory) y como doble en tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/lexguard/internal/domain/repository"
)

// Store implementa todos los repositorios sobre mapas protegidos por mutex.
type Store struct {
	mu        sync.RWMutex
	accounts  map[string]repository.Account
	codes     map[string]map[string]struct{}
	audit     []repository.AuditEntry
	blacklist map[string]repository.BlacklistedIP

	// Fail, si no es nil, se retorna desde todas las operaciones de lectura de
	// auditoría. Permite simular una caída del store en tests.
	Fail error
}

func New() *Store {
	return &Store{
		accounts:  map[string]repository.Account{},
		codes:     map[string]map[string]struct{}{},
		blacklist: map[string]repository.BlacklistedIP{},
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close()                     {}

// ─── Accounts ───

func (s *Store) GetByID(_ context.Context, id string) (*repository.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneAccount(a), nil
}

func (s *Store) GetByEmail(_ context.Context, email string) (*repository.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if strings.ToLower(a.Email) == email {
			return cloneAccount(a), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) Create(_ context.Context, a repository.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if strings.EqualFold(existing.Email, a.Email) {
			return repository.ErrConflict
		}
	}
	if _, ok := s.accounts[a.ID]; ok {
		return repository.ErrConflict
	}
	now := time.Now()
	a.Email = strings.ToLower(a.Email)
	a.CreatedAt, a.UpdatedAt = now, now
	s.accounts[a.ID] = *cloneAccount(a)
	return nil
}

func (s *Store) SetTwoFactorSecret(_ context.Context, id string, sealed *string) error {
	return s.mutate(id, func(a *repository.Account) {
		if sealed == nil {
			a.TwoFactorSecret = nil
			return
		}
		v := *sealed
		a.TwoFactorSecret = &v
	})
}

func (s *Store) SetTwoFactorEnabled(_ context.Context, id string, enabled bool) error {
	return s.mutate(id, func(a *repository.Account) { a.TwoFactorEnabled = enabled })
}

func (s *Store) ClearTwoFactor(_ context.Context, id string) error {
	return s.mutate(id, func(a *repository.Account) {
		a.TwoFactorEnabled = false
		a.TwoFactorSecret = nil
	})
}

func (s *Store) mutate(id string, fn func(*repository.Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&a)
	a.UpdatedAt = time.Now()
	s.accounts[id] = a
	return nil
}

func cloneAccount(a repository.Account) *repository.Account {
	if a.TwoFactorSecret != nil {
		v := *a.TwoFactorSecret
		a.TwoFactorSecret = &v
	}
	return &a
}

// ─── Backup codes ───

func (s *Store) ReplaceBackupCodes(_ context.Context, accountID string, hashes []string) error {
	set := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		set[h] = struct{}{}
	}
	s.mu.Lock()
	s.codes[accountID] = set
	s.mu.Unlock()
	return nil
}

func (s *Store) ConsumeBackupCode(_ context.Context, accountID, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.codes[accountID]
	if _, ok := set[hash]; !ok {
		return false, nil
	}
	delete(set, hash)
	return true, nil
}

func (s *Store) DeleteBackupCodes(_ context.Context, accountID string) error {
	s.mu.Lock()
	delete(s.codes, accountID)
	s.mu.Unlock()
	return nil
}

func (s *Store) CountBackupCodes(_ context.Context, accountID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.codes[accountID]), nil
}

// ─── Audit ───

func (s *Store) Append(_ context.Context, e repository.AuditEntry) error {
	s.mu.Lock()
	s.audit = append(s.audit, e)
	s.mu.Unlock()
	return nil
}

// newestFirst retorna una copia ordenada por Timestamp descendente.
func (s *Store) newestFirst(match func(repository.AuditEntry) bool) []repository.AuditEntry {
	out := make([]repository.AuditEntry, 0, len(s.audit))
	for _, e := range s.audit {
		if match(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func (s *Store) List(_ context.Context, f repository.AuditFilter) ([]repository.AuditEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Fail != nil {
		return nil, 0, s.Fail
	}
	all := s.newestFirst(func(e repository.AuditEntry) bool {
		return f.EventType == "" || e.EventType == f.EventType
	})
	total := len(all)
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Offset >= total {
		return []repository.AuditEntry{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < total {
		end = f.Offset + f.Limit
	}
	return all[f.Offset:end], total, nil
}

func (s *Store) CountByIP(_ context.Context, eventType, ip string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Fail != nil {
		return 0, s.Fail
	}
	n := 0
	for _, e := range s.audit {
		if e.IP == ip && e.EventType == eventType && !e.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *Store) RecentForAccount(_ context.Context, accountID string, n int) ([]repository.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	all := s.newestFirst(func(e repository.AuditEntry) bool {
		return e.AccountID != nil && *e.AccountID == accountID
	})
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// ─── Blacklist ───

func (s *Store) ListActive(_ context.Context, now time.Time) ([]repository.BlacklistedIP, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]repository.BlacklistedIP, 0, len(s.blacklist))
	for _, b := range s.blacklist {
		if b.Active(now) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) Add(_ context.Context, b repository.BlacklistedIP) error {
	s.mu.Lock()
	s.blacklist[b.IP] = b
	s.mu.Unlock()
	return nil
}

var (
	_ repository.AccountRepository    = (*Store)(nil)
	_ repository.BackupCodeRepository = (*Store)(nil)
	_ repository.AuditRepository      = (*Store)(nil)
	_ repository.BlacklistRepository  = (*Store)(nil)
)
