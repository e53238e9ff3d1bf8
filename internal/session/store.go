package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dropDatabas3/lexguard/internal/cache"
	tokens "github.com/dropDatabas3/lexguard/internal/security/token"
)

// ErrNotFound indica que no hay sesión para el id (o expiró).
var ErrNotFound = errors.New("session: not found")

// CookieConfig controla la cookie de sesión.
type CookieConfig struct {
	Name     string
	Domain   string
	Secure   bool
	SameSite string // "Lax" | "Strict" | "None"
}

// Store persiste sesiones en un cache.Client bajo "sid:"+sha256(id).
type Store struct {
	cache  cache.Client
	ttl    time.Duration
	rand   io.Reader
	cookie CookieConfig
}

// NewStore crea un store; ttl debe coincidir con la vida máxima de la sesión.
func NewStore(c cache.Client, ttl time.Duration, cookie CookieConfig, r io.Reader) *Store {
	if cookie.Name == "" {
		cookie.Name = "sid"
	}
	return &Store{cache: c, ttl: ttl, rand: r, cookie: cookie}
}

func key(id string) string {
	return "sid:" + tokens.SHA256Hex(id)
}

// Create asigna un id nuevo a s y la guarda.
func (st *Store) Create(ctx context.Context, s *Session) error {
	id, err := tokens.GenerateOpaqueToken(st.rand, 32)
	if err != nil {
		return fmt.Errorf("session id: %w", err)
	}
	s.ID = id
	return st.Save(ctx, s)
}

// Save reescribe la sesión. El TTL se calcula desde CreatedAt, nunca se extiende.
func (st *Store) Save(ctx context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return ErrNotFound
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ttl := st.ttl
	if !s.CreatedAt.IsZero() {
		if remaining := time.Until(s.CreatedAt.Add(st.ttl)); remaining > 0 && remaining < ttl {
			ttl = remaining
		}
	}
	return st.cache.Set(ctx, key(s.ID), string(b), ttl)
}

// Get carga la sesión por id.
func (st *Store) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	raw, err := st.cache.Get(ctx, key(id))
	if cache.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	s.ID = id
	return &s, nil
}

// Destroy borra la sesión. Es idempotente.
func (st *Store) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return st.cache.Delete(ctx, key(id))
}

// CookieName retorna el nombre de la cookie de sesión.
func (st *Store) CookieName() string { return st.cookie.Name }

// IDFromRequest lee el id de la cookie.
func (st *Store) IDFromRequest(r *http.Request) string {
	c, err := r.Cookie(st.cookie.Name)
	if err != nil {
		return ""
	}
	return c.Value
}

// Cookie construye la cookie para s.
func (st *Store) Cookie(s *Session) *http.Cookie {
	return &http.Cookie{
		Name:     st.cookie.Name,
		Value:    s.ID,
		Path:     "/",
		Domain:   st.cookie.Domain,
		MaxAge:   int(st.ttl.Seconds()),
		HttpOnly: true,
		Secure:   st.cookie.Secure,
		SameSite: sameSite(st.cookie.SameSite),
	}
}

// DeletionCookie expira la cookie de sesión en el cliente.
func (st *Store) DeletionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     st.cookie.Name,
		Value:    "",
		Path:     "/",
		Domain:   st.cookie.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   st.cookie.Secure,
		SameSite: sameSite(st.cookie.SameSite),
	}
}

func sameSite(v string) http.SameSite {
	switch v {
	case "Strict":
		return http.SameSiteStrictMode
	case "None":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
