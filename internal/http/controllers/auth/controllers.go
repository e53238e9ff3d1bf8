// Package auth contiene los controllers de login y logout.
package auth

import (
	"net/http"

	svc "github.com/dropDatabas3/lexguard/internal/http/services/auth"
	"github.com/dropDatabas3/lexguard/internal/session"
)

// SessionCookies construye las cookies de sesión.
type SessionCookies interface {
	IDFromRequest(r *http.Request) string
	Cookie(s *session.Session) *http.Cookie
	DeletionCookie() *http.Cookie
}

// Controllers agrupa los controllers del dominio auth.
type Controllers struct {
	Login  *LoginController
	Logout *LogoutController
}

// NewControllers crea el agregador de controllers auth.
func NewControllers(login svc.LoginService, logout svc.LogoutService, cookies SessionCookies) *Controllers {
	return &Controllers{
		Login:  NewLoginController(login, cookies),
		Logout: NewLogoutController(logout, cookies),
	}
}
