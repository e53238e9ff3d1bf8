package auth

import (
	"net/http"

	httperrors "github.com/dropDatabas3/lexguard/internal/http/errors"
	mw "github.com/dropDatabas3/lexguard/internal/http/middlewares"
	svc "github.com/dropDatabas3/lexguard/internal/http/services/auth"
	"github.com/dropDatabas3/lexguard/internal/observability/logger"
)

// LogoutController maneja POST /logout.
type LogoutController struct {
	service svc.LogoutService
	cookies SessionCookies
}

func NewLogoutController(service svc.LogoutService, cookies SessionCookies) *LogoutController {
	return &LogoutController{service: service, cookies: cookies}
}

func (c *LogoutController) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LogoutController.Logout"))

	sess := mw.GetSession(ctx)
	if sess == nil || !sess.Authenticated {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}
	if err := c.service.Logout(ctx, sess); err != nil {
		log.Error("logout failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return
	}
	mw.SetSession(ctx, nil)

	http.SetCookie(w, c.cookies.DeletionCookie())
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusNoContent)
}
