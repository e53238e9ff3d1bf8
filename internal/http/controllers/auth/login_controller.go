package auth

import (
	"errors"
	"net/http"

	dto "github.com/dropDatabas3/lexguard/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/lexguard/internal/http/errors"
	"github.com/dropDatabas3/lexguard/internal/http/helpers"
	mw "github.com/dropDatabas3/lexguard/internal/http/middlewares"
	svc "github.com/dropDatabas3/lexguard/internal/http/services/auth"
	"github.com/dropDatabas3/lexguard/internal/observability/logger"
	"github.com/dropDatabas3/lexguard/internal/security/fingerprint"
)

// LoginController maneja POST /login y POST /2fa/verify.
type LoginController struct {
	service svc.LoginService
	cookies SessionCookies
}

func NewLoginController(service svc.LoginService, cookies SessionCookies) *LoginController {
	return &LoginController{service: service, cookies: cookies}
}

// Login acepta {email, password, code?} o {mfa_token, code}.
func (c *LoginController) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	c.login(w, r, req)
}

// VerifyMFA es la segunda fase en su propia ruta: solo {mfa_token, code}.
func (c *LoginController) VerifyMFA(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.MFAToken == "" || req.Code == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("mfa_token and code are required"))
		return
	}
	c.login(w, r, dto.LoginRequest{MFAToken: req.MFAToken, Code: req.Code})
}

func (c *LoginController) login(w http.ResponseWriter, r *http.Request, req dto.LoginRequest) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LoginController.Login"))

	ip := mw.GetClientIP(ctx)
	client := svc.ClientInfo{
		IP:                ip,
		UserAgent:         r.UserAgent(),
		Fingerprint:       fingerprint.FromRequest(r, ip),
		PreviousSessionID: c.cookies.IDFromRequest(r),
	}

	res, err := c.service.Login(ctx, svc.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Code:     req.Code,
		MFAToken: req.MFAToken,
	}, client)
	if err != nil {
		switch {
		case errors.Is(err, svc.ErrMissingFields):
			httperrors.WriteError(w, httperrors.ErrMissingFields)
		case errors.Is(err, svc.ErrInvalidCredentials):
			httperrors.WriteError(w, httperrors.ErrInvalidCredentials)
		default:
			log.Error("login error", logger.Err(err))
			httperrors.WriteError(w, httperrors.ErrInternalServerError)
		}
		return
	}

	helpers.NoStore(w)
	if res.MFARequired {
		helpers.WriteJSON(w, http.StatusUnauthorized, dto.MFARequiredResponse{
			Code:        httperrors.ErrMFARequired.Code,
			Message:     httperrors.ErrMFARequired.Message,
			MFARequired: true,
			MFAToken:    res.MFAToken,
			ExpiresIn:   int(res.MFAExpiresIn.Seconds()),
		})
		return
	}

	http.SetCookie(w, c.cookies.Cookie(res.Session))
	mw.SetSession(ctx, res.Session)

	helpers.WriteJSON(w, http.StatusOK, dto.LoginResponse{
		Authenticated: true,
		CSRFToken:     res.Session.CSRFToken,
		Method:        res.Method,
	})
	log.Debug("login completed", logger.AccountID(res.Session.AccountID))
}
