package security

import (
	"errors"
	"net/http"
	"strings"

	dto "github.com/dropDatabas3/lexguard/internal/http/dto/security"
	httperrors "github.com/dropDatabas3/lexguard/internal/http/errors"
	"github.com/dropDatabas3/lexguard/internal/http/helpers"
	mw "github.com/dropDatabas3/lexguard/internal/http/middlewares"
	"github.com/dropDatabas3/lexguard/internal/observability/logger"
	"github.com/dropDatabas3/lexguard/internal/security/totp"
)

// TwoFactorController maneja /2fa/setup, /2fa/enable y /2fa/disable.
// Las tres rutas van detrás de RequireAuth y RequireCSRF.
type TwoFactorController struct {
	service TwoFactorService
}

func NewTwoFactorController(service TwoFactorService) *TwoFactorController {
	return &TwoFactorController{service: service}
}

// Setup genera un secreto pendiente y devuelve QR y códigos de respaldo.
func (c *TwoFactorController) Setup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := mw.GetAccountID(ctx)
	if accountID == "" {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}

	prov, err := c.service.GenerateSecret(ctx, accountID)
	if err != nil {
		c.fail(w, r, "Setup", err)
		return
	}

	helpers.NoStore(w)
	helpers.WriteJSON(w, http.StatusOK, dto.SetupResponse{
		Secret:      prov.Secret,
		OTPAuthURL:  prov.URI,
		QRCode:      prov.QRCode,
		BackupCodes: prov.BackupCodes,
	})
}

// Enable confirma el secreto pendiente con un código.
func (c *TwoFactorController) Enable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := mw.GetAccountID(ctx)
	if accountID == "" {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}

	var req dto.EnableRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("code is required"))
		return
	}

	codes, err := c.service.Enable(ctx, accountID, req.Code)
	if err != nil {
		c.fail(w, r, "Enable", err)
		return
	}

	helpers.NoStore(w)
	helpers.WriteJSON(w, http.StatusOK, dto.EnableResponse{Enabled: true, BackupCodes: codes})
}

// Disable exige contraseña y código TOTP.
func (c *TwoFactorController) Disable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := mw.GetAccountID(ctx)
	if accountID == "" {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}

	var req dto.DisableRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.Password == "" || strings.TrimSpace(req.Code) == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("password and code are required"))
		return
	}

	if err := c.service.Disable(ctx, accountID, req.Password, req.Code); err != nil {
		c.fail(w, r, "Disable", err)
		return
	}

	helpers.NoStore(w)
	helpers.WriteJSON(w, http.StatusOK, dto.StatusResponse{Enabled: false})
}

func (c *TwoFactorController) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, totp.ErrAlreadyEnabled):
		httperrors.WriteError(w, httperrors.ErrInvalidState.WithDetail("two-factor already enabled"))
	case errors.Is(err, totp.ErrNotInitiated):
		httperrors.WriteError(w, httperrors.ErrInvalidState.WithDetail("run /2fa/setup first"))
	case errors.Is(err, totp.ErrNotEnabled):
		httperrors.WriteError(w, httperrors.ErrInvalidState.WithDetail("two-factor not enabled"))
	case errors.Is(err, totp.ErrInvalidCode), errors.Is(err, totp.ErrInvalidPassword):
		httperrors.WriteError(w, httperrors.ErrInvalidCredentials)
	default:
		logger.From(r.Context()).Error("two-factor operation failed",
			logger.Layer("controller"), logger.Op("TwoFactorController."+op), logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
	}
}
