package security

import (
	"errors"
	"net/http"

	dto "github.com/dropDatabas3/lexguard/internal/http/dto/security"
	httperrors "github.com/dropDatabas3/lexguard/internal/http/errors"
	"github.com/dropDatabas3/lexguard/internal/http/helpers"
	mw "github.com/dropDatabas3/lexguard/internal/http/middlewares"
	svc "github.com/dropDatabas3/lexguard/internal/http/services/security"
	"github.com/dropDatabas3/lexguard/internal/observability/logger"
)

// CSRFController maneja GET /csrf-token.
type CSRFController struct {
	service svc.CSRFService
}

func NewCSRFController(service svc.CSRFService) *CSRFController {
	return &CSRFController{service: service}
}

// GetToken rota el token de la sesión y lo devuelve en el body. El token no
// viaja en cookie: el cliente lo reenvía en X-CSRF-Token.
func (c *CSRFController) GetToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("CSRFController.GetToken"))

	tok, err := c.service.Rotate(ctx, mw.GetSession(ctx))
	if err != nil {
		if errors.Is(err, svc.ErrNoSession) {
			httperrors.WriteError(w, httperrors.ErrUnauthorized)
			return
		}
		log.Error("failed to rotate CSRF token", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return
	}

	helpers.NoStore(w)
	helpers.WriteJSON(w, http.StatusOK, dto.CSRFResponse{CSRFToken: tok})
	log.Debug("csrf token issued")
}
