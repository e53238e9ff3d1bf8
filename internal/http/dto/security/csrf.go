// Package security contiene los DTOs de CSRF y 2FA.
package security

// CSRFResponse es la respuesta de GET /csrf-token.
type CSRFResponse struct {
	CSRFToken string `json:"csrf_token"`
}
