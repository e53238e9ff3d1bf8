// Package auth contiene los DTOs de login y logout.
package auth

// LoginRequest admite dos formas: {email, password, code?} en un paso o
// {mfa_token, code} como segunda fase.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code,omitempty"`
	MFAToken string `json:"mfa_token,omitempty"`
}

// LoginResponse es la respuesta 200 de un login completo.
type LoginResponse struct {
	Authenticated bool   `json:"authenticated"`
	CSRFToken     string `json:"csrf_token"`
	Method        string `json:"method,omitempty"`
}

// MFARequiredResponse es la respuesta 401 cuando falta el segundo factor.
type MFARequiredResponse struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	MFARequired bool   `json:"mfa_required"`
	MFAToken    string `json:"mfa_token"`
	ExpiresIn   int    `json:"expires_in"`
}
