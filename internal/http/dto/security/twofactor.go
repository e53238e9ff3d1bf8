package security

// SetupResponse es la respuesta de POST /2fa/setup.
type SetupResponse struct {
	Secret      string   `json:"secret"`
	OTPAuthURL  string   `json:"otpauth_url"`
	QRCode      string   `json:"qr_code"`
	BackupCodes []string `json:"backup_codes"`
}

// EnableRequest es el body de POST /2fa/enable.
type EnableRequest struct {
	Code string `json:"code"`
}

// EnableResponse devuelve los códigos de respaldo vigentes.
type EnableResponse struct {
	Enabled     bool     `json:"enabled"`
	BackupCodes []string `json:"backup_codes"`
}

// DisableRequest es el body de POST /2fa/disable.
type DisableRequest struct {
	Password string `json:"password"`
	Code     string `json:"code"`
}

// StatusResponse es la respuesta de operaciones sin payload.
type StatusResponse struct {
	Enabled bool `json:"enabled"`
}
