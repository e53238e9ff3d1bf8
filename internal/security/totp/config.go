package totp

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Config parametriza la generación y verificación de códigos.
type Config struct {
	Issuer string
	// Skew es la cantidad de pasos adyacentes aceptados en cada dirección.
	// nil toma el default (2); SkewSteps(0) exige el paso exacto.
	Skew       *uint
	Period     time.Duration
	Digits     int
	SecretSize uint

	BackupCodeCount  int
	BackupCodeLength int

	// QRSize es el lado en píxeles del PNG de aprovisionamiento.
	QRSize int
}

// DefaultConfig: SHA1, 6 dígitos, pasos de 30s, ±2 pasos.
func DefaultConfig() Config {
	return Config{
		Issuer:           "LexGuard",
		Skew:             SkewSteps(2),
		Period:           30 * time.Second,
		Digits:           6,
		SecretSize:       20,
		BackupCodeCount:  8,
		BackupCodeLength: 8,
		QRSize:           200,
	}
}

// SkewSteps arma el valor de Config.Skew.
func SkewSteps(n uint) *uint { return &n }

func (c *Config) defaults() {
	d := DefaultConfig()
	if c.Skew == nil {
		c.Skew = d.Skew
	}
	if c.Issuer == "" {
		c.Issuer = d.Issuer
	}
	if c.Period <= 0 {
		c.Period = d.Period
	}
	if c.Digits != 6 && c.Digits != 8 {
		c.Digits = d.Digits
	}
	if c.SecretSize < 20 {
		c.SecretSize = d.SecretSize
	}
	if c.BackupCodeCount <= 0 {
		c.BackupCodeCount = d.BackupCodeCount
	}
	if c.BackupCodeLength <= 0 {
		c.BackupCodeLength = d.BackupCodeLength
	}
	if c.QRSize <= 0 {
		c.QRSize = d.QRSize
	}
}

func (c Config) digits() otp.Digits {
	if c.Digits == 8 {
		return otp.DigitsEight
	}
	return otp.DigitsSix
}

func (c Config) validateOpts() totp.ValidateOpts {
	skew := uint(2)
	if c.Skew != nil {
		skew = *c.Skew
	}
	return totp.ValidateOpts{
		Period:    uint(c.Period / time.Second),
		Skew:      skew,
		Digits:    c.digits(),
		Algorithm: otp.AlgorithmSHA1,
	}
}

// GenerateCode calcula el código de secret en t. Lo usan tests y el CLI.
func GenerateCode(cfg Config, secret string, t time.Time) (string, error) {
	cfg.defaults()
	return totp.GenerateCodeCustom(secret, t, cfg.validateOpts())
}
