// Package tokens contiene primitivas criptográficas: tokens aleatorios,
// códigos numéricos, digests y comparación en tiempo constante.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

var ErrInvalidLength = errors.New("tokens: invalid length")

// reader retorna r o crypto/rand.Reader.
func reader(r io.Reader) io.Reader {
	if r == nil {
		return rand.Reader
	}
	return r
}

// RandomBytes lee n bytes de r (crypto/rand si r es nil).
func RandomBytes(r io.Reader, n int) ([]byte, error) {
	if n <= 0 {
		return nil, ErrInvalidLength
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(reader(r), b); err != nil {
		return nil, fmt.Errorf("read random: %w", err)
	}
	return b, nil
}

// RandomHex genera n bytes aleatorios codificados en hex (2n caracteres).
func RandomHex(r io.Reader, n int) (string, error) {
	b, err := RandomBytes(r, n)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateOpaqueToken genera un token opaco aleatorio (base64url sin padding).
func GenerateOpaqueToken(r io.Reader, n int) (string, error) {
	b, err := RandomBytes(r, n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RandomDigits genera un string de n dígitos decimales uniformes.
// Usa rejection sampling: bytes >= 250 se descartan para evitar sesgo de módulo.
func RandomDigits(r io.Reader, n int) (string, error) {
	if n <= 0 {
		return "", ErrInvalidLength
	}
	r = reader(r)
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		for _, b := range buf {
			if b >= 250 {
				continue
			}
			out = append(out, '0'+b%10)
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// SHA256Hex devuelve sha256(input) en hexadecimal.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ConstantTimeEqual compara a y b sin filtrar por timing la posición del
// primer byte distinto. Strings vacíos nunca son iguales.
func ConstantTimeEqual(a, b string) bool {
	if a == "" || b == "" || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
