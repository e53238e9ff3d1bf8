package middlewares

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	httperrors "github.com/dropDatabas3/lexguard/internal/http/errors"
	"github.com/dropDatabas3/lexguard/internal/observability/logger"
)

// DefaultMaxBody es el tamaño máximo de body JSON inspeccionado.
const DefaultMaxBody int64 = 1 << 20

// UnsafeKey reporta si una clave puede usarse para inyección de operadores o
// contaminación de prototipos en consumidores aguas abajo.
func UnsafeKey(k string) bool {
	if strings.HasPrefix(k, "$") || strings.Contains(k, ".") {
		return true
	}
	switch k {
	case "__proto__", "constructor", "prototype":
		return true
	}
	return false
}

// WithSanitize elimina claves inseguras de la query y de bodies JSON.
// Un body que excede maxBody se rechaza con 413; un body JSON inválido pasa
// intacto y lo rechaza el handler.
func WithSanitize(maxBody int64) Middleware {
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logger.From(r.Context())

			if r.URL.RawQuery != "" {
				q := r.URL.Query()
				removed := 0
				for k := range q {
					if UnsafeKey(k) {
						q.Del(k)
						removed++
					}
				}
				if removed > 0 {
					r.URL.RawQuery = q.Encode()
					log.Warn("unsafe query keys removed", logger.Count(removed))
				}
			}

			if r.Body != nil && r.Body != http.NoBody && isJSON(r) {
				raw, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
				_ = r.Body.Close()
				if err != nil {
					httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("unreadable body"))
					return
				}
				if int64(len(raw)) > maxBody {
					httperrors.WriteError(w, httperrors.ErrBodyTooLarge)
					return
				}
				if clean, removed, err := sanitizeJSON(raw); err == nil && removed > 0 {
					raw = clean
					log.Warn("unsafe body keys removed", logger.Count(removed))
				}
				r.Body = io.NopCloser(bytes.NewReader(raw))
				r.ContentLength = int64(len(raw))
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isJSON(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json")
}

var errNotJSON = errors.New("not json")

// sanitizeJSON retorna el body sin claves inseguras y cuántas eliminó.
func sanitizeJSON(raw []byte) ([]byte, int, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return raw, 0, errNotJSON
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return raw, 0, err
	}
	removed := sanitizeValue(v)
	if removed == 0 {
		return raw, 0, nil
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw, 0, err
	}
	return out, removed, nil
}

func sanitizeValue(v any) int {
	removed := 0
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if UnsafeKey(k) {
				delete(t, k)
				removed++
				continue
			}
			removed += sanitizeValue(child)
		}
	case []any:
		for _, child := range t {
			removed += sanitizeValue(child)
		}
	}
	return removed
}
