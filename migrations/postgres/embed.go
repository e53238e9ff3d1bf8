// Package migrations embebe los archivos SQL de migración.
package migrations

import "embed"

// SecurityFS contiene las migraciones del esquema de seguridad.
//
//go:embed security/*.sql
var SecurityFS embed.FS

// SecurityDir es el directorio dentro de SecurityFS.
const SecurityDir = "security"
