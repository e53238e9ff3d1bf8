// Package repository define las interfaces de persistencia del núcleo de
// seguridad, independientes del almacenamiento (PostgreSQL o memoria).
//
// Las implementaciones viven en internal/store/pg y internal/store/memory.
//
//	┌─────────────────────────────────────────────┐
//	│      services / security components          │
//	└─────────────────────────────────────────────┘
//	                    │
//	                    ▼
//	┌─────────────────────────────────────────────┐
//	│   domain/repository (interfaces)            │
//	│   Account, BackupCode, Audit, Blacklist     │
//	└─────────────────────────────────────────────┘
//	             ┌──────┴──────┐
//	             ▼             ▼
//	      ┌──────────┐   ┌──────────┐
//	      │ store/pg │   │ memory   │
//	      └──────────┘   └──────────┘
//
// Convenciones:
//   - Context siempre es el primer parámetro
//   - Errores de dominio están en errors.go
package repository
