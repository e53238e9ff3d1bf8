// Package security agrupa los componentes del núcleo de seguridad: TOTP, CSRF,
// fingerprint, riesgo por IP y detección de anomalías.
//
// Cada componente declara su Criticality para que el pipeline HTTP decida,
// sin try/catch dispersos, qué hacer cuando el chequeo falla internamente.
package security

import "time"

// Criticality indica la política ante un error interno del componente.
type Criticality int

const (
	// HardGate: ante error se deniega el request (fail-closed).
	HardGate Criticality = iota
	// SoftSignal: ante error se continúa con un default seguro (fail-open).
	SoftSignal
)

func (c Criticality) String() string {
	switch c {
	case HardGate:
		return "hard_gate"
	case SoftSignal:
		return "soft_signal"
	default:
		return "unknown"
	}
}

// FailOpen reporta si el request debe seguir cuando el chequeo falla.
func (c Criticality) FailOpen() bool { return c == SoftSignal }

// Check es implementado por cada componente que participa del pipeline.
type Check interface {
	Name() string
	Criticality() Criticality
}

// CriticalityOf retorna la criticidad que declara c, o def si c no es un Check.
func CriticalityOf(c any, def Criticality) Criticality {
	if chk, ok := c.(Check); ok {
		return chk.Criticality()
	}
	return def
}

// Clock abstrae el reloj para tests deterministas.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapta una función a Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock usa time.Now.
var SystemClock Clock = ClockFunc(time.Now)

// FixedClock retorna siempre t. Útil en tests.
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

// OrSystem retorna c o SystemClock si c es nil.
func OrSystem(c Clock) Clock {
	if c == nil {
		return SystemClock
	}
	return c
}
