package sniper

import "time"

// Clock abstrae el tiempo para poder probar el scheduler sin esperas reales.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock devuelve el reloj del sistema.
func RealClock() Clock {
	return realClock{}
}
