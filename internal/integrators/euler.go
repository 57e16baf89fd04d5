package integrators

import "github.com/san-kum/episim/internal/sim"

// Euler applies counts += dt * rates once per tick, the discrete-time update
// compartment models are usually specified with.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(dyn sim.Dynamics, x sim.State, t float64, dt float64) sim.State {
	dx := dyn.Derivative(x, t)
	result := make(sim.State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result
}
