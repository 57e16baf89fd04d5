package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState indicates a state vector with NaN or Inf entries.
	ErrInvalidState = errors.New("sim: invalid state (NaN or Inf detected)")

	// ErrMissingInput indicates a required model input without a binding.
	ErrMissingInput = errors.New("sim: missing required input")

	// ErrUnknownInput indicates a binding for an input the model does not declare.
	ErrUnknownInput = errors.New("sim: unknown input")

	// ErrUnknownOutput indicates an output variable the runner cannot produce.
	ErrUnknownOutput = errors.New("sim: unknown output variable")

	// ErrUnknownModel indicates a model name absent from the registry.
	ErrUnknownModel = errors.New("sim: unknown model")

	// ErrUnknownIntegrator indicates an integrator name absent from the registry.
	ErrUnknownIntegrator = errors.New("sim: unknown integrator")

	// ErrOutOfDomain indicates inputs a model cannot run with, such as a
	// negative rate. Fitting treats these points as infinitely costly.
	ErrOutOfDomain = errors.New("sim: input outside model domain")

	// ErrInvalidClock indicates a time-step schedule with fewer than two ticks
	// or uneven spacing.
	ErrInvalidClock = errors.New("sim: invalid clock")
)

type SimError struct {
	Step    int
	Time    float64
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %s", e.Step, e.Time, e.Message)
}

func (e SimError) Unwrap() error {
	return ErrInvalidState
}
