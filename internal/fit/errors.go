// Package fit estimates model inputs by least squares: every residual
// evaluation runs a full simulation with the candidate inputs bound, reduces
// the output to one time series and compares it with observed data.
package fit

import (
	"errors"

	"github.com/san-kum/episim/internal/sim"
)

var (
	// ErrInvalidConfig indicates a Fitter configuration that cannot run.
	ErrInvalidConfig = errors.New("fit: invalid configuration")

	// ErrUnknownInput indicates a parameter binding the model does not declare.
	ErrUnknownInput = errors.New("fit: unknown model input")

	// ErrShapeMismatch indicates a predicted series that does not line up
	// with the observed series, or an extraction that is not one-dimensional.
	ErrShapeMismatch = errors.New("fit: shape mismatch")

	// ErrUnknownCompartment indicates a target compartment or dimension
	// missing from the simulation output.
	ErrUnknownCompartment = errors.New("fit: unknown compartment")
)

// outsideDomain reports whether err rejects the parameter point itself
// rather than the configuration. Such points cost +Inf.
func outsideDomain(err error) bool {
	return errors.Is(err, sim.ErrOutOfDomain) || errors.Is(err, sim.ErrInvalidState)
}
