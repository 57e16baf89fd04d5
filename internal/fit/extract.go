package fit

import (
	"fmt"
	"math"

	"github.com/san-kum/episim/internal/labeled"
	"github.com/san-kum/episim/internal/sim"
)

type ExtractOptions struct {
	// Target is the compartment label to select.
	Target         string
	CompartmentDim string
	TimeDim        string
}

func (o ExtractOptions) withDefaults() ExtractOptions {
	if o.CompartmentDim == "" {
		o.CompartmentDim = sim.DimCompartment
	}
	if o.TimeDim == "" {
		o.TimeDim = sim.DimStep
	}
	return o
}

// Extract selects the target compartment and sums every dimension except
// time, giving one value per time step.
func Extract(out *labeled.Array, opts ExtractOptions) ([]float64, error) {
	opts = opts.withDefaults()

	if !out.HasDim(opts.TimeDim) {
		return nil, fmt.Errorf("%w: no time dimension %q: %w", ErrShapeMismatch, opts.TimeDim, labeled.ErrNoSuchDim)
	}
	if opts.TimeDim == opts.CompartmentDim {
		return nil, fmt.Errorf("%w: time and compartment share dimension %q", ErrShapeMismatch, opts.TimeDim)
	}

	sel, err := out.Sel(opts.CompartmentDim, opts.Target)
	if err != nil {
		return nil, fmt.Errorf("%w: %q on %q: %w", ErrUnknownCompartment, opts.Target, opts.CompartmentDim, err)
	}

	series, err := sel.SumExcept(opts.TimeDim)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShapeMismatch, err)
	}

	if dims := series.Dims(); len(dims) != 1 || dims[0] != opts.TimeDim {
		return nil, fmt.Errorf("%w: expected dims [%s], got %v", ErrShapeMismatch, opts.TimeDim, dims)
	}
	return series.Values()
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
