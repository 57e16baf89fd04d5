package fit

import (
	"context"
	"fmt"

	"github.com/san-kum/episim/internal/labeled"
	"github.com/san-kum/episim/internal/sim"
)

var (
	keyBeta  = sim.VarKey{Process: "foi", Name: "beta"}
	keyGamma = sim.VarKey{Process: "seir", Name: "gamma_h"}
)

// stubRunner fabricates a counts output whose Ih series is predict(beta),
// split evenly across two vertices.
type stubRunner struct {
	compartments []string
	predict      func(beta float64) []float64
	runs         int
	seen         []sim.Setup
	err          error
}

func newStubRunner(predict func(float64) []float64) *stubRunner {
	return &stubRunner{
		compartments: []string{"S", "Ih", "R"},
		predict:      predict,
	}
}

func (s *stubRunner) Inputs(model string) ([]sim.VarKey, error) {
	if model != "stub" {
		return nil, fmt.Errorf("%w: %s", sim.ErrUnknownModel, model)
	}
	return []sim.VarKey{keyBeta, keyGamma}, nil
}

func (s *stubRunner) Run(ctx context.Context, setup sim.Setup) (*sim.Output, error) {
	s.runs++
	s.seen = append(s.seen, setup)
	if s.err != nil {
		return nil, s.err
	}

	beta, ok := setup.Input(keyBeta)
	if !ok {
		return nil, fmt.Errorf("%w: %s", sim.ErrMissingInput, keyBeta)
	}
	series := s.predict(beta)

	steps := make([]string, len(series))
	for i := range steps {
		steps[i] = fmt.Sprint(i)
	}
	arr, err := labeled.New(
		[]string{sim.DimStep, sim.DimVertex, sim.DimAgeGroup, sim.DimRiskGroup, sim.DimCompartment},
		map[string][]string{
			sim.DimStep:        steps,
			sim.DimVertex:      {"a", "b"},
			sim.DimAgeGroup:    {"all"},
			sim.DimRiskGroup:   {"low"},
			sim.DimCompartment: s.compartments,
		},
	)
	if err != nil {
		return nil, err
	}
	ih, err := arr.Index(sim.DimCompartment, "Ih")
	for i, v := range series {
		arr.Set(1000, i, 0, 0, 0, 0)
		if err == nil {
			arr.Set(v/2, i, 0, 0, 0, ih)
			arr.Set(v/2, i, 1, 0, 0, ih)
		}
	}
	return &sim.Output{Vars: map[string]*labeled.Array{sim.VarCounts: arr}}, nil
}

func stubConfig(observed []float64) Config {
	return Config{
		Setup:    sim.Setup{Model: "stub"},
		Params:   []sim.VarKey{keyBeta},
		Guess:    []float64{0.5},
		Observed: observed,
		Target:   "Ih",
	}
}
