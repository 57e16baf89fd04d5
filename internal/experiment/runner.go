package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/san-kum/episim/internal/labeled"
	"github.com/san-kum/episim/internal/models"
	"github.com/san-kum/episim/internal/sim"
)

// VarPrevalence sums the model's prevalence compartments per stratum.
const VarPrevalence = "prevalence"

// Runner builds a model from the registry for every Setup and integrates it
// over the setup's clock. It holds no per-run state and is safe for
// concurrent use.
type Runner struct {
	registry *Registry
	logger   *slog.Logger
}

func NewRunner(registry *Registry, logger *slog.Logger) *Runner {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{registry: registry, logger: logger}
}

func (r *Runner) Registry() *Registry { return r.registry }

func (r *Runner) Inputs(model string) ([]sim.VarKey, error) {
	def, err := r.registry.GetModel(model)
	if err != nil {
		return nil, err
	}
	return def.InputKeys(), nil
}

// Build resolves the setup's inputs and stratification into a model.
func (r *Runner) Build(setup sim.Setup) (*models.Model, error) {
	def, err := r.registry.GetModel(setup.Model)
	if err != nil {
		return nil, err
	}
	if err := setup.ValidateInputs(); err != nil {
		return nil, err
	}
	params, err := def.Resolve(setup.Inputs)
	if err != nil {
		return nil, err
	}
	return models.Build(def, params, models.Options{
		Coords:      withDefaults(setup.Coords),
		Seeds:       setup.Seeds,
		IndexVertex: setup.IndexVertex,
		Contacts:    setup.Contacts,
		Mixing:      setup.Mixing,
	})
}

func (r *Runner) Run(ctx context.Context, setup sim.Setup) (*sim.Output, error) {
	outputs := setup.Outputs
	if len(outputs) == 0 {
		outputs = []string{sim.VarCounts}
	}
	for _, name := range outputs {
		if name != sim.VarCounts && name != VarPrevalence {
			return nil, fmt.Errorf("%w: %q", sim.ErrUnknownOutput, name)
		}
	}

	dt, err := setup.Clock.Dt()
	if err != nil {
		return nil, err
	}

	model, err := r.Build(setup)
	if err != nil {
		return nil, err
	}
	integ, err := r.registry.GetIntegrator(setup.Integrator)
	if err != nil {
		return nil, err
	}

	simulator := sim.New(model, integ)
	for _, m := range r.registry.DefaultMetrics(model) {
		simulator.AddMetric(m)
	}

	start := time.Now()
	result, err := simulator.Run(ctx, model.InitialState(), sim.Config{
		Dt:            dt,
		Steps:         len(setup.Clock) - 1,
		ValidateState: true,
	})
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", setup.Model, err)
	}

	counts, err := countsArray(model, setup.Clock, result.States)
	if err != nil {
		return nil, err
	}

	out := &sim.Output{
		Times:   append([]time.Time(nil), setup.Clock...),
		Vars:    make(map[string]*labeled.Array, len(outputs)),
		Metrics: result.Metrics,
	}
	for _, name := range outputs {
		switch name {
		case sim.VarCounts:
			out.Vars[name] = counts
		case VarPrevalence:
			prev, err := prevalence(counts, model.Prevalence())
			if err != nil {
				return nil, err
			}
			out.Vars[name] = prev
		}
	}

	r.logger.Debug("run finished",
		"model", setup.Model,
		"integrator", setup.Integrator,
		"steps", result.StepsTaken,
		"elapsed", time.Since(start),
	)

	return out, nil
}

func withDefaults(c sim.Coords) sim.Coords {
	def := sim.DefaultCoords()
	if len(c.Vertex) == 0 {
		c.Vertex = def.Vertex
	}
	if len(c.AgeGroup) == 0 {
		c.AgeGroup = def.AgeGroup
	}
	if len(c.RiskGroup) == 0 {
		c.RiskGroup = def.RiskGroup
	}
	return c
}

// countsArray lays recorded states out as (step, vertex, age_group,
// risk_group, compartment), which matches the model's state layout.
func countsArray(m *models.Model, clock sim.Clock, states []sim.State) (*labeled.Array, error) {
	if len(states) != len(clock) {
		return nil, fmt.Errorf("recorded %d states for %d clock ticks", len(states), len(clock))
	}
	coords := m.Coords()
	arr, err := labeled.New(
		[]string{sim.DimStep, sim.DimVertex, sim.DimAgeGroup, sim.DimRiskGroup, sim.DimCompartment},
		map[string][]string{
			sim.DimStep:        clock.Labels(),
			sim.DimVertex:      coords.Vertex,
			sim.DimAgeGroup:    coords.AgeGroup,
			sim.DimRiskGroup:   coords.RiskGroup,
			sim.DimCompartment: m.Compartments(),
		},
	)
	if err != nil {
		return nil, err
	}
	for i, x := range states {
		copy(arr.Slab(i), x)
	}
	return arr, nil
}

func prevalence(counts *labeled.Array, compartments []string) (*labeled.Array, error) {
	var total *labeled.Array
	for _, c := range compartments {
		sel, err := counts.Sel(sim.DimCompartment, c)
		if err != nil {
			return nil, err
		}
		if total == nil {
			total = sel
			continue
		}
		dst := total.Data()
		for i, v := range sel.Data() {
			dst[i] += v
		}
	}
	if total == nil {
		return nil, fmt.Errorf("model declares no prevalence compartments")
	}
	return total, nil
}
