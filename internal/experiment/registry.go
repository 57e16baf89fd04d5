package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/episim/internal/integrators"
	"github.com/san-kum/episim/internal/metrics"
	"github.com/san-kum/episim/internal/models"
	"github.com/san-kum/episim/internal/sim"
)

// DefaultIntegrator is used when a Setup leaves Integrator empty.
const DefaultIntegrator = "euler"

type Registry struct {
	models      map[string]func() *models.Definition
	integrators map[string]func() sim.Integrator
}

func NewRegistry() *Registry {
	r := &Registry{
		models:      make(map[string]func() *models.Definition),
		integrators: make(map[string]func() sim.Integrator),
	}

	r.RegisterModel("sir", models.SIR)
	r.RegisterModel("seir", models.SEIR)

	r.integrators["euler"] = func() sim.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() sim.Integrator { return integrators.NewRK4() }
	r.integrators["rk45"] = func() sim.Integrator { return integrators.NewRK45() }

	return r
}

// RegisterModel adds or replaces a model definition.
func (r *Registry) RegisterModel(name string, fn func() *models.Definition) {
	r.models[name] = fn
}

func (r *Registry) GetModel(name string) (*models.Definition, error) {
	fn, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", sim.ErrUnknownModel, name)
	}
	return fn(), nil
}

func (r *Registry) GetIntegrator(name string) (sim.Integrator, error) {
	if name == "" {
		name = DefaultIntegrator
	}
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", sim.ErrUnknownIntegrator, name)
	}
	return fn(), nil
}

func (r *Registry) ListModels() []string {
	return sortedKeys(r.models)
}

func (r *Registry) ListIntegrators() []string {
	return sortedKeys(r.integrators)
}

func sortedKeys[T any](m map[string]T) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultMetrics observes prevalence, final size and conservation.
func (r *Registry) DefaultMetrics(m *models.Model) []sim.Metric {
	peak := metrics.NewPeak("peak_prevalence", m.Indices(m.Prevalence()...))
	return []sim.Metric{
		peak,
		metrics.NewPeakTime(peak),
		metrics.NewFinalSize("final_size", m.Indices(m.Graph().Sinks()...)),
		metrics.NewPopulationDrift(),
		metrics.NewNonNegative(1e-9),
	}
}
