package models

import (
	"fmt"
	"sort"

	"github.com/san-kum/episim/internal/sim"
)

type Input struct {
	Key      sim.VarKey
	Default  float64
	Required bool
	Doc      string
}

// Params are resolved input values.
type Params map[sim.VarKey]float64

func (p Params) Get(k sim.VarKey) float64 { return p[k] }

type Transition struct {
	From string
	To   string
	// Rate is the per-capita rate out of From for a risk group index.
	Rate func(p Params, risk int) float64
	// Infection transitions are additionally scaled by the force of
	// infection.
	Infection bool
}

// Infectivity weights a compartment's contribution to transmission.
type Infectivity struct {
	Compartment string
	Weight      func(p Params) float64
}

// IndexCase adds the value of Input to Compartment at the index vertex,
// first age group and first risk group.
type IndexCase struct {
	Compartment string
	Input       sim.VarKey
}

type Definition struct {
	Name         string
	Compartments []string
	Transitions  []Transition
	Infectious   []Infectivity
	// Removed compartments do not count toward the mixing population.
	Removed   []string
	Inputs    []Input
	IndexCase *IndexCase
	// Prevalence lists the compartments reported as currently infected.
	Prevalence []string
}

func (d *Definition) Graph() (*CompartmentGraph, error) {
	g, err := NewCompartmentGraph(d.Compartments, d.Transitions)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", d.Name, err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("model %s: %w", d.Name, err)
	}
	return g, nil
}

func (d *Definition) InputKeys() []sim.VarKey {
	keys := make([]sim.VarKey, len(d.Inputs))
	for i, in := range d.Inputs {
		keys[i] = in.Key
	}
	return keys
}

func (d *Definition) HasInput(k sim.VarKey) bool {
	for _, in := range d.Inputs {
		if in.Key == k {
			return true
		}
	}
	return false
}

// Resolve checks bound against the declared inputs and fills in defaults.
func (d *Definition) Resolve(bound map[sim.VarKey]float64) (Params, error) {
	var unknown []string
	for k := range bound {
		if !d.HasInput(k) {
			unknown = append(unknown, k.String())
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: model %s does not declare %v", sim.ErrUnknownInput, d.Name, unknown)
	}

	params := make(Params, len(d.Inputs))
	for _, in := range d.Inputs {
		v, ok := bound[in.Key]
		if !ok {
			if in.Required {
				return nil, fmt.Errorf("%w: model %s requires %s", sim.ErrMissingInput, d.Name, in.Key)
			}
			v = in.Default
		}
		params[in.Key] = v
	}
	return params, nil
}

func param(k sim.VarKey) func(Params, int) float64 {
	return func(p Params, _ int) float64 { return p.Get(k) }
}

func weight(k sim.VarKey) func(Params) float64 {
	return func(p Params) float64 { return p.Get(k) }
}

func unit(Params) float64 { return 1 }
