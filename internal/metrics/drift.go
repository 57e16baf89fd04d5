package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/episim/internal/sim"
)

// PopulationDrift is the largest relative change of the total count from
// the first observation. Closed compartment models keep it near zero.
type PopulationDrift struct {
	initial  float64
	maxDrift float64
	samples  int
}

func NewPopulationDrift() *PopulationDrift {
	return &PopulationDrift{}
}

func (p *PopulationDrift) Name() string { return "population_drift" }

func (p *PopulationDrift) Observe(x sim.State, t float64) {
	total := floats.Sum(x)
	if p.samples == 0 {
		p.initial = total
	}
	p.samples++

	if p.initial != 0 {
		drift := math.Abs(total-p.initial) / math.Abs(p.initial)
		p.maxDrift = math.Max(p.maxDrift, drift)
	}
}

func (p *PopulationDrift) Value() float64 { return p.maxDrift }

func (p *PopulationDrift) Reset() {
	p.initial = 0
	p.maxDrift = 0
	p.samples = 0
}
