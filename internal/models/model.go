package models

import (
	"fmt"

	"github.com/san-kum/episim/internal/sim"
)

// ErrNegativeRate marks a transition whose resolved rate is below zero.
var ErrNegativeRate = fmt.Errorf("%w: negative rate", sim.ErrOutOfDomain)

type Options struct {
	Coords      sim.Coords
	Seeds       []sim.Seed
	IndexVertex string
	Contacts    [][]float64
	Mixing      [][]float64
}

type flow struct {
	from, to  int
	rate      []float64
	infection bool
}

// Model is a Definition bound to parameters and a stratification. The state
// is laid out row-major as (vertex, age_group, risk_group, compartment).
type Model struct {
	def     *Definition
	graph   *CompartmentGraph
	params  Params
	coords  sim.Coords
	comps   []string
	compIdx map[string]int

	nV, nA, nR, nC int

	flows       []flow
	infectivity []float64
	living      []bool
	contacts    [][]float64
	mixing      [][]float64
	x0          sim.State

	pop  []float64
	ieff []float64
}

func Build(def *Definition, params Params, opts Options) (*Model, error) {
	g, err := def.Graph()
	if err != nil {
		return nil, err
	}

	coords := opts.Coords
	if len(coords.Vertex) == 0 || len(coords.AgeGroup) == 0 || len(coords.RiskGroup) == 0 {
		return nil, fmt.Errorf("model %s: vertex, age_group and risk_group need at least one label", def.Name)
	}

	m := &Model{
		def:     def,
		graph:   g,
		params:  params,
		coords:  coords,
		comps:   g.Compartments(),
		compIdx: make(map[string]int),
		nV:      len(coords.Vertex),
		nA:      len(coords.AgeGroup),
		nR:      len(coords.RiskGroup),
	}
	m.nC = len(m.comps)
	for i, c := range m.comps {
		m.compIdx[c] = i
	}

	for _, tr := range def.Transitions {
		f := flow{
			from:      m.compIdx[tr.From],
			to:        m.compIdx[tr.To],
			rate:      make([]float64, m.nR),
			infection: tr.Infection,
		}
		for r := range f.rate {
			f.rate[r] = tr.Rate(params, r)
			if f.rate[r] < 0 {
				return nil, fmt.Errorf("model %s: %w %s->%s (%v)", def.Name, ErrNegativeRate, tr.From, tr.To, f.rate[r])
			}
		}
		m.flows = append(m.flows, f)
	}

	m.infectivity = make([]float64, m.nC)
	for _, inf := range def.Infectious {
		idx, ok := m.compIdx[inf.Compartment]
		if !ok {
			return nil, fmt.Errorf("model %s: infectious compartment %q not declared", def.Name, inf.Compartment)
		}
		m.infectivity[idx] = inf.Weight(params)
	}

	m.living = make([]bool, m.nC)
	for i := range m.living {
		m.living[i] = true
	}
	for _, c := range def.Removed {
		idx, ok := m.compIdx[c]
		if !ok {
			return nil, fmt.Errorf("model %s: removed compartment %q not declared", def.Name, c)
		}
		m.living[idx] = false
	}

	if m.contacts, err = squareOr(opts.Contacts, m.nA, ones, "contacts"); err != nil {
		return nil, fmt.Errorf("model %s: %w", def.Name, err)
	}
	if m.mixing, err = squareOr(opts.Mixing, m.nV, identity, "mixing"); err != nil {
		return nil, fmt.Errorf("model %s: %w", def.Name, err)
	}

	if m.x0, err = m.seed(opts); err != nil {
		return nil, fmt.Errorf("model %s: %w", def.Name, err)
	}

	m.pop = make([]float64, m.nV)
	m.ieff = make([]float64, m.nV*m.nA)

	return m, nil
}

func (m *Model) Name() string             { return m.def.Name }
func (m *Model) StateDim() int            { return m.nV * m.nA * m.nR * m.nC }
func (m *Model) Compartments() []string   { return append([]string(nil), m.comps...) }
func (m *Model) Coords() sim.Coords       { return m.coords }
func (m *Model) Graph() *CompartmentGraph { return m.graph }
func (m *Model) Params() Params           { return m.params }
func (m *Model) InitialState() sim.State  { return m.x0.Clone() }
func (m *Model) Prevalence() []string     { return append([]string(nil), m.def.Prevalence...) }
func (m *Model) Index(v, a, r, c int) int { return ((v*m.nA+a)*m.nR+r)*m.nC + c }
func (m *Model) Shape() (v, a, r, c int)  { return m.nV, m.nA, m.nR, m.nC }
func (m *Model) Definition() *Definition  { return m.def }
func (m *Model) CompartmentIndex(c string) int {
	if idx, ok := m.compIdx[c]; ok {
		return idx
	}
	return -1
}

// Indices returns the state positions of the named compartments across
// every stratum. Unknown names are ignored.
func (m *Model) Indices(compartments ...string) []int {
	var out []int
	for s := 0; s < m.nV*m.nA*m.nR; s++ {
		for _, c := range compartments {
			idx, ok := m.compIdx[c]
			if !ok {
				continue
			}
			out = append(out, s*m.nC+idx)
		}
	}
	return out
}

func (m *Model) Derivative(x sim.State, t float64) sim.State {
	dx := make(sim.State, len(x))

	for i := range m.pop {
		m.pop[i] = 0
	}
	for i := range m.ieff {
		m.ieff[i] = 0
	}
	for v := 0; v < m.nV; v++ {
		for a := 0; a < m.nA; a++ {
			for r := 0; r < m.nR; r++ {
				base := m.Index(v, a, r, 0)
				for c := 0; c < m.nC; c++ {
					val := x[base+c]
					if m.living[c] {
						m.pop[v] += val
					}
					m.ieff[v*m.nA+a] += m.infectivity[c] * val
				}
			}
		}
	}

	for v := 0; v < m.nV; v++ {
		for a := 0; a < m.nA; a++ {
			lambda := m.force(v, a)
			for r := 0; r < m.nR; r++ {
				base := m.Index(v, a, r, 0)
				for _, f := range m.flows {
					rate := f.rate[r]
					if f.infection {
						rate *= lambda
					}
					q := rate * x[base+f.from]
					dx[base+f.from] -= q
					dx[base+f.to] += q
				}
			}
		}
	}

	return dx
}

// force is the force of infection at (v, a) without beta, which the
// infection transition rate carries.
func (m *Model) force(v, a int) float64 {
	lambda := 0.0
	for w := 0; w < m.nV; w++ {
		mix := m.mixing[v][w]
		if mix == 0 || m.pop[w] <= 0 {
			continue
		}
		inf := 0.0
		for b := 0; b < m.nA; b++ {
			inf += m.contacts[a][b] * m.ieff[w*m.nA+b]
		}
		lambda += mix * inf / m.pop[w]
	}
	return lambda
}

func (m *Model) seed(opts Options) (sim.State, error) {
	x := make(sim.State, m.StateDim())

	for _, s := range opts.Seeds {
		c, ok := m.compIdx[s.Compartment]
		if !ok {
			return nil, fmt.Errorf("seed: unknown compartment %q", s.Compartment)
		}
		if s.Value < 0 {
			return nil, fmt.Errorf("seed: negative count %v for %q", s.Value, s.Compartment)
		}
		vs, err := match(m.coords.Vertex, s.Vertex, "vertex")
		if err != nil {
			return nil, fmt.Errorf("seed: %w", err)
		}
		as, err := match(m.coords.AgeGroup, s.AgeGroup, "age_group")
		if err != nil {
			return nil, fmt.Errorf("seed: %w", err)
		}
		rs, err := match(m.coords.RiskGroup, s.RiskGroup, "risk_group")
		if err != nil {
			return nil, fmt.Errorf("seed: %w", err)
		}
		for _, v := range vs {
			for _, a := range as {
				for _, r := range rs {
					x[m.Index(v, a, r, c)] = s.Value
				}
			}
		}
	}

	if ic := m.def.IndexCase; ic != nil {
		c, ok := m.compIdx[ic.Compartment]
		if !ok {
			return nil, fmt.Errorf("index case: unknown compartment %q", ic.Compartment)
		}
		v := 0
		if opts.IndexVertex != "" {
			vs, err := match(m.coords.Vertex, opts.IndexVertex, "vertex")
			if err != nil {
				return nil, fmt.Errorf("index case: %w", err)
			}
			v = vs[0]
		}
		x[m.Index(v, 0, 0, c)] += m.params.Get(ic.Input)
	}

	return x, nil
}

func match(labels []string, want, dim string) ([]int, error) {
	if want == "" {
		idx := make([]int, len(labels))
		for i := range idx {
			idx[i] = i
		}
		return idx, nil
	}
	for i, l := range labels {
		if l == want {
			return []int{i}, nil
		}
	}
	return nil, fmt.Errorf("unknown %s %q", dim, want)
}

func ones(i, j int) float64 { return 1 }

func identity(i, j int) float64 {
	if i == j {
		return 1
	}
	return 0
}

func squareOr(mat [][]float64, n int, fill func(i, j int) float64, name string) ([][]float64, error) {
	out := make([][]float64, n)
	if mat == nil {
		for i := range out {
			out[i] = make([]float64, n)
			for j := range out[i] {
				out[i][j] = fill(i, j)
			}
		}
		return out, nil
	}
	if len(mat) != n {
		return nil, fmt.Errorf("%s: expected %dx%d matrix, got %d rows", name, n, n, len(mat))
	}
	for i, row := range mat {
		if len(row) != n {
			return nil, fmt.Errorf("%s: row %d has %d entries, expected %d", name, i, len(row), n)
		}
		out[i] = make([]float64, n)
		for j, v := range row {
			if v < 0 {
				return nil, fmt.Errorf("%s: negative entry at (%d,%d)", name, i, j)
			}
			out[i][j] = v
		}
	}
	return out, nil
}
