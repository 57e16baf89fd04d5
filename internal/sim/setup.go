package sim

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/san-kum/episim/internal/labeled"
)

// Dimension names of the counts output.
const (
	DimStep        = "step"
	DimVertex      = "vertex"
	DimAgeGroup    = "age_group"
	DimRiskGroup   = "risk_group"
	DimCompartment = "compartment"
)

// VarCounts is the output variable holding compartment counts per step.
const VarCounts = "counts"

// ClockLayout formats clock ticks used as step coordinates.
const ClockLayout = time.RFC3339

// VarKey names a model input as process and variable, written
// "process__variable".
type VarKey struct {
	Process string
	Name    string
}

func (k VarKey) String() string {
	return k.Process + "__" + k.Name
}

func ParseVarKey(s string) (VarKey, error) {
	proc, name, ok := strings.Cut(s, "__")
	if !ok || proc == "" || name == "" {
		return VarKey{}, fmt.Errorf("invalid input key %q: expected process__variable", s)
	}
	return VarKey{Process: proc, Name: name}, nil
}

// Clock is the time-step schedule of a run. Every tick is recorded.
type Clock []time.Time

// NewClock returns the ticks from start to end inclusive, freq apart.
func NewClock(start, end time.Time, freq time.Duration) (Clock, error) {
	if freq <= 0 {
		return nil, fmt.Errorf("%w: frequency must be positive, got %s", ErrInvalidClock, freq)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end %s is not after start %s", ErrInvalidClock, end.Format(ClockLayout), start.Format(ClockLayout))
	}
	var c Clock
	for t := start; !t.After(end); t = t.Add(freq) {
		c = append(c, t)
	}
	if len(c) < 2 {
		return nil, fmt.Errorf("%w: %d ticks", ErrInvalidClock, len(c))
	}
	return c, nil
}

// Dt returns the tick spacing in days.
func (c Clock) Dt() (float64, error) {
	if len(c) < 2 {
		return 0, fmt.Errorf("%w: %d ticks", ErrInvalidClock, len(c))
	}
	step := c[1].Sub(c[0])
	if step <= 0 {
		return 0, fmt.Errorf("%w: ticks not increasing", ErrInvalidClock)
	}
	for i := 2; i < len(c); i++ {
		if c[i].Sub(c[i-1]) != step {
			return 0, fmt.Errorf("%w: uneven spacing at tick %d", ErrInvalidClock, i)
		}
	}
	return step.Hours() / 24, nil
}

func (c Clock) Labels() []string {
	labels := make([]string, len(c))
	for i, t := range c {
		labels[i] = t.Format(ClockLayout)
	}
	return labels
}

// Coords are the stratification labels of a model.
type Coords struct {
	Vertex    []string `yaml:"vertex"`
	AgeGroup  []string `yaml:"age_group"`
	RiskGroup []string `yaml:"risk_group"`
}

func DefaultCoords() Coords {
	return Coords{
		Vertex:    []string{"0"},
		AgeGroup:  []string{"all"},
		RiskGroup: []string{"low"},
	}
}

// Seed sets the initial count of a compartment. Empty stratum fields match
// every label of that dimension; the value is set on each matching cell.
type Seed struct {
	Vertex      string  `yaml:"vertex,omitempty"`
	AgeGroup    string  `yaml:"age_group,omitempty"`
	RiskGroup   string  `yaml:"risk_group,omitempty"`
	Compartment string  `yaml:"compartment"`
	Value       float64 `yaml:"value"`
}

// Setup is the full configuration of one run. Treat it as a value: use
// With to derive patched copies instead of writing to Inputs.
type Setup struct {
	Model      string
	Integrator string
	Clock      Clock
	Inputs     map[VarKey]float64
	Outputs    []string
	Coords     Coords
	Seeds      []Seed
	// IndexVertex receives the model's index-case input; empty means the
	// first vertex.
	IndexVertex string
	// Contacts is an age_group x age_group contact matrix; nil means all ones.
	Contacts [][]float64
	// Mixing is a vertex x vertex coupling matrix; nil means identity.
	Mixing [][]float64
}

// With returns a copy of s with key bound to v. s is not modified.
func (s Setup) With(key VarKey, v float64) Setup {
	inputs := make(map[VarKey]float64, len(s.Inputs)+1)
	for k, val := range s.Inputs {
		inputs[k] = val
	}
	inputs[key] = v
	s.Inputs = inputs
	return s
}

// WithAll binds keys[i] to values[i] on a copy of s.
func (s Setup) WithAll(keys []VarKey, values []float64) (Setup, error) {
	if len(keys) != len(values) {
		return Setup{}, fmt.Errorf("%d keys for %d values", len(keys), len(values))
	}
	inputs := make(map[VarKey]float64, len(s.Inputs)+len(keys))
	for k, val := range s.Inputs {
		inputs[k] = val
	}
	for i, k := range keys {
		inputs[k] = values[i]
	}
	s.Inputs = inputs
	return s, nil
}

func (s Setup) Input(key VarKey) (float64, bool) {
	v, ok := s.Inputs[key]
	return v, ok
}

// Output holds the variables requested by a Setup.
type Output struct {
	Times   []time.Time
	Vars    map[string]*labeled.Array
	Metrics map[string]float64
}

func (o *Output) Var(name string) (*labeled.Array, error) {
	v, ok := o.Vars[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q not in output", ErrUnknownOutput, name)
	}
	return v, nil
}

// Runner executes complete simulation runs.
type Runner interface {
	// Inputs lists the inputs a model accepts.
	Inputs(model string) ([]VarKey, error)
	Run(ctx context.Context, setup Setup) (*Output, error)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidateInputs rejects non-finite input values.
func (s Setup) ValidateInputs() error {
	for k, v := range s.Inputs {
		if !isFinite(v) {
			return fmt.Errorf("input %s is not finite: %v", k, v)
		}
	}
	return nil
}
