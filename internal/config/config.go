package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/episim/internal/fit"
	"github.com/san-kum/episim/internal/sim"
)

const (
	DefaultModel      = "sir"
	DefaultIntegrator = "euler"
	DefaultStart      = "2020-03-01"
	DefaultEnd        = "2020-06-29"
	DefaultFreq       = "1d"
	DefaultBeta       = 0.3
	DefaultPopulation = 1000.0
)

const dateLayout = "2006-01-02"

type Config struct {
	Model      string             `yaml:"model"`
	Integrator string             `yaml:"integrator"`
	Clock      ClockConfig        `yaml:"clock"`
	Coords     sim.Coords         `yaml:"coords"`
	Params     map[string]float64 `yaml:"params"`
	Seeds      []sim.Seed         `yaml:"seeds"`
	// IndexVertex receives the model's index cases.
	IndexVertex string      `yaml:"index_vertex,omitempty"`
	Contacts    [][]float64 `yaml:"contacts,omitempty"`
	Mixing      [][]float64 `yaml:"mixing,omitempty"`
	Outputs     []string    `yaml:"outputs,omitempty"`
	Fit         FitConfig   `yaml:"fit"`
	LogLevel    string      `yaml:"log_level"`
	LogFormat   string      `yaml:"log_format"`
}

type ClockConfig struct {
	// Start and End are dates (2006-01-02) or RFC3339 timestamps.
	Start string `yaml:"start"`
	End   string `yaml:"end"`
	// Freq is a Go duration or a whole number of days such as "1d".
	Freq string `yaml:"freq"`
}

type FitConfig struct {
	Target         string    `yaml:"target"`
	Params         []string  `yaml:"params"`
	Guess          []float64 `yaml:"guess"`
	Method         string    `yaml:"method"`
	XTol           float64   `yaml:"xtol"`
	FTol           float64   `yaml:"ftol"`
	GTol           float64   `yaml:"gtol"`
	MaxIterations  int       `yaml:"max_iterations"`
	MaxEvaluations int       `yaml:"max_evaluations"`
	Verbosity      int       `yaml:"verbosity"`
	// Observed is a time,value CSV file.
	Observed string `yaml:"observed,omitempty"`
	// Grid maps a fitted parameter to a range ("lo:hi:n" or "a,b,c") scanned
	// before the optimizer starts.
	Grid map[string]string `yaml:"grid,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:      DefaultModel,
		Integrator: DefaultIntegrator,
		Clock: ClockConfig{
			Start: DefaultStart,
			End:   DefaultEnd,
			Freq:  DefaultFreq,
		},
		Coords: sim.DefaultCoords(),
		Params: map[string]float64{
			"foi__beta": DefaultBeta,
		},
		Seeds: []sim.Seed{
			{Compartment: "S", Value: DefaultPopulation},
		},
		Fit: FitConfig{
			Target: "I",
			Params: []string{"foi__beta"},
			Guess:  []float64{0.2},
			Method: fit.MethodLBFGS,
			XTol:   1e-8,
			FTol:   1e-8,
			GTol:   1e-8,
		},
		LogLevel:  "warn",
		LogFormat: "text",
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// ParseFreq accepts Go durations and day counts ("1d", "7d").
func ParseFreq(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("freq %q: %w", s, err)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func (c *Config) BuildClock() (sim.Clock, error) {
	start, err := parseTime(c.Clock.Start)
	if err != nil {
		return nil, fmt.Errorf("clock start: %w", err)
	}
	end, err := parseTime(c.Clock.End)
	if err != nil {
		return nil, fmt.Errorf("clock end: %w", err)
	}
	freq, err := ParseFreq(c.Clock.Freq)
	if err != nil {
		return nil, fmt.Errorf("clock freq: %w", err)
	}
	return sim.NewClock(start, end, freq)
}

func (c *Config) Inputs() (map[sim.VarKey]float64, error) {
	inputs := make(map[sim.VarKey]float64, len(c.Params))
	for name, v := range c.Params {
		key, err := sim.ParseVarKey(name)
		if err != nil {
			return nil, err
		}
		inputs[key] = v
	}
	return inputs, nil
}

func (c *Config) ToSetup() (sim.Setup, error) {
	clock, err := c.BuildClock()
	if err != nil {
		return sim.Setup{}, err
	}
	inputs, err := c.Inputs()
	if err != nil {
		return sim.Setup{}, err
	}
	return sim.Setup{
		Model:       c.Model,
		Integrator:  c.Integrator,
		Clock:       clock,
		Inputs:      inputs,
		Outputs:     c.Outputs,
		Coords:      c.Coords,
		Seeds:       c.Seeds,
		IndexVertex: c.IndexVertex,
		Contacts:    c.Contacts,
		Mixing:      c.Mixing,
	}, nil
}

func (c *Config) FitParams() ([]sim.VarKey, error) {
	keys := make([]sim.VarKey, len(c.Fit.Params))
	for i, name := range c.Fit.Params {
		key, err := sim.ParseVarKey(name)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}
	return keys, nil
}

func (c *Config) FitOptions() fit.Options {
	return fit.Options{
		Method:         c.Fit.Method,
		XTol:           c.Fit.XTol,
		FTol:           c.Fit.FTol,
		GTol:           c.Fit.GTol,
		MaxIterations:  c.Fit.MaxIterations,
		MaxEvaluations: c.Fit.MaxEvaluations,
		Verbosity:      c.Fit.Verbosity,
	}
}

// GridRanges returns one candidate list per fitted parameter. Parameters
// without a grid entry are held at their initial guess.
func (c *Config) GridRanges() ([][]float64, error) {
	if len(c.Fit.Grid) == 0 {
		return nil, nil
	}
	known := make(map[string]bool, len(c.Fit.Params))
	for _, p := range c.Fit.Params {
		known[p] = true
	}
	var unknown []string
	for name := range c.Fit.Grid {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: grid names parameters not being fitted: %v", fit.ErrInvalidConfig, unknown)
	}

	ranges := make([][]float64, len(c.Fit.Params))
	for i, name := range c.Fit.Params {
		spec, ok := c.Fit.Grid[name]
		if !ok {
			if i >= len(c.Fit.Guess) {
				return nil, fmt.Errorf("%w: no grid or guess for %s", fit.ErrInvalidConfig, name)
			}
			ranges[i] = []float64{c.Fit.Guess[i]}
			continue
		}
		r, err := fit.ParseRange(spec)
		if err != nil {
			return nil, fmt.Errorf("grid %s: %w", name, err)
		}
		ranges[i] = r
	}
	return ranges, nil
}
