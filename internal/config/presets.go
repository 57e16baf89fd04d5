package config

import (
	"sort"

	"github.com/san-kum/episim/internal/fit"
	"github.com/san-kum/episim/internal/sim"
)

// Presets build fresh configs so callers may modify what they get.
var Presets = map[string]map[string]func() *Config{
	"sir": {
		"small": func() *Config {
			return DefaultConfig()
		},
		"fast": func() *Config {
			cfg := DefaultConfig()
			cfg.Params = map[string]float64{
				"foi__beta":              0.6,
				"sir__gamma":             0.2,
				"init_counts__initial_i": 10,
			}
			cfg.Seeds = []sim.Seed{{Compartment: "S", Value: 10000}}
			cfg.Clock.End = "2020-04-30"
			cfg.Fit.Guess = []float64{0.4}
			return cfg
		},
		"stratified": func() *Config {
			cfg := DefaultConfig()
			cfg.Integrator = "rk4"
			cfg.Coords = sim.Coords{
				Vertex:    []string{"0"},
				AgeGroup:  []string{"0-17", "18-64", "65+"},
				RiskGroup: []string{"low"},
			}
			cfg.Seeds = []sim.Seed{
				{AgeGroup: "0-17", Compartment: "S", Value: 2200},
				{AgeGroup: "18-64", Compartment: "S", Value: 6200},
				{AgeGroup: "65+", Compartment: "S", Value: 1600},
			}
			cfg.Contacts = [][]float64{
				{2.0, 0.8, 0.3},
				{0.8, 1.2, 0.4},
				{0.3, 0.4, 0.8},
			}
			cfg.Params = map[string]float64{"foi__beta": 0.15, "init_counts__initial_i": 5}
			cfg.Fit.Guess = []float64{0.1}
			return cfg
		},
	},
	"seir": {
		"single": func() *Config {
			cfg := DefaultConfig()
			cfg.Model = "seir"
			cfg.Seeds = []sim.Seed{{Compartment: "S", Value: 1e5}}
			cfg.Params = map[string]float64{"foi__beta": 0.4, "init_counts__initial_ia": 10}
			cfg.Fit = seirFit()
			return cfg
		},
		"texas": texas,
	},
}

func seirFit() FitConfig {
	return FitConfig{
		Target: "Ih",
		Params: []string{"foi__beta"},
		Guess:  []float64{0.3},
		Method: fit.MethodLBFGS,
		XTol:   1e-8,
		FTol:   1e-8,
		GTol:   1e-8,
	}
}

// texas seeds three metro areas, starting the outbreak with 50
// asymptomatic cases in Austin.
func texas() *Config {
	cfg := DefaultConfig()
	cfg.Model = "seir"
	cfg.Clock = ClockConfig{Start: "2020-03-11", End: "2020-07-09", Freq: "1d"}
	cfg.Coords = sim.Coords{
		Vertex:    []string{"houston", "austin", "beaumont"},
		AgeGroup:  []string{"all"},
		RiskGroup: []string{"low", "high"},
	}
	cfg.Seeds = []sim.Seed{
		{Vertex: "houston", RiskGroup: "low", Compartment: "S", Value: 2.326e5},
		{Vertex: "houston", RiskGroup: "high", Compartment: "S", Value: 2.326e4},
		{Vertex: "austin", RiskGroup: "low", Compartment: "S", Value: 1e5},
		{Vertex: "austin", RiskGroup: "high", Compartment: "S", Value: 1e4},
		{Vertex: "beaumont", RiskGroup: "low", Compartment: "S", Value: 1.18e4},
		{Vertex: "beaumont", RiskGroup: "high", Compartment: "S", Value: 1.18e3},
	}
	cfg.IndexVertex = "austin"
	cfg.Mixing = [][]float64{
		{1.0, 0.05, 0.1},
		{0.05, 1.0, 0.0},
		{0.1, 0.0, 1.0},
	}
	cfg.Params = map[string]float64{
		"foi__beta":               0.35,
		"init_counts__initial_ia": 50,
	}
	cfg.Fit = seirFit()
	cfg.Fit.Grid = map[string]string{"foi__beta": "0.1:0.6:11"}
	return cfg
}

func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	build, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return build()
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
