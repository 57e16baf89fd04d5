package models

import "github.com/san-kum/episim/internal/sim"

var (
	KeyOmegaA    = sim.VarKey{Process: "foi", Name: "omega_a"}
	KeySigma     = sim.VarKey{Process: "seir", Name: "sigma"}
	KeyTau       = sim.VarKey{Process: "seir", Name: "tau"}
	KeyGammaA    = sim.VarKey{Process: "seir", Name: "gamma_a"}
	KeyGammaY    = sim.VarKey{Process: "seir", Name: "gamma_y"}
	KeyGammaH    = sim.VarKey{Process: "seir", Name: "gamma_h"}
	KeyEta       = sim.VarKey{Process: "seir", Name: "eta"}
	KeyEtaHigh   = sim.VarKey{Process: "seir", Name: "eta_high"}
	KeyMu        = sim.VarKey{Process: "seir", Name: "mu"}
	KeyInitialIa = sim.VarKey{Process: "init_counts", Name: "initial_ia"}
)

// SEIR splits infection into asymptomatic (Ia) and symptomatic (Iy)
// courses; symptomatic cases may be hospitalized (Ih), and hospitalized
// cases recover or die. The first risk group is hospitalized at eta, every
// other risk group at eta_high.
func SEIR() *Definition {
	return &Definition{
		Name:         "seir",
		Compartments: []string{"S", "E", "Ia", "Iy", "Ih", "R", "D"},
		Transitions: []Transition{
			{From: "S", To: "E", Rate: param(KeyBeta), Infection: true},
			{From: "E", To: "Ia", Rate: func(p Params, _ int) float64 {
				return p.Get(KeySigma) * (1 - p.Get(KeyTau))
			}},
			{From: "E", To: "Iy", Rate: func(p Params, _ int) float64 {
				return p.Get(KeySigma) * p.Get(KeyTau)
			}},
			{From: "Ia", To: "R", Rate: param(KeyGammaA)},
			{From: "Iy", To: "R", Rate: param(KeyGammaY)},
			{From: "Iy", To: "Ih", Rate: func(p Params, risk int) float64 {
				if risk == 0 {
					return p.Get(KeyEta)
				}
				return p.Get(KeyEtaHigh)
			}},
			{From: "Ih", To: "R", Rate: param(KeyGammaH)},
			{From: "Ih", To: "D", Rate: param(KeyMu)},
		},
		Infectious: []Infectivity{
			{Compartment: "Ia", Weight: weight(KeyOmegaA)},
			{Compartment: "Iy", Weight: unit},
		},
		Removed: []string{"D"},
		Inputs: []Input{
			{Key: KeyBeta, Required: true, Doc: "transmission rate per day"},
			{Key: KeyOmegaA, Default: 0.66, Doc: "relative infectiousness of Ia"},
			{Key: KeySigma, Default: 0.34, Doc: "rate of leaving E per day"},
			{Key: KeyTau, Default: 0.57, Doc: "symptomatic fraction"},
			{Key: KeyGammaA, Default: 0.25, Doc: "recovery rate of Ia"},
			{Key: KeyGammaY, Default: 0.25, Doc: "recovery rate of Iy"},
			{Key: KeyGammaH, Default: 1.0 / 14.0, Doc: "recovery rate of Ih"},
			{Key: KeyEta, Default: 0.02, Doc: "hospitalization rate, low risk"},
			{Key: KeyEtaHigh, Default: 0.1, Doc: "hospitalization rate, other risk groups"},
			{Key: KeyMu, Default: 0.01, Doc: "death rate of Ih"},
			{Key: KeyInitialIa, Default: 50, Doc: "asymptomatic infected at the index vertex"},
		},
		IndexCase:  &IndexCase{Compartment: "Ia", Input: KeyInitialIa},
		Prevalence: []string{"Ia", "Iy", "Ih"},
	}
}
