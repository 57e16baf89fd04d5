package models

import "github.com/san-kum/episim/internal/sim"

var (
	KeyBeta     = sim.VarKey{Process: "foi", Name: "beta"}
	KeyGamma    = sim.VarKey{Process: "sir", Name: "gamma"}
	KeyInitialI = sim.VarKey{Process: "init_counts", Name: "initial_i"}
)

func SIR() *Definition {
	return &Definition{
		Name:         "sir",
		Compartments: []string{"S", "I", "R"},
		Transitions: []Transition{
			{From: "S", To: "I", Rate: param(KeyBeta), Infection: true},
			{From: "I", To: "R", Rate: param(KeyGamma)},
		},
		Infectious: []Infectivity{
			{Compartment: "I", Weight: unit},
		},
		Inputs: []Input{
			{Key: KeyBeta, Required: true, Doc: "transmission rate per day"},
			{Key: KeyGamma, Default: 0.1, Doc: "recovery rate per day"},
			{Key: KeyInitialI, Default: 1, Doc: "infected at the index vertex"},
		},
		IndexCase:  &IndexCase{Compartment: "I", Input: KeyInitialI},
		Prevalence: []string{"I"},
	}
}
