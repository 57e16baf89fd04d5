// Package models defines stratified epidemic compartment models.
//
// A [Definition] declares compartments, the transitions between them (kept
// as a gonum directed graph, see [CompartmentGraph]), and the inputs the
// model reads, keyed as process__variable. [Build] binds a definition to
// parameter values and a stratification (vertex x age_group x risk_group)
// and returns a [Model] that implements sim.Dynamics.
//
// Built-in definitions:
//
//   - [SIR]: S -> I -> R
//   - [SEIR]: S -> E -> Ia/Iy, Iy -> Ih, Ih -> R/D
//
// Transmission at vertex v and age group a uses
//
//	lambda(v,a) = beta * sum_w M[v][w] * sum_b C[a][b] * Ieff(w,b) / N(w)
//
// where M is the vertex mixing matrix, C the age contact matrix, Ieff the
// infectivity-weighted infectious count and N the living population of w.
package models
