package fit

import (
	"context"
	"errors"
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/episim/internal/experiment"
	"github.com/san-kum/episim/internal/models"
	"github.com/san-kum/episim/internal/sim"
)

var _ = Describe("Fitter", func() {
	var (
		ctx    context.Context
		runner *stubRunner
	)

	BeforeEach(func() {
		ctx = context.Background()
		runner = newStubRunner(func(beta float64) []float64 {
			if beta == 0.5 {
				return []float64{110, 140, 120}
			}
			return []float64{beta, beta, beta}
		})
	})

	Describe("New", func() {
		It("does not run the simulation", func() {
			_, err := New(runner, stubConfig([]float64{100, 150, 130}))
			Expect(err).NotTo(HaveOccurred())
			Expect(runner.runs).To(Equal(0))
		})

		It("rejects parameters the model does not declare", func() {
			cfg := stubConfig([]float64{1})
			cfg.Params = []sim.VarKey{{Process: "foi", Name: "alpha"}}
			_, err := New(runner, cfg)
			Expect(errors.Is(err, ErrUnknownInput)).To(BeTrue())
		})

		DescribeTable("invalid configurations",
			func(modify func(*Config)) {
				cfg := stubConfig([]float64{1, 2, 3})
				modify(&cfg)
				_, err := New(runner, cfg)
				Expect(errors.Is(err, ErrInvalidConfig)).To(BeTrue(), "got %v", err)
			},
			Entry("guess length", func(c *Config) { c.Guess = []float64{1, 2} }),
			Entry("no params", func(c *Config) { c.Params = nil; c.Guess = nil }),
			Entry("empty observed", func(c *Config) { c.Observed = nil }),
			Entry("empty target", func(c *Config) { c.Target = "" }),
			Entry("duplicate binding", func(c *Config) {
				c.Params = []sim.VarKey{keyBeta, keyBeta}
				c.Guess = []float64{1, 1}
			}),
			Entry("unknown method", func(c *Config) { c.Options.Method = "levenberg" }),
			Entry("unknown model", func(c *Config) { c.Setup.Model = "nope" }),
			Entry("non-finite guess", func(c *Config) { c.Guess = []float64{math.NaN()} }),
		)

		It("applies default tolerances", func() {
			f, err := New(runner, stubConfig([]float64{1}))
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Options().XTol).To(Equal(1e-8))
			Expect(f.Options().FTol).To(Equal(1e-8))
			Expect(f.Options().GTol).To(Equal(1e-8))
			Expect(f.Options().Method).To(Equal(MethodLBFGS))
		})
	})

	Describe("EvaluateResidual", func() {
		It("returns predicted minus observed", func() {
			f, err := New(runner, stubConfig([]float64{100, 150, 130}))
			Expect(err).NotTo(HaveOccurred())

			r, err := f.EvaluateResidual(ctx, []float64{0.5})
			Expect(err).NotTo(HaveOccurred())
			Expect(r).To(Equal([]float64{10, -10, -10}))
		})

		It("re-runs the simulation on identical calls", func() {
			f, err := New(runner, stubConfig([]float64{100, 150, 130}))
			Expect(err).NotTo(HaveOccurred())

			r1, err := f.EvaluateResidual(ctx, []float64{0.5})
			Expect(err).NotTo(HaveOccurred())
			r2, err := f.EvaluateResidual(ctx, []float64{0.5})
			Expect(err).NotTo(HaveOccurred())

			Expect(r1).To(Equal(r2))
			Expect(runner.runs).To(Equal(2))
			Expect(f.Evaluations()).To(Equal(2))
		})

		It("leaves the template setup untouched", func() {
			cfg := stubConfig([]float64{100, 150, 130})
			cfg.Setup.Inputs = map[sim.VarKey]float64{keyGamma: 0.07}
			f, err := New(runner, cfg)
			Expect(err).NotTo(HaveOccurred())

			p := []float64{0.5}
			_, err = f.EvaluateResidual(ctx, p)
			Expect(err).NotTo(HaveOccurred())

			Expect(p).To(Equal([]float64{0.5}))
			Expect(cfg.Setup.Inputs).To(HaveLen(1))
			Expect(f.Setup().Inputs).NotTo(HaveKey(keyBeta))
			Expect(runner.seen[0].Inputs).To(HaveKeyWithValue(keyBeta, 0.5))
			Expect(runner.seen[0].Inputs).To(HaveKeyWithValue(keyGamma, 0.07))
		})

		It("fails on a length mismatch", func() {
			f, err := New(runner, stubConfig([]float64{100, 150}))
			Expect(err).NotTo(HaveOccurred())

			_, err = f.EvaluateResidual(ctx, []float64{0.5})
			Expect(errors.Is(err, ErrShapeMismatch)).To(BeTrue())
		})

		It("fails when the target compartment is missing", func() {
			runner.compartments = []string{"S", "I", "R"}
			f, err := New(runner, stubConfig([]float64{100, 150, 130}))
			Expect(err).NotTo(HaveOccurred())

			_, err = f.EvaluateResidual(ctx, []float64{0.5})
			Expect(errors.Is(err, ErrUnknownCompartment)).To(BeTrue())
		})

		It("propagates runner errors", func() {
			runner.err = sim.SimError{Step: 3, Message: "boom"}
			f, err := New(runner, stubConfig([]float64{100, 150, 130}))
			Expect(err).NotTo(HaveOccurred())

			_, err = f.EvaluateResidual(ctx, []float64{0.5})
			Expect(errors.Is(err, sim.ErrInvalidState)).To(BeTrue())
		})

		It("reports each evaluation", func() {
			var seen []Evaluation
			cfg := stubConfig([]float64{100, 150, 130})
			cfg.OnEvaluation = func(e Evaluation) { seen = append(seen, e) }
			f, err := New(runner, cfg)
			Expect(err).NotTo(HaveOccurred())

			_, err = f.EvaluateResidual(ctx, []float64{0.5})
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(HaveLen(1))
			Expect(seen[0].Index).To(Equal(1))
			Expect(seen[0].Cost).To(BeNumerically("~", 150.0))
		})
	})

	Describe("Fit", func() {
		It("aborts with the runner error", func() {
			runner.err = errors.New("solver exploded")
			f, err := New(runner, stubConfig([]float64{100, 150, 130}))
			Expect(err).NotTo(HaveOccurred())

			_, err = f.Fit(ctx)
			Expect(err).To(MatchError(ContainSubstring("solver exploded")))
		})

		It("stops at a canceled context", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			f, err := New(runner, stubConfig([]float64{100, 150, 130}))
			Expect(err).NotTo(HaveOccurred())

			_, err = f.Fit(cctx)
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		})

		It("reports a non-converged stop without an error", func() {
			f, err := New(newStubRunner(func(beta float64) []float64 {
				return []float64{beta * beta, 2 * beta * beta}
			}), Config{
				Setup:    sim.Setup{Model: "stub"},
				Params:   []sim.VarKey{keyBeta},
				Guess:    []float64{3},
				Observed: []float64{1, 2},
				Target:   "Ih",
				Options:  Options{MaxEvaluations: 2},
			})
			Expect(err).NotTo(HaveOccurred())

			sol, err := f.Fit(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sol.Converged).To(BeFalse())
			Expect(sol.Message).NotTo(BeEmpty())
			Expect(sol.X).To(HaveLen(1))
		})
	})

	Describe("recovering known parameters", func() {
		var (
			simRunner *experiment.Runner
			setup     sim.Setup
			truth     = 0.3
		)

		scenario := func(model string) sim.Setup {
			start := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
			clock, err := sim.NewClock(start, start.AddDate(0, 0, 60), 24*time.Hour)
			Expect(err).NotTo(HaveOccurred())
			if model == "seir" {
				return sim.Setup{
					Model: "seir",
					Clock: clock,
					Seeds: []sim.Seed{{Compartment: "S", Value: 10000}},
				}
			}
			return sim.Setup{
				Model:  "sir",
				Clock:  clock,
				Inputs: map[sim.VarKey]float64{models.KeyInitialI: 10},
				Seeds:  []sim.Seed{{Compartment: "S", Value: 990}},
			}
		}

		BeforeEach(func() {
			simRunner = experiment.NewRunner(nil, nil)
			setup = scenario("sir")
		})

		observe := func(base sim.Setup, target string, beta float64) []float64 {
			out, err := simRunner.Run(ctx, base.With(models.KeyBeta, beta))
			Expect(err).NotTo(HaveOccurred())
			counts, err := out.Var(sim.VarCounts)
			Expect(err).NotTo(HaveOccurred())
			series, err := Extract(counts, ExtractOptions{Target: target})
			Expect(err).NotTo(HaveOccurred())
			return series
		}
		observed := func() []float64 { return observe(setup, "I", truth) }

		DescribeTable("finds beta from a nearby guess",
			func(model, target string, beta, guess float64, method string, tol float64) {
				base := scenario(model)
				f, err := New(simRunner, Config{
					Setup:    base,
					Params:   []sim.VarKey{models.KeyBeta},
					Guess:    []float64{guess},
					Observed: observe(base, target, beta),
					Target:   target,
					Options:  Options{Method: method, MaxIterations: 200},
				})
				Expect(err).NotTo(HaveOccurred())

				sol, err := f.Fit(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(sol.X[0]).To(BeNumerically("~", beta, tol))
				Expect(sol.Evaluations).To(Equal(f.Evaluations()))
			},
			Entry("sir lbfgs from below", "sir", "I", 0.3, 0.27, MethodLBFGS, 1e-4),
			Entry("sir lbfgs from above", "sir", "I", 0.3, 0.33, MethodLBFGS, 1e-4),
			Entry("sir lbfgs from further above", "sir", "I", 0.3, 0.36, MethodLBFGS, 1e-4),
			Entry("sir bfgs from above", "sir", "I", 0.3, 0.33, MethodBFGS, 1e-4),
			Entry("sir nelder-mead from below", "sir", "I", 0.3, 0.27, MethodNelderMead, 1e-4),
			Entry("sir nelder-mead from above", "sir", "I", 0.3, 0.33, MethodNelderMead, 1e-4),
			Entry("seir Ih lbfgs from below", "seir", "Ih", 0.5, 0.45, MethodLBFGS, 1e-3),
			Entry("seir Ih lbfgs from above", "seir", "Ih", 0.5, 0.55, MethodLBFGS, 1e-3),
			Entry("seir Ih nelder-mead from below", "seir", "Ih", 0.5, 0.45, MethodNelderMead, 1e-3),
			Entry("seir Ih nelder-mead from above", "seir", "Ih", 0.5, 0.55, MethodNelderMead, 1e-3),
		)

		It("rejects a negative rate without aborting a grid scan", func() {
			_, err := simRunner.Run(ctx, setup.With(models.KeyBeta, -0.1))
			Expect(errors.Is(err, models.ErrNegativeRate)).To(BeTrue())
			Expect(errors.Is(err, sim.ErrOutOfDomain)).To(BeTrue())

			f, err := New(simRunner, Config{
				Setup:    setup,
				Params:   []sim.VarKey{models.KeyBeta},
				Guess:    []float64{0.1},
				Observed: observed(),
				Target:   "I",
			})
			Expect(err).NotTo(HaveOccurred())

			x, _, err := NewGridSearch([][]float64{{-0.2, 0, 0.2, 0.3, 0.4}}).Search(ctx, f.EvaluateResidual)
			Expect(err).NotTo(HaveOccurred())
			Expect(x[0]).To(BeNumerically("~", truth, 1e-12))
		})

		It("has zero residual at the truth", func() {
			f, err := New(simRunner, Config{
				Setup:    setup,
				Params:   []sim.VarKey{models.KeyBeta},
				Guess:    []float64{truth},
				Observed: observed(),
				Target:   "I",
			})
			Expect(err).NotTo(HaveOccurred())

			r, err := f.EvaluateResidual(ctx, []float64{truth})
			Expect(err).NotTo(HaveOccurred())
			for _, v := range r {
				Expect(v).To(BeZero())
			}
		})
	})
})
