package fit

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/episim/internal/sim"
)

// Evaluation reports one residual evaluation to Config.OnEvaluation.
type Evaluation struct {
	// Index counts evaluations from 1 over the Fitter's lifetime.
	Index  int
	Params []float64
	// Cost is half the sum of squared residuals.
	Cost float64
}

type Config struct {
	// Setup is the simulation template. Bound parameters are patched into
	// copies; the template itself is never modified.
	Setup sim.Setup
	// Params are the model inputs being estimated, in parameter-vector order.
	Params   []sim.VarKey
	Guess    []float64
	Observed []float64
	// Target is the compartment compared against Observed.
	Target string
	// Var is the output variable to extract from; empty means counts.
	Var       string
	Extract   ExtractOptions
	Options   Options
	Optimizer Optimizer
	// OnEvaluation, if set, is called after every residual evaluation.
	OnEvaluation func(Evaluation)
	Logger       *slog.Logger
}

// Fitter estimates Config.Params by minimizing the squared difference
// between the simulated target series and Config.Observed. Evaluations run
// strictly one after another; a Fitter is not safe for concurrent use.
type Fitter struct {
	runner    sim.Runner
	setup     sim.Setup
	params    []sim.VarKey
	guess     []float64
	observed  []float64
	varName   string
	extract   ExtractOptions
	options   Options
	optimizer Optimizer
	onEval    func(Evaluation)
	logger    *slog.Logger
	evals     int
}

// New validates cfg against the runner's declared inputs. No simulation is
// run.
func New(runner sim.Runner, cfg Config) (*Fitter, error) {
	if runner == nil {
		return nil, fmt.Errorf("%w: nil runner", ErrInvalidConfig)
	}
	if len(cfg.Params) == 0 {
		return nil, fmt.Errorf("%w: no parameters to fit", ErrInvalidConfig)
	}
	if len(cfg.Guess) != len(cfg.Params) {
		return nil, fmt.Errorf("%w: %d initial values for %d parameters", ErrInvalidConfig, len(cfg.Guess), len(cfg.Params))
	}
	if len(cfg.Observed) == 0 {
		return nil, fmt.Errorf("%w: observed series is empty", ErrInvalidConfig)
	}
	if cfg.Target == "" {
		return nil, fmt.Errorf("%w: no target compartment", ErrInvalidConfig)
	}
	for i, v := range cfg.Guess {
		if !isFinite(v) {
			return nil, fmt.Errorf("%w: initial value %d is %v", ErrInvalidConfig, i, v)
		}
	}

	declared, err := runner.Inputs(cfg.Setup.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	seen := make(map[sim.VarKey]bool, len(cfg.Params))
	for _, p := range cfg.Params {
		if !slices.Contains(declared, p) {
			return nil, fmt.Errorf("%w: %s is not an input of model %s", ErrUnknownInput, p, cfg.Setup.Model)
		}
		if seen[p] {
			return nil, fmt.Errorf("%w: %s bound twice", ErrInvalidConfig, p)
		}
		seen[p] = true
	}

	opts := cfg.Options.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	varName := cfg.Var
	if varName == "" {
		varName = sim.VarCounts
	}
	setup := cfg.Setup
	if !slices.Contains(setup.Outputs, varName) {
		setup.Outputs = append(slices.Clone(setup.Outputs), varName)
	}

	extract := cfg.Extract
	extract.Target = cfg.Target

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	optimizer := cfg.Optimizer
	if optimizer == nil {
		optimizer = NewGonumOptimizer(logger)
	}

	return &Fitter{
		runner:    runner,
		setup:     setup,
		params:    slices.Clone(cfg.Params),
		guess:     slices.Clone(cfg.Guess),
		observed:  slices.Clone(cfg.Observed),
		varName:   varName,
		extract:   extract.withDefaults(),
		options:   opts,
		optimizer: optimizer,
		onEval:    cfg.OnEvaluation,
		logger:    logger,
	}, nil
}

func (f *Fitter) Params() []sim.VarKey { return slices.Clone(f.params) }
func (f *Fitter) Guess() []float64     { return slices.Clone(f.guess) }
func (f *Fitter) Observed() []float64  { return slices.Clone(f.observed) }
func (f *Fitter) Evaluations() int     { return f.evals }
func (f *Fitter) Options() Options     { return f.options }
func (f *Fitter) Setup() sim.Setup     { return f.setup }
func (f *Fitter) SetGuess(x []float64) error {
	if len(x) != len(f.params) {
		return fmt.Errorf("%w: %d initial values for %d parameters", ErrInvalidConfig, len(x), len(f.params))
	}
	f.guess = slices.Clone(x)
	return nil
}

// Predict runs the simulation with p bound and returns the extracted
// target series.
func (f *Fitter) Predict(ctx context.Context, p []float64) ([]float64, error) {
	if len(p) != len(f.params) {
		return nil, fmt.Errorf("%w: %d values for %d parameters", ErrShapeMismatch, len(p), len(f.params))
	}
	setup, err := f.setup.WithAll(f.params, slices.Clone(p))
	if err != nil {
		return nil, err
	}

	out, err := f.runner.Run(ctx, setup)
	if err != nil {
		return nil, fmt.Errorf("simulate %v: %w", p, err)
	}
	arr, err := out.Var(f.varName)
	if err != nil {
		return nil, err
	}
	return Extract(arr, f.extract)
}

// EvaluateResidual returns predicted minus observed at p. Every call runs
// a full simulation.
func (f *Fitter) EvaluateResidual(ctx context.Context, p []float64) ([]float64, error) {
	predicted, err := f.Predict(ctx, p)
	if err != nil {
		return nil, err
	}
	if len(predicted) != len(f.observed) {
		return nil, fmt.Errorf("%w: predicted %d steps, observed %d", ErrShapeMismatch, len(predicted), len(f.observed))
	}

	residual := make([]float64, len(predicted))
	floats.SubTo(residual, predicted, f.observed)

	f.evals++
	cost := 0.5 * floats.Dot(residual, residual)
	if f.options.Verbosity > 1 {
		f.logger.Debug("residual evaluated", "eval", f.evals, "params", p, "cost", cost)
	}
	if f.onEval != nil {
		f.onEval(Evaluation{Index: f.evals, Params: slices.Clone(p), Cost: cost})
	}
	return residual, nil
}

// Fit runs the optimizer from the initial guess.
func (f *Fitter) Fit(ctx context.Context) (Solution, error) {
	f.logger.Info("fit started",
		"model", f.setup.Model,
		"params", keyNames(f.params),
		"guess", f.guess,
		"method", f.options.Method,
	)

	sol, err := f.optimizer.Minimize(ctx, f.EvaluateResidual, slices.Clone(f.guess), f.options)
	if err != nil {
		f.logger.Error("fit aborted", "error", err, "evaluations", f.evals)
		return Solution{}, err
	}

	f.logger.Info("fit finished",
		"x", sol.X,
		"cost", sol.Cost,
		"converged", sol.Converged,
		"status", sol.Status,
		"evaluations", sol.Evaluations,
		"runtime", sol.Runtime,
	)
	return sol, nil
}

func keyNames(keys []sim.VarKey) []string {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	return names
}
