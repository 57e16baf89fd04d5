package fit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// ResidualFunc evaluates the residual vector at p. It must not modify p.
type ResidualFunc func(ctx context.Context, p []float64) ([]float64, error)

// Optimizer minimizes the sum of squared residuals starting from x0.
// Errors returned by residual abort the search and are returned unchanged;
// stopping without convergence is reported through the Solution.
type Optimizer interface {
	Minimize(ctx context.Context, residual ResidualFunc, x0 []float64, opts Options) (Solution, error)
}

const (
	MethodLBFGS      = "lbfgs"
	MethodBFGS       = "bfgs"
	MethodGradient   = "gradient"
	MethodNelderMead = "nelder-mead"
)

func Methods() []string {
	return []string{MethodLBFGS, MethodBFGS, MethodGradient, MethodNelderMead}
}

type Options struct {
	Method string
	// XTol stops when a step changes x by less than XTol relative to |x|.
	XTol float64
	// FTol stops when the cost changes by less than FTol relative to itself.
	FTol float64
	// GTol stops when the infinity norm of the gradient falls below it.
	GTol           float64
	MaxIterations  int
	MaxEvaluations int
	// Verbosity 1 logs every major iteration, 2 also every evaluation.
	Verbosity int
}

func DefaultOptions() Options {
	return Options{
		Method: MethodLBFGS,
		XTol:   1e-8,
		FTol:   1e-8,
		GTol:   1e-8,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	o.Method = strings.ToLower(o.Method)
	if o.Method == "" {
		o.Method = def.Method
	}
	if o.XTol == 0 {
		o.XTol = def.XTol
	}
	if o.FTol == 0 {
		o.FTol = def.FTol
	}
	if o.GTol == 0 {
		o.GTol = def.GTol
	}
	return o
}

func (o Options) validate() error {
	if _, err := gonumMethod(o.Method); err != nil {
		return err
	}
	if o.XTol < 0 || o.FTol < 0 || o.GTol < 0 {
		return fmt.Errorf("%w: tolerances must be non-negative", ErrInvalidConfig)
	}
	if o.MaxIterations < 0 || o.MaxEvaluations < 0 {
		return fmt.Errorf("%w: limits must be non-negative", ErrInvalidConfig)
	}
	return nil
}

func gonumMethod(name string) (optimize.Method, error) {
	switch strings.ToLower(name) {
	case MethodLBFGS:
		return &optimize.LBFGS{}, nil
	case MethodBFGS:
		return &optimize.BFGS{}, nil
	case MethodGradient:
		return &optimize.GradientDescent{}, nil
	case MethodNelderMead:
		return &optimize.NelderMead{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown method %q (want one of %v)", ErrInvalidConfig, name, Methods())
	}
}

// Solution is the outcome of a fit. X and Cost always describe the best
// point found, converged or not.
type Solution struct {
	X []float64
	// Cost is half the sum of squared residuals at X.
	Cost        float64
	Status      string
	Converged   bool
	Message     string
	Iterations  int
	Evaluations int
	Runtime     time.Duration
}

// GonumOptimizer minimizes ½‖r‖² with gonum/optimize. Gradient methods use
// Jᵀr with J from central finite differences.
type GonumOptimizer struct {
	Logger *slog.Logger
}

func NewGonumOptimizer(logger *slog.Logger) *GonumOptimizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &GonumOptimizer{Logger: logger}
}

func (g *GonumOptimizer) Minimize(ctx context.Context, residual ResidualFunc, x0 []float64, opts Options) (Solution, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return Solution{}, err
	}
	method, _ := gonumMethod(opts.Method)
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}

	obj := &objective{
		ctx:      ctx,
		residual: residual,
		maxEvals: opts.MaxEvaluations,
	}

	problem := optimize.Problem{
		Func:   obj.cost,
		Status: obj.status,
	}
	if needsGradient(opts.Method) {
		problem.Grad = obj.grad
	}

	settings := &optimize.Settings{
		GradientThreshold: opts.GTol,
		Converger:         &toleranceConverger{xtol: opts.XTol, ftol: opts.FTol},
		MajorIterations:   opts.MaxIterations,
	}
	if opts.Verbosity > 0 {
		settings.Recorder = &logRecorder{logger: logger}
	}

	start := time.Now()
	res, err := optimize.Minimize(problem, append([]float64(nil), x0...), settings, method)

	if obj.err != nil {
		return Solution{}, obj.err
	}
	if obj.outside != nil && (res == nil || math.IsInf(res.Location.F, 1)) {
		return Solution{}, fmt.Errorf("no runnable point from %v: %w", x0, obj.outside)
	}
	if res == nil {
		return Solution{}, err
	}

	sol := Solution{
		X:           res.Location.X,
		Cost:        res.Location.F,
		Status:      res.Status.String(),
		Converged:   converged(res.Status),
		Iterations:  res.Stats.MajorIterations,
		Evaluations: obj.evals,
		Runtime:     time.Since(start),
	}
	switch {
	case err != nil:
		sol.Converged = false
		sol.Message = err.Error()
	case sol.Converged:
		sol.Message = "converged: " + res.Status.String()
	default:
		sol.Message = "stopped: " + res.Status.String()
	}
	return sol, nil
}

func needsGradient(method string) bool {
	return method != MethodNelderMead
}

func converged(s optimize.Status) bool {
	switch s {
	case optimize.Success,
		optimize.FunctionThreshold,
		optimize.FunctionConvergence,
		optimize.GradientThreshold,
		optimize.StepConvergence,
		optimize.MethodConverge:
		return true
	}
	return false
}

// objective adapts a ResidualFunc to gonum's Problem. The first residual
// error is kept and reported through status so Minimize stops. Points
// outside the model's domain cost +Inf so line searches back off.
type objective struct {
	ctx      context.Context
	residual ResidualFunc
	maxEvals int
	evals    int
	err      error
	outside  error
}

// eval returns nil on error; o.err stays unset for out-of-domain points.
func (o *objective) eval(x []float64) []float64 {
	if o.err != nil {
		return nil
	}
	if err := o.ctx.Err(); err != nil {
		o.err = err
		return nil
	}
	o.evals++
	r, err := o.residual(o.ctx, x)
	if err != nil {
		if outsideDomain(err) {
			o.outside = err
			return nil
		}
		o.err = err
		return nil
	}
	return r
}

func (o *objective) cost(x []float64) float64 {
	r := o.eval(x)
	if r == nil {
		if o.err == nil {
			return math.Inf(1)
		}
		return math.NaN()
	}
	return 0.5 * floats.Dot(r, r)
}

func (o *objective) grad(grad, x []float64) {
	r := o.eval(x)
	if r == nil {
		if o.err == nil {
			o.err = fmt.Errorf("gradient at %v: %w", x, o.outside)
		}
		for i := range grad {
			grad[i] = math.NaN()
		}
		return
	}

	jac := mat.NewDense(len(r), len(x), nil)
	if !o.jacobian(jac, x, r, fd.Central) && o.err == nil {
		// Near a domain boundary the backward stencil point can fall outside.
		if !o.jacobian(jac, x, r, fd.Forward) && o.err == nil {
			o.err = fmt.Errorf("gradient at %v: %w", x, o.outside)
		}
	}

	g := mat.NewVecDense(len(x), grad)
	g.MulVec(jac.T(), mat.NewVecDense(len(r), r))
}

// jacobian fills dst by finite differences and reports whether every
// stencil point was inside the domain.
func (o *objective) jacobian(dst *mat.Dense, x, r []float64, formula fd.Formula) bool {
	ok := true
	fd.Jacobian(dst, func(y, p []float64) {
		ry := o.eval(p)
		if ry == nil || len(ry) != len(y) {
			ok = false
			for i := range y {
				y[i] = math.NaN()
			}
			return
		}
		copy(y, ry)
	}, x, &fd.JacobianSettings{
		Formula:     formula,
		OriginValue: r,
		Concurrent:  false,
	})
	return ok
}

func (o *objective) status() (optimize.Status, error) {
	if o.err != nil {
		return optimize.Failure, o.err
	}
	if o.maxEvals > 0 && o.evals >= o.maxEvals {
		return optimize.FunctionEvaluationLimit, nil
	}
	return optimize.NotTerminated, nil
}

// toleranceConverger stops on small relative changes in x (XTol) or in the
// cost (FTol) between major iterations.
type toleranceConverger struct {
	xtol, ftol float64
	prevX      []float64
	prevF      float64
	seen       bool
}

func (c *toleranceConverger) Init(dim int) {
	c.prevX = make([]float64, dim)
	c.seen = false
}

func (c *toleranceConverger) Converged(loc *optimize.Location) optimize.Status {
	if !c.seen {
		c.seen = true
		copy(c.prevX, loc.X)
		c.prevF = loc.F
		return optimize.NotTerminated
	}

	if loc.F == 0 {
		return optimize.FunctionThreshold
	}

	// Iterations that keep the best point (Nelder-Mead contractions) say
	// nothing about convergence.
	step := floats.Distance(loc.X, c.prevX, 2)
	if step == 0 {
		return optimize.NotTerminated
	}

	status := optimize.NotTerminated
	if c.ftol > 0 && math.Abs(c.prevF-loc.F) <= c.ftol*math.Abs(c.prevF) {
		status = optimize.FunctionConvergence
	}
	if c.xtol > 0 {
		if step <= c.xtol*(c.xtol+floats.Norm(loc.X, 2)) {
			status = optimize.StepConvergence
		}
	}

	copy(c.prevX, loc.X)
	c.prevF = loc.F
	return status
}

type logRecorder struct {
	logger *slog.Logger
}

func (r *logRecorder) Init() error { return nil }

func (r *logRecorder) Record(loc *optimize.Location, op optimize.Operation, stats *optimize.Stats) error {
	if op&optimize.MajorIteration == 0 {
		return nil
	}
	attrs := []any{
		"iteration", stats.MajorIterations,
		"cost", loc.F,
		"x", loc.X,
	}
	if loc.Gradient != nil {
		attrs = append(attrs, "grad_norm", floats.Norm(loc.Gradient, math.Inf(1)))
	}
	r.logger.Info("fit iteration", attrs...)
	return nil
}
