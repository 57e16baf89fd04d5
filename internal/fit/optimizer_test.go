package fit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"gonum.org/v1/gonum/optimize"

	"github.com/san-kum/episim/internal/sim"
)

func quadratic(ctx context.Context, p []float64) ([]float64, error) {
	return []float64{p[0] - 1, 2 * (p[1] + 3)}, nil
}

func TestGonumOptimizerMethods(t *testing.T) {
	for _, method := range Methods() {
		t.Run(method, func(t *testing.T) {
			opt := NewGonumOptimizer(nil)
			sol, err := opt.Minimize(context.Background(), quadratic, []float64{0, 0}, Options{
				Method:        method,
				MaxIterations: 2000,
			})
			if err != nil {
				t.Fatalf("Minimize: %v", err)
			}
			if math.Abs(sol.X[0]-1) > 1e-3 || math.Abs(sol.X[1]+3) > 1e-3 {
				t.Errorf("x = %v, want [1 -3] (%s)", sol.X, sol.Message)
			}
			if sol.Evaluations == 0 {
				t.Error("expected evaluations to be counted")
			}
		})
	}
}

// nonNegative has its minimum at 0.3 and rejects negative inputs the way a
// model rejects a negative rate.
func nonNegative(ctx context.Context, p []float64) ([]float64, error) {
	if p[0] < 0 {
		return nil, fmt.Errorf("rate %v: %w", p[0], sim.ErrOutOfDomain)
	}
	return []float64{p[0] - 0.3}, nil
}

func TestGonumOptimizerBacksOffDomainBoundary(t *testing.T) {
	// The first gradient step from 0.4 moves x by 1, to -0.6.
	for _, method := range Methods() {
		t.Run(method, func(t *testing.T) {
			sol, err := NewGonumOptimizer(nil).Minimize(context.Background(), nonNegative, []float64{0.4}, Options{
				Method:        method,
				MaxIterations: 2000,
			})
			if err != nil {
				t.Fatalf("Minimize: %v", err)
			}
			if math.Abs(sol.X[0]-0.3) > 1e-4 {
				t.Errorf("x = %v, want 0.3 (%s)", sol.X, sol.Message)
			}
			if math.IsInf(sol.Cost, 0) {
				t.Errorf("cost = %v", sol.Cost)
			}
		})
	}
}

func TestGonumOptimizerStartOutsideDomain(t *testing.T) {
	_, err := NewGonumOptimizer(nil).Minimize(context.Background(), nonNegative, []float64{-1}, Options{})
	if !errors.Is(err, sim.ErrOutOfDomain) {
		t.Errorf("expected ErrOutOfDomain, got %v", err)
	}
}

func TestObjectiveGradientAtBoundary(t *testing.T) {
	obj := &objective{
		ctx: context.Background(),
		residual: func(ctx context.Context, p []float64) ([]float64, error) {
			if p[0] < 1 {
				return nil, sim.ErrOutOfDomain
			}
			return []float64{2 * (p[0] - 0.5)}, nil
		},
	}

	grad := make([]float64, 1)
	obj.grad(grad, []float64{1})
	if obj.err != nil {
		t.Fatalf("unexpected error: %v", obj.err)
	}
	// J = 2, r = 1
	if math.Abs(grad[0]-2) > 1e-5 {
		t.Errorf("grad = %v, want 2", grad[0])
	}
	if got := obj.cost([]float64{0.5}); !math.IsInf(got, 1) {
		t.Errorf("cost outside domain = %v, want +Inf", got)
	}
	if obj.err != nil {
		t.Errorf("out-of-domain cost must not stop the run: %v", obj.err)
	}
}

func TestGonumOptimizerUnknownMethod(t *testing.T) {
	_, err := NewGonumOptimizer(nil).Minimize(context.Background(), quadratic, []float64{0, 0}, Options{Method: "trf"})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestConverged(t *testing.T) {
	tests := []struct {
		status optimize.Status
		want   bool
	}{
		{optimize.GradientThreshold, true},
		{optimize.StepConvergence, true},
		{optimize.FunctionConvergence, true},
		{optimize.IterationLimit, false},
		{optimize.FunctionEvaluationLimit, false},
		{optimize.Failure, false},
	}
	for _, tt := range tests {
		if got := converged(tt.status); got != tt.want {
			t.Errorf("converged(%v) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestToleranceConverger(t *testing.T) {
	c := &toleranceConverger{xtol: 1e-8, ftol: 1e-8}
	c.Init(1)

	if s := c.Converged(&optimize.Location{X: []float64{1}, F: 10}); s != optimize.NotTerminated {
		t.Fatalf("first location: %v", s)
	}
	if s := c.Converged(&optimize.Location{X: []float64{1}, F: 10}); s != optimize.NotTerminated {
		t.Errorf("unchanged point should not converge, got %v", s)
	}
	if s := c.Converged(&optimize.Location{X: []float64{0.5}, F: 5}); s != optimize.NotTerminated {
		t.Errorf("large step should not converge, got %v", s)
	}
	if s := c.Converged(&optimize.Location{X: []float64{0.5 + 1e-12}, F: 4}); s != optimize.StepConvergence {
		t.Errorf("expected StepConvergence, got %v", s)
	}
	if s := c.Converged(&optimize.Location{X: []float64{0.6}, F: 4}); s != optimize.FunctionConvergence {
		t.Errorf("expected FunctionConvergence, got %v", s)
	}
	if s := c.Converged(&optimize.Location{X: []float64{0.7}, F: 0}); s != optimize.FunctionThreshold {
		t.Errorf("expected FunctionThreshold, got %v", s)
	}
}
