package fit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// GridSearch scans the Cartesian product of candidate values, one list per
// parameter, and keeps the point with the lowest cost.
type GridSearch struct {
	ranges [][]float64
}

func NewGridSearch(ranges [][]float64) *GridSearch {
	return &GridSearch{ranges: ranges}
}

// Size is the number of grid points.
func (g *GridSearch) Size() int {
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Search evaluates every grid point in order. Points the model cannot run
// (negative rates, blown-up states) are skipped; any other error aborts the
// search.
func (g *GridSearch) Search(ctx context.Context, residual ResidualFunc) ([]float64, float64, error) {
	if len(g.ranges) == 0 || g.Size() == 0 {
		return nil, 0, fmt.Errorf("%w: empty grid", ErrInvalidConfig)
	}

	best := math.Inf(1)
	var bestX []float64

	current := make([]float64, len(g.ranges))
	err := g.searchRecursive(ctx, 0, current, residual, &best, &bestX)
	if err != nil {
		return nil, 0, err
	}
	if bestX == nil {
		return nil, 0, fmt.Errorf("no grid point produced a finite cost")
	}
	return bestX, best, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current []float64,
	residual ResidualFunc,
	best *float64,
	bestX *[]float64,
) error {
	if depth == len(g.ranges) {
		if err := ctx.Err(); err != nil {
			return err
		}
		r, err := residual(ctx, current)
		if outsideDomain(err) {
			return nil
		}
		if err != nil {
			return err
		}

		cost := 0.5 * floats.Dot(r, r)
		if cost < *best {
			*best = cost
			*bestX = append([]float64(nil), current...)
		}
		return nil
	}

	for _, val := range g.ranges[depth] {
		current[depth] = val
		if err := g.searchRecursive(ctx, depth+1, current, residual, best, bestX); err != nil {
			return err
		}
	}
	return nil
}

// ParseRange reads "lo:hi:n" as n evenly spaced values or "a,b,c" as a
// list.
func ParseRange(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("range %q: expected lo:hi:n", s)
		}
		lo, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("range %q: %w", s, err)
		}
		hi, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("range %q: %w", s, err)
		}
		n, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("range %q: %w", s, err)
		}
		if n < 2 {
			return nil, fmt.Errorf("range %q: need at least 2 points", s)
		}
		return floats.Span(make([]float64, n), lo, hi), nil
	}

	var out []float64
	for _, f := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("range %q: %w", s, err)
		}
		out = append(out, v)
	}
	return out, nil
}
