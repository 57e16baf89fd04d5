package fit

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/episim/internal/sim"
)

func TestGridSearchPicksMinimum(t *testing.T) {
	g := NewGridSearch([][]float64{{0, 1, 2, 3}, {-1, 0, 1}})
	if g.Size() != 12 {
		t.Fatalf("expected 12 points, got %d", g.Size())
	}

	calls := 0
	residual := func(ctx context.Context, p []float64) ([]float64, error) {
		calls++
		return []float64{p[0] - 2, p[1] + 1}, nil
	}

	x, cost, err := g.Search(context.Background(), residual)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if x[0] != 2 || x[1] != -1 || cost != 0 {
		t.Errorf("got x=%v cost=%v", x, cost)
	}
	if calls != 12 {
		t.Errorf("expected 12 evaluations, got %d", calls)
	}
}

func TestGridSearchErrors(t *testing.T) {
	g := NewGridSearch([][]float64{{1, 2, 3}})

	unstable := func(ctx context.Context, p []float64) ([]float64, error) {
		if p[0] == 1 {
			return nil, sim.SimError{Message: "blew up"}
		}
		return []float64{p[0]}, nil
	}
	x, _, err := g.Search(context.Background(), unstable)
	if err != nil || x[0] != 2 {
		t.Errorf("expected unstable point skipped, got x=%v err=%v", x, err)
	}

	crossesZero := NewGridSearch([][]float64{{-0.2, -0.1, 0, 0.1, 0.2}})
	x, _, err = crossesZero.Search(context.Background(), nonNegative)
	if err != nil || math.Abs(x[0]-0.2) > 1e-12 {
		t.Errorf("expected negative points skipped and 0.2 chosen, got x=%v err=%v", x, err)
	}

	fatal := errors.New("config broken")
	_, _, err = g.Search(context.Background(), func(ctx context.Context, p []float64) ([]float64, error) {
		return nil, fatal
	})
	if !errors.Is(err, fatal) {
		t.Errorf("expected fatal error, got %v", err)
	}

	if _, _, err := NewGridSearch(nil).Search(context.Background(), unstable); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		in      string
		want    []float64
		wantErr bool
	}{
		{"0.1:0.5:5", []float64{0.1, 0.2, 0.3, 0.4, 0.5}, false},
		{"1, 2,3", []float64{1, 2, 3}, false},
		{"0:1", nil, true},
		{"0:1:1", nil, true},
		{"a,b", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRange(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRange(%q) err = %v", tt.in, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if d := got[i] - tt.want[i]; d > 1e-12 || d < -1e-12 {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}
