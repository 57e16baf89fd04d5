package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/episim/internal/sim"
)

func TestPeak(t *testing.T) {
	p := NewPeak("peak_i", []int{1, 2})
	pt := NewPeakTime(p)

	states := []sim.State{{10, 1, 0}, {8, 2, 1}, {5, 3, 3}, {4, 1, 1}}
	for i, x := range states {
		p.Observe(x, float64(i)*0.5)
		pt.Observe(x, float64(i)*0.5)
	}

	if p.Value() != 6 {
		t.Errorf("expected peak 6, got %v", p.Value())
	}
	if pt.Value() != 1.0 {
		t.Errorf("expected peak time 1.0, got %v", pt.Value())
	}
	if pt.Name() != "peak_i_time" {
		t.Errorf("unexpected name %q", pt.Name())
	}

	p.Reset()
	if p.Value() != 0 || p.Time() != 0 {
		t.Error("expected zero after reset")
	}
}

func TestFinalSize(t *testing.T) {
	f := NewFinalSize("final_r", []int{2})
	f.Observe(sim.State{1, 1, 1}, 0)
	f.Observe(sim.State{0, 0, 3}, 1)

	if f.Value() != 3 {
		t.Errorf("expected 3, got %v", f.Value())
	}
}

func TestPopulationDrift(t *testing.T) {
	d := NewPopulationDrift()
	d.Observe(sim.State{90, 10}, 0)
	d.Observe(sim.State{80, 20}, 1)

	if d.Value() != 0 {
		t.Errorf("expected no drift, got %v", d.Value())
	}

	d.Observe(sim.State{80, 21}, 2)
	if math.Abs(d.Value()-0.01) > 1e-12 {
		t.Errorf("expected drift 0.01, got %v", d.Value())
	}

	d.Reset()
	if d.Value() != 0 {
		t.Error("expected zero drift after reset")
	}
}

func TestNonNegative(t *testing.T) {
	n := NewNonNegative(1e-9)
	n.Observe(sim.State{1, 0}, 0)
	n.Observe(sim.State{1, -1}, 1)

	if n.Value() != 0.5 {
		t.Errorf("expected 0.5, got %v", n.Value())
	}
}
