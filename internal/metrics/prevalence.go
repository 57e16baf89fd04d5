package metrics

import (
	"math"

	"github.com/san-kum/episim/internal/sim"
)

func sumAt(x sim.State, indices []int) float64 {
	total := 0.0
	for _, i := range indices {
		total += x[i]
	}
	return total
}

// Peak tracks the largest total of the observed state positions.
type Peak struct {
	name    string
	indices []int
	peak    float64
	at      float64
	samples int
}

func NewPeak(name string, indices []int) *Peak {
	return &Peak{name: name, indices: indices}
}

func (p *Peak) Name() string { return p.name }

func (p *Peak) Observe(x sim.State, t float64) {
	v := sumAt(x, p.indices)
	if p.samples == 0 || v > p.peak {
		p.peak = v
		p.at = t
	}
	p.samples++
}

func (p *Peak) Value() float64 { return p.peak }

// Time is the time of the peak in days.
func (p *Peak) Time() float64 { return p.at }

func (p *Peak) Reset() {
	p.peak = 0
	p.at = 0
	p.samples = 0
}

// PeakTime reports the time of a Peak as its own metric.
type PeakTime struct {
	peak *Peak
}

func NewPeakTime(p *Peak) *PeakTime {
	return &PeakTime{peak: p}
}

func (p *PeakTime) Name() string { return p.peak.name + "_time" }

// Observe is a no-op; the wrapped Peak does the observing.
func (p *PeakTime) Observe(x sim.State, t float64) {}

func (p *PeakTime) Value() float64 { return p.peak.Time() }
func (p *PeakTime) Reset()         {}

// FinalSize is the total of the observed positions at the last step.
type FinalSize struct {
	name    string
	indices []int
	last    float64
}

func NewFinalSize(name string, indices []int) *FinalSize {
	return &FinalSize{name: name, indices: indices}
}

func (f *FinalSize) Name() string { return f.name }

func (f *FinalSize) Observe(x sim.State, t float64) {
	f.last = sumAt(x, f.indices)
}

func (f *FinalSize) Value() float64 { return f.last }
func (f *FinalSize) Reset()         { f.last = 0 }

// NonNegative is the fraction of steps where no count fell below -tol.
type NonNegative struct {
	tol        float64
	violations int
	samples    int
}

func NewNonNegative(tol float64) *NonNegative {
	return &NonNegative{tol: math.Abs(tol)}
}

func (n *NonNegative) Name() string { return "non_negative" }

func (n *NonNegative) Observe(x sim.State, t float64) {
	n.samples++
	for _, v := range x {
		if v < -n.tol {
			n.violations++
			break
		}
	}
}

func (n *NonNegative) Value() float64 {
	if n.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(n.violations)/float64(n.samples)
}

func (n *NonNegative) Reset() {
	n.violations = 0
	n.samples = 0
}
