package labeled

import (
	"errors"
	"testing"
)

func newCounts(t *testing.T) *Array {
	t.Helper()
	a, err := New(
		[]string{"step", "vertex", "compartment"},
		map[string][]string{
			"step":        {"0", "1", "2"},
			"vertex":      {"austin", "houston"},
			"compartment": {"S", "I", "R"},
		},
	)
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	for s := 0; s < 3; s++ {
		for v := 0; v < 2; v++ {
			for c := 0; c < 3; c++ {
				a.Set(float64(100*s+10*v+c), s, v, c)
			}
		}
	}
	return a
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		dims   []string
		coords map[string][]string
	}{
		{"no dims", nil, nil},
		{"missing coords", []string{"a"}, map[string][]string{}},
		{"empty coords", []string{"a"}, map[string][]string{"a": {}}},
		{"duplicate dim", []string{"a", "a"}, map[string][]string{"a": {"x"}}},
		{"duplicate label", []string{"a"}, map[string][]string{"a": {"x", "x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.dims, tt.coords)
			if !errors.Is(err, ErrShape) {
				t.Errorf("expected ErrShape, got %v", err)
			}
		})
	}
}

func TestShapeAndSlab(t *testing.T) {
	a := newCounts(t)

	shape := a.Shape()
	if len(shape) != 3 || shape[0] != 3 || shape[1] != 2 || shape[2] != 3 {
		t.Fatalf("unexpected shape %v", shape)
	}

	slab := a.Slab(1)
	if len(slab) != 6 {
		t.Fatalf("expected slab of 6, got %d", len(slab))
	}
	if slab[0] != 100 || slab[5] != 112 {
		t.Errorf("unexpected slab %v", slab)
	}

	slab[0] = -1
	if a.At(1, 0, 0) != -1 {
		t.Error("slab should alias the array data")
	}
}

func TestSel(t *testing.T) {
	a := newCounts(t)

	infected, err := a.Sel("compartment", "I")
	if err != nil {
		t.Fatalf("sel failed: %v", err)
	}
	dims := infected.Dims()
	if len(dims) != 2 || dims[0] != "step" || dims[1] != "vertex" {
		t.Fatalf("unexpected dims %v", dims)
	}
	if got := infected.At(2, 1); got != 211 {
		t.Errorf("expected 211, got %v", got)
	}

	_, err = a.Sel("compartment", "Ih")
	if !errors.Is(err, ErrNoSuchLabel) {
		t.Errorf("expected ErrNoSuchLabel, got %v", err)
	}

	_, err = a.Sel("age_group", "0-4")
	if !errors.Is(err, ErrNoSuchDim) {
		t.Errorf("expected ErrNoSuchDim, got %v", err)
	}
}

func TestSum(t *testing.T) {
	a := newCounts(t)

	total, err := a.Sum("vertex", "compartment")
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	got, err := total.Values()
	if err != nil {
		t.Fatalf("values failed: %v", err)
	}
	want := []float64{36, 636, 1236}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	if _, err := a.Sum("step", "vertex", "compartment"); !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape when summing every dim, got %v", err)
	}
}

func TestSumExcept(t *testing.T) {
	a := newCounts(t)

	byStep, err := a.SumExcept("step")
	if err != nil {
		t.Fatalf("sum except failed: %v", err)
	}
	if byStep.NDim() != 1 || byStep.Dims()[0] != "step" {
		t.Fatalf("unexpected dims %v", byStep.Dims())
	}

	if _, err := a.SumExcept("time"); !errors.Is(err, ErrNoSuchDim) {
		t.Errorf("expected ErrNoSuchDim, got %v", err)
	}
}

func TestValuesRequiresOneDim(t *testing.T) {
	a := newCounts(t)
	if _, err := a.Values(); !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}

	s, err := NewSeries("step", []string{"0", "1"}, []float64{1, 2})
	if err != nil {
		t.Fatalf("series failed: %v", err)
	}
	v, err := s.Values()
	if err != nil || len(v) != 2 || v[1] != 2 {
		t.Errorf("unexpected values %v (%v)", v, err)
	}
}

func TestClone(t *testing.T) {
	a := newCounts(t)
	c := a.Clone()
	c.Set(-5, 0, 0, 0)
	if a.At(0, 0, 0) == -5 {
		t.Error("clone shares data with original")
	}
}
