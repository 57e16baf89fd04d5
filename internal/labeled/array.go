package labeled

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSuchDim indicates a dimension name absent from the array.
	ErrNoSuchDim = errors.New("labeled: no such dimension")

	// ErrNoSuchLabel indicates a coordinate label absent from a dimension.
	ErrNoSuchLabel = errors.New("labeled: no such label")

	// ErrShape indicates invalid dimensions or a reduction to zero dimensions.
	ErrShape = errors.New("labeled: invalid shape")
)

type Array struct {
	dims    []string
	coords  [][]string
	shape   []int
	strides []int
	data    []float64
}

// New allocates a zero-filled array. Every dim must have at least one
// coordinate in coords, and labels must be unique within a dim.
func New(dims []string, coords map[string][]string) (*Array, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("%w: no dimensions", ErrShape)
	}

	a := &Array{
		dims:    make([]string, len(dims)),
		coords:  make([][]string, len(dims)),
		shape:   make([]int, len(dims)),
		strides: make([]int, len(dims)),
	}
	copy(a.dims, dims)

	seen := make(map[string]bool, len(dims))
	for i, d := range dims {
		if seen[d] {
			return nil, fmt.Errorf("%w: duplicate dimension %q", ErrShape, d)
		}
		seen[d] = true

		labels, ok := coords[d]
		if !ok || len(labels) == 0 {
			return nil, fmt.Errorf("%w: dimension %q has no coordinates", ErrShape, d)
		}
		uniq := make(map[string]bool, len(labels))
		for _, l := range labels {
			if uniq[l] {
				return nil, fmt.Errorf("%w: duplicate label %q in %q", ErrShape, l, d)
			}
			uniq[l] = true
		}
		a.coords[i] = append([]string(nil), labels...)
		a.shape[i] = len(labels)
	}

	size := 1
	for i := len(dims) - 1; i >= 0; i-- {
		a.strides[i] = size
		size *= a.shape[i]
	}
	a.data = make([]float64, size)

	return a, nil
}

// NewSeries builds a one-dimensional array from values.
func NewSeries(dim string, labels []string, values []float64) (*Array, error) {
	if len(labels) != len(values) {
		return nil, fmt.Errorf("%w: %d labels for %d values", ErrShape, len(labels), len(values))
	}
	a, err := New([]string{dim}, map[string][]string{dim: labels})
	if err != nil {
		return nil, err
	}
	copy(a.data, values)
	return a, nil
}

func (a *Array) Dims() []string {
	return append([]string(nil), a.dims...)
}

func (a *Array) Shape() []int {
	return append([]int(nil), a.shape...)
}

func (a *Array) NDim() int { return len(a.dims) }
func (a *Array) Len() int  { return len(a.data) }

// Data returns the backing slice.
func (a *Array) Data() []float64 { return a.data }

// Axis returns the position of dim, or -1.
func (a *Array) Axis(dim string) int {
	for i, d := range a.dims {
		if d == dim {
			return i
		}
	}
	return -1
}

func (a *Array) HasDim(dim string) bool { return a.Axis(dim) >= 0 }

func (a *Array) Coords(dim string) ([]string, error) {
	ax := a.Axis(dim)
	if ax < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchDim, dim)
	}
	return append([]string(nil), a.coords[ax]...), nil
}

// Index resolves label to its position along dim.
func (a *Array) Index(dim, label string) (int, error) {
	ax := a.Axis(dim)
	if ax < 0 {
		return 0, fmt.Errorf("%w: %q", ErrNoSuchDim, dim)
	}
	for i, l := range a.coords[ax] {
		if l == label {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q not in %q", ErrNoSuchLabel, label, dim)
}

func (a *Array) offset(idx []int) int {
	if len(idx) != len(a.dims) {
		panic(fmt.Sprintf("labeled: %d indices for %d dimensions", len(idx), len(a.dims)))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= a.shape[i] {
			panic(fmt.Sprintf("labeled: index %d out of range for %q", v, a.dims[i]))
		}
		off += v * a.strides[i]
	}
	return off
}

func (a *Array) At(idx ...int) float64 { return a.data[a.offset(idx)] }

func (a *Array) Set(v float64, idx ...int) { a.data[a.offset(idx)] = v }

// Slab returns the contiguous block of data at position i of the leading
// dimension. Writes go straight to the array.
func (a *Array) Slab(i int) []float64 {
	n := a.strides[0]
	return a.data[i*n : (i+1)*n]
}

func (a *Array) Clone() *Array {
	c := &Array{
		dims:    append([]string(nil), a.dims...),
		coords:  make([][]string, len(a.coords)),
		shape:   append([]int(nil), a.shape...),
		strides: append([]int(nil), a.strides...),
		data:    append([]float64(nil), a.data...),
	}
	for i, l := range a.coords {
		c.coords[i] = append([]string(nil), l...)
	}
	return c
}

// Values returns a copy of the data of a one-dimensional array.
func (a *Array) Values() ([]float64, error) {
	if len(a.dims) != 1 {
		return nil, fmt.Errorf("%w: expected 1 dimension, got %d %v", ErrShape, len(a.dims), a.dims)
	}
	return append([]float64(nil), a.data...), nil
}

// Sel selects label along dim and drops that dimension.
func (a *Array) Sel(dim, label string) (*Array, error) {
	pos, err := a.Index(dim, label)
	if err != nil {
		return nil, err
	}
	if len(a.dims) == 1 {
		return nil, fmt.Errorf("%w: selecting %q would drop the last dimension", ErrShape, dim)
	}
	ax := a.Axis(dim)
	keep := make([]bool, len(a.dims))
	for i := range keep {
		keep[i] = i != ax
	}
	out := a.reduced(keep)

	idx := make([]int, len(a.dims))
	for flat, v := range a.data {
		a.unravel(flat, idx)
		if idx[ax] != pos {
			continue
		}
		out.data[out.offsetKept(idx, keep)] = v
	}
	return out, nil
}

// Sum reduces over every named dim. Summing over nothing returns a copy.
func (a *Array) Sum(dims ...string) (*Array, error) {
	if len(dims) == 0 {
		return a.Clone(), nil
	}
	keep := make([]bool, len(a.dims))
	for i := range keep {
		keep[i] = true
	}
	for _, d := range dims {
		ax := a.Axis(d)
		if ax < 0 {
			return nil, fmt.Errorf("%w: %q", ErrNoSuchDim, d)
		}
		keep[ax] = false
	}
	remaining := 0
	for _, k := range keep {
		if k {
			remaining++
		}
	}
	if remaining == 0 {
		return nil, fmt.Errorf("%w: summing %v leaves no dimensions", ErrShape, dims)
	}

	out := a.reduced(keep)
	idx := make([]int, len(a.dims))
	for flat, v := range a.data {
		a.unravel(flat, idx)
		out.data[out.offsetKept(idx, keep)] += v
	}
	return out, nil
}

// SumExcept reduces over every dim not listed in keep.
func (a *Array) SumExcept(keep ...string) (*Array, error) {
	want := make(map[string]bool, len(keep))
	for _, k := range keep {
		if !a.HasDim(k) {
			return nil, fmt.Errorf("%w: %q", ErrNoSuchDim, k)
		}
		want[k] = true
	}
	var drop []string
	for _, d := range a.dims {
		if !want[d] {
			drop = append(drop, d)
		}
	}
	return a.Sum(drop...)
}

func (a *Array) reduced(keep []bool) *Array {
	out := &Array{}
	for i, k := range keep {
		if !k {
			continue
		}
		out.dims = append(out.dims, a.dims[i])
		out.coords = append(out.coords, append([]string(nil), a.coords[i]...))
		out.shape = append(out.shape, a.shape[i])
	}
	out.strides = make([]int, len(out.dims))
	size := 1
	for i := len(out.dims) - 1; i >= 0; i-- {
		out.strides[i] = size
		size *= out.shape[i]
	}
	out.data = make([]float64, size)
	return out
}

func (a *Array) unravel(flat int, idx []int) {
	for i, s := range a.strides {
		idx[i] = flat / s
		flat %= s
	}
}

// offsetKept maps a source index onto a reduced array that kept only the
// dims flagged in keep.
func (a *Array) offsetKept(src []int, keep []bool) int {
	off, j := 0, 0
	for i, k := range keep {
		if !k {
			continue
		}
		off += src[i] * a.strides[j]
		j++
	}
	return off
}
