// Package labeled provides a small dense N-dimensional float64 array whose
// axes carry names and string coordinates.
//
// It covers the handful of operations simulation outputs need:
//
//   - [Array.Sel]: select one label along a dimension, dropping it
//   - [Array.Sum]: reduce over named dimensions
//   - [Array.Index]: resolve a coordinate label to a position
//
// Data is stored row-major, so the leading dimension (usually the time
// axis) is contiguous per index and can be written in place through
// [Array.Slab].
package labeled
