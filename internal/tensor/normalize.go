// Package tensor builds the scaled classifier input from an intensity matrix.
package tensor

import (
	"errors"

	"gonum.org/v1/gonum/floats"

	"github.com/Brownie44l1/letter-api/internal/raster"
)

// ErrEmptyInput is returned when every cell has the same intensity, which
// happens for a blank or fully saturated canvas. Min-max scaling would
// divide zero by zero.
var ErrEmptyInput = errors.New("tensor: empty input, no strokes drawn")

// Scaled is a [1, Size, Size, 1] float32 tensor with values in [0, 1].
type Scaled struct {
	data [raster.Size * raster.Size]float32
}

// Shape is batch, height, width, channel.
func (s *Scaled) Shape() []int64 {
	return []int64{1, raster.Size, raster.Size, 1}
}

// Data returns the flat row-major values. The slice aliases the tensor.
func (s *Scaled) Data() []float32 {
	return s.data[:]
}

func (s *Scaled) At(r, c int) float32 {
	return s.data[r*raster.Size+c]
}

// Normalize applies min-max scaling over the whole matrix: every value v
// becomes (v-lo)/(hi-lo). The lowest cell maps to exactly 0 and the
// highest to exactly 1.
func Normalize(m *raster.Matrix) (*Scaled, error) {
	vals := make([]float64, len(m))
	for i, v := range m {
		vals[i] = float64(v)
	}

	lo, hi := floats.Min(vals), floats.Max(vals)
	if hi == lo {
		return nil, ErrEmptyInput
	}

	span := hi - lo
	s := &Scaled{}
	for i, v := range vals {
		s.data[i] = float32((v - lo) / span)
	}
	return s, nil
}
