package raster

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// Size is the side length of the classifier input.
const Size = 28

var ErrUnknownFilter = errors.New("raster: unknown resample filter")

// Matrix holds Size*Size alpha intensities in row-major order.
type Matrix [Size * Size]uint8

// At returns the value at row r, column c.
func (m *Matrix) At(r, c int) uint8 {
	return m[r*Size+c]
}

// Rows returns a copy of the matrix as Size rows of Size values.
func (m *Matrix) Rows() [][]uint8 {
	rows := make([][]uint8, Size)
	for r := range rows {
		rows[r] = append([]uint8(nil), m[r*Size:(r+1)*Size]...)
	}
	return rows
}

type Filter string

const (
	FilterBox      Filter = "box"
	FilterBilinear Filter = "bilinear"
	FilterBicubic  Filter = "bicubic"
	FilterLanczos3 Filter = "lanczos3"
	FilterNearest  Filter = "nearest"
)

// ParseFilter maps a configuration name to a Filter. An empty name is box.
func ParseFilter(name string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(name))); f {
	case "":
		return FilterBox, nil
	case FilterBox, FilterBilinear, FilterBicubic, FilterLanczos3, FilterNearest:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}
}

// boxKernel has unit weight over half a source pixel either side. Kernel
// scaling widens it by the reduction factor, so every source pixel under a
// destination pixel is averaged. A source pixel exactly on the boundary gets
// half weight, which is its true area share when the boundary halves it.
// The support is nudged past 0.5 so that boundary taps are visited at all.
var boxKernel = &draw.Kernel{
	Support: 0.5 + 1e-9,
	At: func(t float64) float64 {
		if t < 0.5 {
			return 1
		}
		return 0.5
	},
}

func (f Filter) interpolation() resize.InterpolationFunction {
	switch f {
	case FilterBilinear:
		return resize.Bilinear
	case FilterBicubic:
		return resize.Bicubic
	case FilterLanczos3:
		return resize.Lanczos3
	case FilterNearest:
		return resize.NearestNeighbor
	default:
		return resize.Bilinear
	}
}

// Downsampler resamples images to Size x Size in a single step and keeps
// the alpha channel. It reuses one working buffer and is not safe for
// concurrent use.
type Downsampler struct {
	filter Filter
	buf    *image.RGBA
}

// NewDownsampler returns a Downsampler for f. An empty or unknown filter
// falls back to box.
func NewDownsampler(f Filter) *Downsampler {
	if parsed, err := ParseFilter(string(f)); err == nil {
		f = parsed
	} else {
		f = FilterBox
	}
	return &Downsampler{
		filter: f,
		buf:    image.NewRGBA(image.Rect(0, 0, Size, Size)),
	}
}

func (d *Downsampler) Filter() Filter {
	return d.filter
}

// Downsample reduces img to a Size x Size alpha matrix. Row r, column c is
// the resampled pixel (c, r). A fully transparent image gives all zeros.
func (d *Downsampler) Downsample(img *Image) (Matrix, error) {
	var m Matrix
	if err := img.Validate(); err != nil {
		return m, err
	}
	src := img.NRGBA()

	var out image.Image
	if d.filter == FilterBox {
		boxKernel.Scale(d.buf, d.buf.Rect, src, src.Rect, draw.Src, nil)
		out = d.buf
	} else {
		out = resize.Resize(Size, Size, src, d.filter.interpolation())
	}

	b := out.Bounds()
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			_, _, _, a := out.At(b.Min.X+c, b.Min.Y+r).RGBA()
			m[r*Size+c] = uint8(a >> 8)
		}
	}
	return m, nil
}
