// Package raster turns a captured drawing into the 28x28 intensity matrix
// the letter classifier was trained on.
//
// Alpha contract: the drawing surface renders strokes as opaque ink on a
// fully transparent background. The alpha channel is therefore read as ink
// coverage (ink near 255, background 0) and the colour channels are ignored.
// Producers that hand images to this package must keep that convention;
// an opaque photo of a letter carries no ink information in its alpha
// channel and downsamples to a blank matrix.
package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// MaxSide is the largest accepted width or height. It bounds the pixel
// buffer before any allocation or size arithmetic.
const MaxSide = 4096

var ErrMalformedRaster = errors.New("raster: malformed image")

// CheckSize reports ErrMalformedRaster unless both sides are in
// [1, MaxSide].
func CheckSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrMalformedRaster, width, height)
	}
	if width > MaxSide || height > MaxSide {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels per side", ErrMalformedRaster, width, height, MaxSide)
	}
	return nil
}

// Image is a captured RGBA pixel buffer with non-premultiplied 8-bit
// channels interleaved as R, G, B, A. It is not modified after capture.
type Image struct {
	Width  int
	Height int
	Pix    []uint8
}

// New copies pix into a new Image after checking it matches width*height*4.
func New(width, height int, pix []uint8) (*Image, error) {
	img := &Image{Width: width, Height: height, Pix: pix}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	img.Pix = append([]uint8(nil), pix...)
	return img, nil
}

// Validate reports ErrMalformedRaster for empty dimensions or a buffer of
// the wrong length.
func (im *Image) Validate() error {
	if im == nil {
		return fmt.Errorf("%w: nil image", ErrMalformedRaster)
	}
	if err := CheckSize(im.Width, im.Height); err != nil {
		return err
	}
	if len(im.Pix) != im.Width*im.Height*4 {
		return fmt.Errorf("%w: expected %d bytes for %dx%d, got %d",
			ErrMalformedRaster, im.Width*im.Height*4, im.Width, im.Height, len(im.Pix))
	}
	return nil
}

// NRGBA views the buffer as an image.Image without copying.
func (im *Image) NRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    im.Pix,
		Stride: im.Width * 4,
		Rect:   image.Rect(0, 0, im.Width, im.Height),
	}
}

// FromImage converts a decoded image into a raster Image, keeping alpha.
func FromImage(src image.Image) (*Image, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil image", ErrMalformedRaster)
	}
	b := src.Bounds()
	if err := CheckSize(b.Dx(), b.Dy()); err != nil {
		return nil, err
	}

	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	return &Image{Width: b.Dx(), Height: b.Dy(), Pix: dst.Pix}, nil
}

// Decode reads a PNG or JPEG file. The declared size is checked against
// MaxSide before any pixels are decoded.
func Decode(data []byte) (*Image, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrMalformedRaster, err)
	}
	if err := CheckSize(cfg.Width, cfg.Height); err != nil {
		return nil, format, err
	}
	decoded, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, format, fmt.Errorf("%w: %v", ErrMalformedRaster, err)
	}
	img, err := FromImage(decoded)
	return img, format, err
}
