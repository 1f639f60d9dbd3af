package handlers

import (
	"github.com/Brownie44l1/letter-api/internal/drawing"
)

// RasterRequest carries a raw canvas buffer: width*height*4 bytes of
// non-premultiplied RGBA, base64 encoded in JSON.
type RasterRequest struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	RGBA   []byte `json:"rgba"`
}

// StrokesRequest replays drawing events on a blank canvas.
type StrokesRequest struct {
	Width     int             `json:"width"`
	Height    int             `json:"height"`
	LineWidth float64         `json:"line_width"`
	Events    []drawing.Event `json:"events"`
}

// ErrorResponse is returned instead of a label whenever no prediction is
// available, so clients never show a stale or made-up letter.
type ErrorResponse struct {
	Label  string `json:"label"`
	Status string `json:"status"`
	Error  string `json:"error"`
}
