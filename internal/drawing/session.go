// Package drawing is the freehand drawing surface. It turns pointer and
// touch events into strokes rendered opaque black on a transparent canvas,
// which is the alpha contract the raster package reads ink from.
package drawing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Brownie44l1/letter-api/internal/raster"
)

// DefaultLineWidth matches the stroke width of the browser canvas.
const DefaultLineWidth = 6

var (
	ErrUnknownEvent = errors.New("drawing: unknown event type")
	ErrBadSize      = errors.New("drawing: invalid canvas size")
)

type EventType string

const (
	MouseDown  EventType = "mouse_down"
	MouseMove  EventType = "mouse_move"
	MouseUp    EventType = "mouse_up"
	TouchStart EventType = "touch_start"
	TouchMove  EventType = "touch_move"
	Clear      EventType = "clear"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Event is one input event in canvas coordinates.
type Event struct {
	Type EventType `json:"type"`
	X    float64   `json:"x"`
	Y    float64   `json:"y"`
}

func (e Event) point() Point {
	return Point{X: e.X, Y: e.Y}
}

// Session is the pointer state carried between events. Handlers receive it
// by value and return the updated copy.
type Session struct {
	Pos     Point
	Drawing bool
}

// Handler applies one event to a session.
type Handler func(s Session, e Event) Session

// Surface owns a canvas and the handler table that paints on it.
type Surface struct {
	mu       sync.Mutex
	session  Session
	canvas   *Canvas
	handlers map[EventType]Handler
}

func NewSurface(width, height int, lineWidth float64) (*Surface, error) {
	if width <= 0 || height <= 0 || width > raster.MaxSide || height > raster.MaxSide {
		return nil, fmt.Errorf("%w: %dx%d, sides must be 1..%d", ErrBadSize, width, height, raster.MaxSide)
	}
	if lineWidth <= 0 {
		lineWidth = DefaultLineWidth
	}
	s := &Surface{canvas: newCanvas(width, height)}
	s.handlers = handlerTable(s.canvas, lineWidth)
	return s, nil
}

func handlerTable(c *Canvas, width float64) map[EventType]Handler {
	return map[EventType]Handler{
		MouseDown: func(s Session, e Event) Session {
			s.Pos = e.point()
			s.Drawing = true
			return s
		},
		MouseMove: func(s Session, e Event) Session {
			if !s.Drawing {
				return s
			}
			c.stroke(s.Pos, e.point(), width)
			s.Pos = e.point()
			return s
		},
		MouseUp: func(s Session, e Event) Session {
			s.Drawing = false
			return s
		},
		TouchStart: func(s Session, e Event) Session {
			s.Pos = e.point()
			return s
		},
		TouchMove: func(s Session, e Event) Session {
			c.stroke(s.Pos, e.point(), width)
			s.Pos = e.point()
			return s
		},
		Clear: func(s Session, e Event) Session {
			c.clear()
			return s
		},
	}
}

// Dispatch routes e to its handler and stores the returned session.
func (s *Surface) Dispatch(e Event) error {
	h, ok := s.handlers[e.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, e.Type)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = h(s.session, e)
	return nil
}

func (s *Surface) Session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Snapshot copies the canvas into a new raster image.
func (s *Surface) Snapshot() *raster.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.canvas.ink.Bounds()
	return &raster.Image{
		Width:  b.Dx(),
		Height: b.Dy(),
		Pix:    s.canvas.rgba(),
	}
}

// Capture renders a snapshot and waits for it to be ready. It satisfies
// pipeline.Capturer.
func (s *Surface) Capture(ctx context.Context) (*raster.Image, error) {
	ready := make(chan *raster.Image, 1)
	go func() {
		ready <- s.Snapshot()
	}()
	select {
	case img := <-ready:
		return img, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Replay draws events on a fresh surface and returns the snapshot.
func Replay(width, height int, lineWidth float64, events []Event) (*raster.Image, error) {
	s, err := NewSurface(width, height, lineWidth)
	if err != nil {
		return nil, err
	}
	for i, e := range events {
		if err := s.Dispatch(e); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}
	return s.Snapshot(), nil
}
