// Package pipeline runs one prediction from capture to decoded label.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Brownie44l1/letter-api/internal/model"
	"github.com/Brownie44l1/letter-api/internal/raster"
	"github.com/Brownie44l1/letter-api/internal/tensor"
)

var (
	ErrBusy        = errors.New("pipeline: prediction already in progress")
	ErrUnknownMode = errors.New("pipeline: unknown mode")
)

// Capturer produces the raster for one prediction. Capture blocks until the
// drawing surface has finished rendering the snapshot.
type Capturer interface {
	Capture(ctx context.Context) (*raster.Image, error)
}

type CaptureFunc func(ctx context.Context) (*raster.Image, error)

func (f CaptureFunc) Capture(ctx context.Context) (*raster.Image, error) {
	return f(ctx)
}

// Static returns a Capturer for an image that is already available.
func Static(img *raster.Image) Capturer {
	return CaptureFunc(func(context.Context) (*raster.Image, error) {
		return img, nil
	})
}

// Recorder stores successful predictions.
type Recorder interface {
	Record(ctx context.Context, r Result) error
}

// Mode decides what happens to a prediction requested while another one
// is running.
type Mode string

const (
	ModeReject Mode = "reject"
	ModeQueue  Mode = "queue"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeQueue:
		return ModeQueue, nil
	case ModeReject:
		return ModeReject, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

type Result struct {
	ID string `json:"id"`
	model.Prediction
	Duration time.Duration `json:"-"`
}

// Pipeline is safe for concurrent use, but runs one prediction at a time:
// all predictions share the downsampler's working buffer.
type Pipeline struct {
	classifier model.Classifier
	classes    []string
	down       *raster.Downsampler
	mode       Mode
	recorder   Recorder
	slot       chan struct{}
}

type Option func(*Pipeline)

func WithMode(m Mode) Option {
	return func(p *Pipeline) { p.mode = m }
}

func WithFilter(f raster.Filter) Option {
	return func(p *Pipeline) { p.down = raster.NewDownsampler(f) }
}

func WithClasses(classes []string) Option {
	return func(p *Pipeline) { p.classes = classes }
}

func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

func New(c model.Classifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		classifier: c,
		classes:    model.Letters(),
		down:       raster.NewDownsampler(raster.FilterBox),
		mode:       ModeQueue,
		slot:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) acquire(ctx context.Context) error {
	if p.mode == ModeReject {
		select {
		case p.slot <- struct{}{}:
			return nil
		default:
			return ErrBusy
		}
	}
	select {
	case p.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) release() {
	<-p.slot
}

// Predict captures a raster and classifies it. Errors from every stage are
// returned as-is so callers can match ErrMalformedRaster, ErrEmptyInput,
// ErrClassifierUnavailable and ErrBusy with errors.Is. Nothing is retried.
func (p *Pipeline) Predict(ctx context.Context, src Capturer) (Result, error) {
	if err := p.acquire(ctx); err != nil {
		return Result{}, err
	}
	defer p.release()

	start := time.Now()
	id := uuid.NewString()

	img, err := src.Capture(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("capture: %w", err)
	}

	matrix, err := p.down.Downsample(img)
	if err != nil {
		return Result{}, err
	}

	scaled, err := tensor.Normalize(&matrix)
	if err != nil {
		return Result{}, err
	}

	if p.classifier == nil {
		return Result{}, model.ErrClassifierUnavailable
	}
	scores, err := p.classifier.Classify(ctx, scaled)
	if err != nil {
		return Result{}, err
	}

	prediction, err := model.Decode(scores, p.classes)
	if err != nil {
		return Result{}, err
	}

	res := Result{ID: id, Prediction: prediction, Duration: time.Since(start)}
	log.Printf("Prediction %s: %s from %dx%d in %s", id, res.Label, img.Width, img.Height, res.Duration)

	if p.recorder != nil {
		if err := p.recorder.Record(ctx, res); err != nil {
			log.Printf("Failed to record prediction %s: %v", id, err)
		}
	}
	return res, nil
}
