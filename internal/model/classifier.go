package model

import (
	"context"

	"github.com/Brownie44l1/letter-api/internal/tensor"
)

// Classifier scores a [1,28,28,1] tensor against the letter classes.
// Implementations must not retry; a classifier that is not loaded returns
// ErrClassifierUnavailable.
type Classifier interface {
	Classify(ctx context.Context, t *tensor.Scaled) (Scores, error)
}

// ClassifierFunc adapts a plain function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, t *tensor.Scaled) (Scores, error)

func (f ClassifierFunc) Classify(ctx context.Context, t *tensor.Scaled) (Scores, error) {
	return f(ctx, t)
}
