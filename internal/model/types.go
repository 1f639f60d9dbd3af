package model

import (
	"errors"
)

var (
	ErrClassifierUnavailable = errors.New("model: classifier unavailable")
	ErrScoreLength           = errors.New("model: score vector length does not match classes")
	ErrBadMetadata           = errors.New("model: invalid metadata")
)

// NumClasses is the number of letter classes, A through Z.
const NumClasses = 26

// Letters returns the class labels in index order: 0 is "A", 25 is "Z".
func Letters() []string {
	letters := make([]string, NumClasses)
	for i := range letters {
		letters[i] = string(rune('A' + i))
	}
	return letters
}

type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
}

// Scores is the raw classifier output, one score per class.
type Scores []float32

// Prediction is the decoded classifier result. Confidences maps every class
// to its score with exactly two decimals.
type Prediction struct {
	Label       string            `json:"label"`
	Confidences map[string]string `json:"confidences"`
}
