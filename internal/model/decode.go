package model

import (
	"fmt"
	"strconv"
)

// ArgMax returns the index of the highest score. Ties go to the lowest
// index because only a strictly greater score replaces the current best.
func ArgMax(scores Scores) int {
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return best
}

// FormatConfidence renders a score with exactly two decimals. The exact
// binary value is rounded correctly, so exact ties round half to even
// (0.125 gives "0.12") and a float32 0.005, stored as 0.00499999..., gives
// "0.00".
func FormatConfidence(score float32) string {
	return strconv.FormatFloat(float64(score), 'f', 2, 64)
}

// Decode picks the label and formats the per-class confidences.
func Decode(scores Scores, classes []string) (Prediction, error) {
	if len(classes) == 0 {
		classes = Letters()
	}
	if len(scores) != len(classes) {
		return Prediction{}, fmt.Errorf("%w: got %d scores for %d classes",
			ErrScoreLength, len(scores), len(classes))
	}

	confidences := make(map[string]string, len(classes))
	for i, s := range scores {
		confidences[classes[i]] = FormatConfidence(s)
	}

	return Prediction{
		Label:       classes[ArgMax(scores)],
		Confidences: confidences,
	}, nil
}
