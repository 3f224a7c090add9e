// Package classifier holds the urgency and category models used to triage
// alert messages, and the registry that loads and shares them.
package classifier

import (
	"context"
	"math"
)

// Prediction is a single classifier's verdict.
type Prediction struct {
	Label      string
	Scores     []float64
	Confidence float64
}

// Classifier labels a normalized token sequence.
type Classifier interface {
	Classify(ctx context.Context, tokens []string) (Prediction, error)
}

// argmax returns the first index holding the maximum value, or -1 for an
// empty slice. NaN entries never win.
func argmax(xs []float64) int {
	best := -1
	for i, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		if best == -1 || x > xs[best] {
			best = i
		}
	}
	return best
}

// softmaxAt returns the softmax probability of xs[i] without materializing
// the full distribution.
func softmaxAt(xs []float64, i int) float64 {
	m := math.Inf(-1)
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	if math.IsInf(m, -1) {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += math.Exp(x - m)
	}
	return math.Exp(xs[i]-m) / sum
}
