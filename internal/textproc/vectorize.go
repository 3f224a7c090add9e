package textproc

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// Dense builds a count vector over the vocabulary, weights it by IDF (or by
// 1/len(tokens) when no IDF is known) and L2-normalizes it. The result always
// has length v.Size(); an all-zero vector is returned unnormalized.
func (v *Vocabulary) Dense(tokens []string) []float64 {
	vec := make([]float64, v.size)
	for _, tok := range tokens {
		if i, ok := v.index[tok]; ok {
			vec[i]++
		}
	}

	if v.idf != nil {
		floats.Mul(vec, v.idf)
	} else {
		floats.Scale(1/float64(max(len(tokens), 1)), vec)
	}

	if norm := floats.Norm(vec, 2); norm > 0 {
		floats.Scale(1/norm, vec)
	}
	return vec
}

// Indices returns the ascending, duplicate-free set of feature indices
// matched by tokens and, when withBigrams is set, by their bigrams.
func (v *Vocabulary) Indices(tokens []string, withBigrams bool) []int {
	seen := make(map[int]struct{}, len(tokens))
	add := func(term string) {
		if i, ok := v.index[term]; ok {
			seen[i] = struct{}{}
		}
	}

	for _, tok := range tokens {
		add(tok)
	}
	if withBigrams {
		for _, bg := range Bigrams(tokens) {
			add(bg)
		}
	}

	out := make([]int, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

// FitLength returns a copy of vec truncated or zero-padded to exactly n.
func FitLength(vec []float64, n int) []float64 {
	if n < 0 {
		n = 0
	}
	out := make([]float64, n)
	copy(out, vec)
	return out
}

// Sanitize replaces NaN and infinite entries with zero in place.
func Sanitize(vec []float64) []float64 {
	for i, x := range vec {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			vec[i] = 0
		}
	}
	return vec
}
