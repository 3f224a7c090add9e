package textproc

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrEmptyVocabulary = errors.New("vocabulary has no entries")

// Vocabulary maps known tokens (and bigrams) to feature indices. It is
// immutable once built and safe for concurrent use.
type Vocabulary struct {
	index map[string]int
	size  int
	idf   []float64
}

// NewVocabulary validates index and derives the feature space size, which is
// the larger of declaredSize, the highest index plus one and the entry count.
// IDF weights are kept only when they cover the whole feature space.
func NewVocabulary(index map[string]int, idf []float64, declaredSize int) (*Vocabulary, error) {
	if len(index) == 0 {
		return nil, ErrEmptyVocabulary
	}

	maxIdx := -1
	copied := make(map[string]int, len(index))
	for term, i := range index {
		if i < 0 {
			return nil, fmt.Errorf("term %q has negative index %d", term, i)
		}
		if i > maxIdx {
			maxIdx = i
		}
		copied[term] = i
	}

	size := max(declaredSize, maxIdx+1, len(index))

	v := &Vocabulary{index: copied, size: size}
	if len(idf) == size {
		v.idf = append([]float64(nil), idf...)
	}
	return v, nil
}

type vocabularyArtifact struct {
	Vocabulary   map[string]int `json:"vocabulary"`
	VocabularySK map[string]int `json:"vocabulary_"`
	IDF          []float64      `json:"idf"`
	IDFSK        []float64      `json:"idf_"`
	Size         int            `json:"size"`
}

// ParseVocabulary reads a vectorizer export. Both the wrapped form
// ({"vocabulary_": {...}, "idf_": [...]}) and a bare term->index object are
// accepted.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var art vocabularyArtifact
	if err := json.Unmarshal(data, &art); err == nil {
		index := art.VocabularySK
		if index == nil {
			index = art.Vocabulary
		}
		idf := art.IDFSK
		if idf == nil {
			idf = art.IDF
		}
		if index != nil {
			return NewVocabulary(index, idf, art.Size)
		}
	}

	var bare map[string]int
	if err := json.Unmarshal(data, &bare); err != nil {
		return nil, fmt.Errorf("error decoding vocabulary: %w", err)
	}
	return NewVocabulary(bare, nil, 0)
}

// Size is the length of every dense vector this vocabulary produces.
func (v *Vocabulary) Size() int {
	return v.size
}

func (v *Vocabulary) HasIDF() bool {
	return v.idf != nil
}

// Lookup returns the index of term.
func (v *Vocabulary) Lookup(term string) (int, bool) {
	i, ok := v.index[term]
	return i, ok
}
