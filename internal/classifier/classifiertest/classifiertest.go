// Package classifiertest provides small trained artifacts and an in-memory
// loader for tests that need working classifiers.
package classifiertest

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	UrgencyVocabularyPath  = "mem://urgency_vectorizer.json"
	UrgencyModelPath       = "mem://urgency_nb.json"
	CategoryVocabularyPath = "mem://vectorizer.json"
	CategoryModelPath      = "mem://category_net.json"
)

// UrgencyVocabulary includes one bigram, "need help".
const UrgencyVocabulary = `{
  "vocabulary_": {
    "fire": 0, "help": 1, "need": 2, "need help": 3, "downtown": 4,
    "flood": 5, "minor": 6, "later": 7, "water": 8
  }
}`

// UrgencyModel ranks fire/help messages High, flood/water Medium and
// minor/later Low. Priors are equal so ties go to High.
const UrgencyModel = `{
  "classes": ["High", "Low", "Medium"],
  "class_log_prior_": [-1.1, -1.1, -1.1],
  "feature_log_prob_": [
    [-1, -1, -2, -1, -3, -2, -6, -6, -3],
    [-5, -4, -3, -5, -3, -4, -1, -1, -3],
    [-3, -3, -2, -3, -2, -1, -3, -3, -1]
  ]
}`

const CategoryVocabulary = `{
  "vocabulary_": {
    "fire": 0, "smoke": 1, "burning": 2, "flood": 3, "water": 4,
    "rain": 5, "injured": 6, "bleeding": 7, "ambulance": 8, "help": 9
  }
}`

// CategoryModel is a relu layer of keyword detectors followed by a softmax.
const CategoryModel = `{
  "input_size": 10,
  "labels": ["Fire", "Flood", "Medical"],
  "layers": [
    {
      "weights": [
        [3, 2, 2, 0, 0, 0, 0, 0, 0, 0],
        [0, 0, 0, 3, 2, 2, 0, 0, 0, 0],
        [0, 0, 0, 0, 0, 0, 3, 2, 1, 0]
      ],
      "bias": [0, 0, 0],
      "activation": "relu"
    },
    {
      "weights": [[2, 0, 0], [0, 2, 0], [0, 0, 2]],
      "bias": [0, 0, 0],
      "activation": "softmax"
    }
  ]
}`

// Loader serves artifacts from memory and counts loads per location.
type Loader struct {
	mu    sync.Mutex
	files map[string][]byte
	loads map[string]int

	// Delay is applied to every load.
	Delay time.Duration
	fail  error
}

// NewLoader returns a Loader preloaded with every fixture artifact.
func NewLoader() *Loader {
	return &Loader{
		files: map[string][]byte{
			UrgencyVocabularyPath:  []byte(UrgencyVocabulary),
			UrgencyModelPath:       []byte(UrgencyModel),
			CategoryVocabularyPath: []byte(CategoryVocabulary),
			CategoryModelPath:      []byte(CategoryModel),
		},
		loads: make(map[string]int),
	}
}

func (l *Loader) Set(location string, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.files[location] = data
}

// SetFail makes every later load return err; nil restores normal loading.
func (l *Loader) SetFail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fail = err
}

func (l *Loader) Loads(location string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads[location]
}

func (l *Loader) Load(ctx context.Context, location string) ([]byte, error) {
	if l.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.Delay):
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads[location]++

	if l.fail != nil {
		return nil, l.fail
	}
	data, ok := l.files[location]
	if !ok {
		return nil, fmt.Errorf("no artifact at %s", location)
	}
	return data, nil
}
