package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mr1hm/go-lifeline/internal/textproc"
)

// UrgencyModel is a multinomial naive-Bayes model over a sparse feature set.
type UrgencyModel struct {
	labels        []string
	logPrior      []float64
	logLikelihood [][]float64 // [feature][class]
}

// NewUrgencyModel validates the shapes of a trained model. logLikelihood is
// indexed [feature][class].
func NewUrgencyModel(labels []string, logPrior []float64, logLikelihood [][]float64) (*UrgencyModel, error) {
	if len(labels) == 0 {
		return nil, errors.New("urgency model has no labels")
	}
	if len(logPrior) != len(labels) {
		return nil, fmt.Errorf("urgency model has %d priors for %d labels", len(logPrior), len(labels))
	}
	for i, row := range logLikelihood {
		if len(row) != len(labels) {
			return nil, fmt.Errorf("urgency feature %d has %d class scores, want %d", i, len(row), len(labels))
		}
	}
	return &UrgencyModel{
		labels:        labels,
		logPrior:      logPrior,
		logLikelihood: logLikelihood,
	}, nil
}

type urgencyArtifact struct {
	Classes        []string    `json:"classes"`
	Labels         []string    `json:"labels"`
	ClassLogPrior  []float64   `json:"class_log_prior_"`
	FeatureLogProb [][]float64 `json:"feature_log_prob_"` // [class][feature]
}

// ParseUrgencyModel reads a naive-Bayes export whose feature_log_prob_ table
// is laid out [class][feature], as scikit-learn writes it.
func ParseUrgencyModel(data []byte) (*UrgencyModel, error) {
	var art urgencyArtifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("error decoding urgency model: %w", err)
	}

	labels := art.Classes
	if labels == nil {
		labels = art.Labels
	}
	if len(art.FeatureLogProb) != len(labels) {
		return nil, fmt.Errorf("urgency model has %d class rows for %d labels", len(art.FeatureLogProb), len(labels))
	}

	features := 0
	if len(art.FeatureLogProb) > 0 {
		features = len(art.FeatureLogProb[0])
	}
	transposed := make([][]float64, features)
	for f := range transposed {
		transposed[f] = make([]float64, len(labels))
	}
	for c, row := range art.FeatureLogProb {
		if len(row) != features {
			return nil, fmt.Errorf("urgency class %q has %d features, want %d", labels[c], len(row), features)
		}
		for f, v := range row {
			transposed[f][c] = v
		}
	}

	return NewUrgencyModel(labels, art.ClassLogPrior, transposed)
}

func (m *UrgencyModel) Labels() []string {
	return m.labels
}

func (m *UrgencyModel) Features() int {
	return len(m.logLikelihood)
}

// Score adds each distinct feature's log-likelihood row to the class priors
// and picks the best class, preferring the earliest on ties. Indices outside
// the table are ignored.
func (m *UrgencyModel) Score(indices []int) Prediction {
	scores := make([]float64, len(m.logPrior))
	copy(scores, m.logPrior)

	seen := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(m.logLikelihood) {
			continue
		}
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		for c, v := range m.logLikelihood[i] {
			scores[c] += v
		}
	}

	best := argmax(scores)
	if best < 0 {
		return Prediction{Label: m.labels[0], Scores: scores}
	}
	return Prediction{
		Label:      m.labels[best],
		Scores:     scores,
		Confidence: softmaxAt(scores, best),
	}
}

// UrgencyBundle pairs the urgency vocabulary, which includes bigrams, with the
// model trained over it.
type UrgencyBundle struct {
	Vocabulary *textproc.Vocabulary
	Model      *UrgencyModel
}

func NewUrgencyBundle(vocab *textproc.Vocabulary, model *UrgencyModel) (*UrgencyBundle, error) {
	if model.Features() != vocab.Size() {
		return nil, fmt.Errorf("urgency model covers %d features but vocabulary has %d", model.Features(), vocab.Size())
	}
	return &UrgencyBundle{Vocabulary: vocab, Model: model}, nil
}

func (b *UrgencyBundle) Predict(tokens []string) Prediction {
	return b.Model.Score(b.Vocabulary.Indices(tokens, true))
}

// UrgencySource hands out the shared urgency bundle. The returned release
// func must be called once the caller is done with it.
type UrgencySource interface {
	Urgency(ctx context.Context) (*UrgencyBundle, func(), error)
}

type UrgencyClassifier struct {
	source UrgencySource
}

func NewUrgencyClassifier(source UrgencySource) *UrgencyClassifier {
	return &UrgencyClassifier{source: source}
}

func (c *UrgencyClassifier) Classify(ctx context.Context, tokens []string) (Prediction, error) {
	bundle, release, err := c.source.Urgency(ctx)
	if err != nil {
		return Prediction{}, fmt.Errorf("urgency model unavailable: %w", err)
	}
	defer release()

	return bundle.Predict(tokens), nil
}
