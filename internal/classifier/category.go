package classifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mr1hm/go-lifeline/internal/textproc"
)

// CategoryBundle pairs the category vocabulary with the network trained on
// its dense vectors.
type CategoryBundle struct {
	Vocabulary *textproc.Vocabulary
	Network    *Network
}

// NewCategoryBundle accepts a vocabulary whose size differs from the network
// input width; vectors are padded or truncated at inference time.
func NewCategoryBundle(vocab *textproc.Vocabulary, net *Network) *CategoryBundle {
	if vocab.Size() != net.InputWidth() {
		slog.Warn("category vocabulary and network width differ",
			"vocabulary", vocab.Size(), "input_width", net.InputWidth())
	}
	return &CategoryBundle{Vocabulary: vocab, Network: net}
}

func (b *CategoryBundle) Predict(tokens []string) (Prediction, error) {
	return b.Network.Predict(b.Vocabulary.Dense(tokens))
}

type CategorySource interface {
	Category(ctx context.Context) (*CategoryBundle, func(), error)
}

type CategoryClassifier struct {
	source CategorySource
}

func NewCategoryClassifier(source CategorySource) *CategoryClassifier {
	return &CategoryClassifier{source: source}
}

func (c *CategoryClassifier) Classify(ctx context.Context, tokens []string) (Prediction, error) {
	bundle, release, err := c.source.Category(ctx)
	if err != nil {
		return Prediction{}, fmt.Errorf("category model unavailable: %w", err)
	}
	defer release()

	p, err := bundle.Predict(tokens)
	if err != nil {
		return Prediction{}, fmt.Errorf("category inference failed: %w", err)
	}
	return p, nil
}
