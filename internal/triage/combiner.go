// Package triage combines the urgency and category classifiers into a single
// verdict for an alert message.
package triage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mr1hm/go-lifeline/internal/classifier"
	"github.com/mr1hm/go-lifeline/internal/models"
	"github.com/mr1hm/go-lifeline/internal/textproc"
)

// DefaultMessage replaces a blank alert message.
const DefaultMessage = "HELP"

const (
	ClassifierUrgency  = "urgency"
	ClassifierCategory = "category"
)

// Hooks observe each classifier run. Nil funcs are skipped.
type Hooks struct {
	OnClassify func(classifier string, ok bool, duration time.Duration)
}

type Combiner struct {
	urgency  classifier.Classifier
	category classifier.Classifier
	hooks    Hooks
}

func NewCombiner(urgency, category classifier.Classifier, hooks Hooks) *Combiner {
	return &Combiner{
		urgency:  urgency,
		category: category,
		hooks:    hooks,
	}
}

// NewFromRegistry wires both classifiers to bundles shared through reg.
func NewFromRegistry(reg *classifier.Registry, hooks Hooks) *Combiner {
	return NewCombiner(
		classifier.NewUrgencyClassifier(reg),
		classifier.NewCategoryClassifier(reg),
		hooks,
	)
}

// MessageOrDefault returns message, or DefaultMessage when it is blank.
func MessageOrDefault(message string) string {
	if strings.TrimSpace(message) == "" {
		return DefaultMessage
	}
	return message
}

// Triage runs both classifiers concurrently. A classifier that errors or
// panics contributes models.LabelUnknown without affecting the other; Triage
// itself never fails.
func (c *Combiner) Triage(ctx context.Context, message string) models.TriageResult {
	tokens := textproc.Normalize(MessageOrDefault(message))

	var urgency, category classifier.Prediction
	var urgencyErr, categoryErr error

	var g errgroup.Group
	g.Go(func() error {
		urgency, urgencyErr = c.run(ctx, ClassifierUrgency, c.urgency, tokens)
		return nil
	})
	g.Go(func() error {
		category, categoryErr = c.run(ctx, ClassifierCategory, c.category, tokens)
		return nil
	})
	_ = g.Wait()

	result := models.TriageResult{
		Urgency:  models.LabelUnknown,
		Category: models.LabelUnknown,
	}
	if urgencyErr == nil {
		result.Urgency = urgency.Label
		result.UrgencyConfidence = confidence(urgency)
	} else {
		slog.Warn("urgency classification failed", "error", urgencyErr)
	}
	if categoryErr == nil {
		result.Category = category.Label
		result.CategoryConfidence = confidence(category)
	} else {
		slog.Warn("category classification failed", "error", categoryErr)
	}

	return result
}

func (c *Combiner) run(ctx context.Context, name string, cl classifier.Classifier, tokens []string) (p classifier.Prediction, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s classifier panicked: %v", name, r)
		}
		if err == nil && p.Label == "" {
			err = fmt.Errorf("%s classifier returned an empty label", name)
		}
		if c.hooks.OnClassify != nil {
			c.hooks.OnClassify(name, err == nil, time.Since(start))
		}
	}()

	if cl == nil {
		return classifier.Prediction{}, fmt.Errorf("%s classifier not configured", name)
	}
	return cl.Classify(ctx, tokens)
}

func confidence(p classifier.Prediction) *float64 {
	if p.Confidence <= 0 {
		return nil
	}
	v := p.Confidence
	return &v
}
