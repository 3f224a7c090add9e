package classifier

import (
	"context"
	"math"
	"testing"

	"github.com/mr1hm/go-lifeline/internal/classifier/classifiertest"
	"github.com/mr1hm/go-lifeline/internal/textproc"
)

func fixtureUrgency(t *testing.T) *UrgencyBundle {
	t.Helper()
	vocab, err := textproc.ParseVocabulary([]byte(classifiertest.UrgencyVocabulary))
	if err != nil {
		t.Fatalf("vocabulary: %v", err)
	}
	model, err := ParseUrgencyModel([]byte(classifiertest.UrgencyModel))
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	b, err := NewUrgencyBundle(vocab, model)
	if err != nil {
		t.Fatalf("bundle: %v", err)
	}
	return b
}

func fixtureCategory(t *testing.T) *CategoryBundle {
	t.Helper()
	vocab, err := textproc.ParseVocabulary([]byte(classifiertest.CategoryVocabulary))
	if err != nil {
		t.Fatalf("vocabulary: %v", err)
	}
	net, err := ParseNetwork([]byte(classifiertest.CategoryModel))
	if err != nil {
		t.Fatalf("network: %v", err)
	}
	return NewCategoryBundle(vocab, net)
}

func TestUrgency_Predict(t *testing.T) {
	b := fixtureUrgency(t)

	tests := []struct {
		msg  string
		want string
	}{
		{"fire downtown need help", "High"},
		{"minor water leak, check later", "Low"},
		{"flood water rising", "Medium"},
	}
	for _, tt := range tests {
		got := b.Predict(textproc.Normalize(tt.msg))
		if got.Label != tt.want {
			t.Errorf("%q: expected %s, got %s (scores %v)", tt.msg, tt.want, got.Label, got.Scores)
		}
		if got.Confidence <= 0 || got.Confidence > 1 {
			t.Errorf("%q: confidence out of range: %v", tt.msg, got.Confidence)
		}
	}
}

func TestUrgency_EmptyFeatureSetUsesPriors(t *testing.T) {
	b := fixtureUrgency(t)

	got := b.Predict(textproc.Normalize("zzz qqq"))
	for i, s := range got.Scores {
		if s != -1.1 {
			t.Errorf("score %d: expected prior -1.1, got %v", i, s)
		}
	}
	// Equal scores resolve to the first class.
	if got.Label != "High" {
		t.Errorf("expected first label on tie, got %s", got.Label)
	}
}

func TestUrgency_DuplicateFeaturesCountOnce(t *testing.T) {
	b := fixtureUrgency(t)

	once := b.Model.Score([]int{0})
	many := b.Model.Score([]int{0, 0, 0})
	for i := range once.Scores {
		if once.Scores[i] != many.Scores[i] {
			t.Fatalf("duplicate indices changed scores: %v vs %v", once.Scores, many.Scores)
		}
	}

	outOfRange := b.Model.Score([]int{-1, 999})
	if outOfRange.Label != "High" || outOfRange.Scores[1] != -1.1 {
		t.Errorf("out of range indices should be ignored, got %+v", outOfRange)
	}
}

func TestParseUrgencyModel_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad json", `{`},
		{"prior mismatch", `{"classes": ["a", "b"], "class_log_prior_": [0], "feature_log_prob_": [[0], [0]]}`},
		{"row mismatch", `{"classes": ["a", "b"], "class_log_prior_": [0, 0], "feature_log_prob_": [[0]]}`},
		{"ragged", `{"classes": ["a", "b"], "class_log_prior_": [0, 0], "feature_log_prob_": [[0, 1], [0]]}`},
		{"no labels", `{"class_log_prior_": [], "feature_log_prob_": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseUrgencyModel([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewUrgencyBundle_SizeMismatch(t *testing.T) {
	vocab, _ := textproc.NewVocabulary(map[string]int{"a": 0, "b": 1, "c": 2}, nil, 0)
	model, err := NewUrgencyModel([]string{"x", "y"}, []float64{0, 0}, [][]float64{{0, 0}, {0, 0}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewUrgencyBundle(vocab, model); err == nil {
		t.Error("expected error when table rows differ from vocabulary size")
	}
}

func TestCategory_Predict(t *testing.T) {
	b := fixtureCategory(t)

	tests := []struct {
		msg  string
		want string
	}{
		{"fire downtown need help", "Fire"},
		{"smoke everywhere, building burning", "Fire"},
		{"flood water after heavy rain", "Flood"},
		{"person injured and bleeding, send ambulance", "Medical"},
	}
	for _, tt := range tests {
		got, err := b.Predict(textproc.Normalize(tt.msg))
		if err != nil {
			t.Fatalf("%q: %v", tt.msg, err)
		}
		if got.Label != tt.want {
			t.Errorf("%q: expected %s, got %s (scores %v)", tt.msg, tt.want, got.Label, got.Scores)
		}
	}
}

func TestCategory_UnknownWordsUseBiasOnly(t *testing.T) {
	b := fixtureCategory(t)

	got, err := b.Predict(textproc.Normalize("zzz qqq"))
	if err != nil {
		t.Fatal(err)
	}
	// All-zero input leaves only the biases, which are equal here.
	if got.Label != "Fire" {
		t.Errorf("expected first label on tie, got %s (scores %v)", got.Label, got.Scores)
	}
	if math.Abs(got.Confidence-1.0/3) > 1e-9 {
		t.Errorf("expected uniform confidence, got %v", got.Confidence)
	}
}

func TestNetwork_ForwardFitsAndSanitizesInput(t *testing.T) {
	net, err := NewNetwork(3, []string{"a", "b"}, []LayerSpec{{
		Weights:    [][]float64{{1, 0, 0}, {0, 1, 1}},
		Bias:       []float64{0, 0},
		Activation: ActivationLinear,
	}})
	if err != nil {
		t.Fatal(err)
	}

	out, err := net.Forward([]float64{math.NaN(), 2})
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != 0 || out[1] != 2 {
		t.Errorf("expected [0 2], got %v", out)
	}

	out, err = net.Forward([]float64{1, 1, 1, 100, 100})
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != 1 || out[1] != 2 {
		t.Errorf("expected [1 2] after truncation, got %v", out)
	}
}

func TestNetwork_NonFiniteWeights(t *testing.T) {
	net, err := NewNetwork(1, []string{"a"}, []LayerSpec{{
		Weights: [][]float64{{math.Inf(1)}},
		Bias:    []float64{math.Inf(-1)},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := net.Predict([]float64{1}); err == nil {
		t.Error("expected error for non-finite output")
	}
}

func TestNewNetwork_Invalid(t *testing.T) {
	layer := func(out, in int, act Activation) LayerSpec {
		w := make([][]float64, out)
		for i := range w {
			w[i] = make([]float64, in)
		}
		return LayerSpec{Weights: w, Bias: make([]float64, out), Activation: act}
	}

	tests := []struct {
		name   string
		input  int
		labels []string
		layers []LayerSpec
	}{
		{"no labels", 2, nil, []LayerSpec{layer(1, 2, "")}},
		{"no layers", 2, []string{"a"}, nil},
		{"input mismatch", 3, []string{"a"}, []LayerSpec{layer(1, 2, "")}},
		{"chain mismatch", 2, []string{"a"}, []LayerSpec{layer(4, 2, ActivationReLU), layer(1, 3, "")}},
		{"output mismatch", 2, []string{"a", "b"}, []LayerSpec{layer(3, 2, "")}},
		{"bad activation", 2, []string{"a"}, []LayerSpec{layer(1, 2, "gelu")}},
		{"bias mismatch", 2, []string{"a"}, []LayerSpec{{Weights: [][]float64{{1, 1}}, Bias: []float64{0, 0}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewNetwork(tt.input, tt.labels, tt.layers); err == nil {
				t.Error("expected error")
			}
		})
	}
}

type fixedSource struct {
	urgency  *UrgencyBundle
	category *CategoryBundle
	err      error
	released int
}

func (s *fixedSource) Urgency(ctx context.Context) (*UrgencyBundle, func(), error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.urgency, func() { s.released++ }, nil
}

func (s *fixedSource) Category(ctx context.Context) (*CategoryBundle, func(), error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.category, func() { s.released++ }, nil
}

func TestClassifiers_ReleaseBundles(t *testing.T) {
	src := &fixedSource{urgency: fixtureUrgency(t), category: fixtureCategory(t)}
	tokens := textproc.Normalize("fire downtown need help")

	u, err := NewUrgencyClassifier(src).Classify(context.Background(), tokens)
	if err != nil || u.Label != "High" {
		t.Fatalf("urgency: %+v, %v", u, err)
	}
	c, err := NewCategoryClassifier(src).Classify(context.Background(), tokens)
	if err != nil || c.Label != "Fire" {
		t.Fatalf("category: %+v, %v", c, err)
	}
	if src.released != 2 {
		t.Errorf("expected 2 releases, got %d", src.released)
	}
}

func TestClassifiers_SourceError(t *testing.T) {
	src := &fixedSource{err: ErrArtifactNotFound}

	if _, err := NewUrgencyClassifier(src).Classify(context.Background(), nil); err == nil {
		t.Error("expected urgency error")
	}
	if _, err := NewCategoryClassifier(src).Classify(context.Background(), nil); err == nil {
		t.Error("expected category error")
	}
}
