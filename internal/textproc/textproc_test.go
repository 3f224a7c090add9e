package textproc

import (
	"math"
	"slices"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"lowercases and splits", "Fire Downtown", []string{"fire", "downtown"}},
		{"strips punctuation", "HELP!!! we're trapped...", []string{"help", "we", "re", "trapped"}},
		{"drops urls", "see https://maps.example.com/x?y=1 and www.example.org now", []string{"see", "and", "now"}},
		{"drops digits", "3 people on floor 12", []string{"people", "on", "floor"}},
		{"collapses whitespace", "  flood \t\n here  ", []string{"flood", "here"}},
		{"blank", "   ", []string{}},
		{"empty", "", []string{}},
		{"only symbols", "!!! ??? 123", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			if got == nil {
				t.Fatal("expected non-nil slice")
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Fire downtown need help",
		"Building COLLAPSED at 5th & Main!!! http://x.y/z",
		"inondation près de la rivière",
		"",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(strings.Join(once, " "))
		if !slices.Equal(once, twice) {
			t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestBigrams(t *testing.T) {
	got := Bigrams([]string{"need", "help", "now"})
	want := []string{"need help", "help now"}
	if !slices.Equal(got, want) {
		t.Errorf("Bigrams = %q, want %q", got, want)
	}
	if Bigrams([]string{"one"}) != nil {
		t.Error("expected nil for a single token")
	}
}

func mustVocab(t *testing.T, index map[string]int, idf []float64) *Vocabulary {
	t.Helper()
	v, err := NewVocabulary(index, idf, 0)
	if err != nil {
		t.Fatalf("NewVocabulary: %v", err)
	}
	return v
}

func TestNewVocabulary_Size(t *testing.T) {
	v := mustVocab(t, map[string]int{"a": 0, "b": 7}, nil)
	if v.Size() != 8 {
		t.Errorf("expected size 8, got %d", v.Size())
	}

	v, err := NewVocabulary(map[string]int{"a": 0}, nil, 4)
	if err != nil {
		t.Fatal(err)
	}
	if v.Size() != 4 {
		t.Errorf("expected declared size 4, got %d", v.Size())
	}
}

func TestNewVocabulary_Invalid(t *testing.T) {
	if _, err := NewVocabulary(nil, nil, 0); err == nil {
		t.Error("expected error for empty vocabulary")
	}
	if _, err := NewVocabulary(map[string]int{"x": -1}, nil, 0); err == nil {
		t.Error("expected error for negative index")
	}
}

func TestNewVocabulary_IgnoresShortIDF(t *testing.T) {
	v := mustVocab(t, map[string]int{"a": 0, "b": 1}, []float64{2})
	if v.HasIDF() {
		t.Error("idf shorter than the feature space should be ignored")
	}
}

func TestParseVocabulary(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		size    int
		hasIDF  bool
		wantErr bool
	}{
		{"sklearn export", `{"vocabulary_": {"fire": 0, "help": 1}, "idf_": [1.5, 2.0]}`, 2, true, false},
		{"plain keys", `{"vocabulary": {"fire": 0, "help": 2}, "idf": [1, 1, 1]}`, 3, true, false},
		{"bare map", `{"fire": 0, "help": 1, "need help": 2}`, 3, false, false},
		{"malformed", `{"fire": "zero"}`, 0, false, true},
		{"empty", `{}`, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseVocabulary([]byte(tt.data))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v.Size() != tt.size {
				t.Errorf("expected size %d, got %d", tt.size, v.Size())
			}
			if v.HasIDF() != tt.hasIDF {
				t.Errorf("expected HasIDF %v", tt.hasIDF)
			}
		})
	}
}

func l2(vec []float64) float64 {
	var sum float64
	for _, x := range vec {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func TestDense_LengthAlwaysVocabularySize(t *testing.T) {
	v := mustVocab(t, map[string]int{"fire": 0, "help": 1, "flood": 9}, nil)
	for _, tokens := range [][]string{nil, {}, {"fire"}, {"zzz", "qqq"}, Normalize("fire fire help flood and more words")} {
		if got := len(v.Dense(tokens)); got != v.Size() {
			t.Errorf("len(Dense(%q)) = %d, want %d", tokens, got, v.Size())
		}
	}
}

func TestDense_OutOfVocabularyIsZero(t *testing.T) {
	v := mustVocab(t, map[string]int{"fire": 0, "help": 1}, nil)
	vec := v.Dense([]string{"banana", "kiwi"})
	for i, x := range vec {
		if x != 0 {
			t.Errorf("expected zero at %d, got %v", i, x)
		}
	}
}

func TestDense_Normalized(t *testing.T) {
	v := mustVocab(t, map[string]int{"fire": 0, "help": 1, "downtown": 2}, nil)
	vec := v.Dense([]string{"fire", "fire", "help", "unknown"})

	if math.Abs(l2(vec)-1) > 1e-9 {
		t.Errorf("expected unit norm, got %v", l2(vec))
	}
	if vec[0] <= vec[1] {
		t.Errorf("repeated token should weigh more: %v", vec)
	}
	if vec[2] != 0 {
		t.Errorf("absent token should be zero, got %v", vec[2])
	}
}

func TestDense_IDFWeighting(t *testing.T) {
	v := mustVocab(t, map[string]int{"fire": 0, "help": 1}, []float64{1, 3})
	vec := v.Dense([]string{"fire", "help"})

	if math.Abs(vec[1]/vec[0]-3) > 1e-9 {
		t.Errorf("expected idf ratio 3, got %v", vec[1]/vec[0])
	}
	if math.Abs(l2(vec)-1) > 1e-9 {
		t.Errorf("expected unit norm, got %v", l2(vec))
	}
}

func TestIndices(t *testing.T) {
	v := mustVocab(t, map[string]int{"fire": 4, "help": 1, "need help": 2, "fire fire": 7}, nil)

	got := v.Indices([]string{"fire", "need", "help", "fire", "help"}, true)
	want := []int{1, 2, 4}
	if !slices.Equal(got, want) {
		t.Errorf("Indices with bigrams = %v, want %v", got, want)
	}

	got = v.Indices([]string{"need", "help"}, false)
	if !slices.Equal(got, []int{1}) {
		t.Errorf("Indices without bigrams = %v, want [1]", got)
	}

	if got := v.Indices([]string{"nothing", "known"}, true); len(got) != 0 {
		t.Errorf("expected empty set, got %v", got)
	}
}

func TestFitLength(t *testing.T) {
	src := []float64{1, 2, 3}

	if got := FitLength(src, 5); !slices.Equal(got, []float64{1, 2, 3, 0, 0}) {
		t.Errorf("pad: got %v", got)
	}
	if got := FitLength(src, 2); !slices.Equal(got, []float64{1, 2}) {
		t.Errorf("truncate: got %v", got)
	}

	got := FitLength(src, 3)
	got[0] = 99
	if src[0] != 1 {
		t.Error("FitLength must not alias its input")
	}
}

func TestSanitize(t *testing.T) {
	got := Sanitize([]float64{math.NaN(), 1, math.Inf(1), math.Inf(-1)})
	if !slices.Equal(got, []float64{0, 1, 0, 0}) {
		t.Errorf("Sanitize = %v", got)
	}
}
