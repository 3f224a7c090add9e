package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/mr1hm/go-lifeline/internal/textproc"
)

type Activation string

const (
	ActivationLinear  Activation = "linear"
	ActivationReLU    Activation = "relu"
	ActivationSigmoid Activation = "sigmoid"
	ActivationTanh    Activation = "tanh"
	ActivationSoftmax Activation = "softmax"
)

func (a Activation) valid() bool {
	switch a {
	case ActivationLinear, ActivationReLU, ActivationSigmoid, ActivationTanh, ActivationSoftmax:
		return true
	}
	return false
}

var ErrNonFiniteOutput = errors.New("network produced a non-finite output")

type denseLayer struct {
	weights    *mat.Dense    // out x in
	bias       *mat.VecDense // out
	activation Activation
}

// Network is a fixed feed-forward stack of dense layers. Forward passes are
// read-only and safe for concurrent use.
type Network struct {
	inputWidth int
	labels     []string
	layers     []denseLayer
}

// LayerSpec is one dense layer: weights laid out [out][in].
type LayerSpec struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation Activation  `json:"activation"`
}

type networkArtifact struct {
	InputSize int         `json:"input_size"`
	Labels    []string    `json:"labels"`
	Layers    []LayerSpec `json:"layers"`
}

// NewNetwork validates that layer widths chain from inputWidth to one output
// per label. inputWidth 0 takes the first layer's width.
func NewNetwork(inputWidth int, labels []string, specs []LayerSpec) (*Network, error) {
	if len(labels) == 0 {
		return nil, errors.New("network has no labels")
	}
	if len(specs) == 0 {
		return nil, errors.New("network has no layers")
	}

	n := &Network{labels: labels, layers: make([]denseLayer, 0, len(specs))}

	in := inputWidth
	for li, spec := range specs {
		out := len(spec.Weights)
		if out == 0 {
			return nil, fmt.Errorf("layer %d has no units", li)
		}
		width := len(spec.Weights[0])
		if li == 0 && in == 0 {
			in = width
		}
		if width != in || in == 0 {
			return nil, fmt.Errorf("layer %d expects %d inputs, previous width is %d", li, width, in)
		}
		if len(spec.Bias) != out {
			return nil, fmt.Errorf("layer %d has %d biases for %d units", li, len(spec.Bias), out)
		}

		act := spec.Activation
		if act == "" {
			act = ActivationLinear
		}
		if !act.valid() {
			return nil, fmt.Errorf("layer %d has unknown activation %q", li, act)
		}

		data := make([]float64, 0, out*in)
		for r, row := range spec.Weights {
			if len(row) != in {
				return nil, fmt.Errorf("layer %d row %d has %d weights, want %d", li, r, len(row), in)
			}
			data = append(data, row...)
		}

		n.layers = append(n.layers, denseLayer{
			weights:    mat.NewDense(out, in, data),
			bias:       mat.NewVecDense(out, append([]float64(nil), spec.Bias...)),
			activation: act,
		})
		in = out
	}

	if in != len(labels) {
		return nil, fmt.Errorf("network emits %d outputs for %d labels", in, len(labels))
	}
	if inputWidth == 0 {
		inputWidth = len(specs[0].Weights[0])
	}
	n.inputWidth = inputWidth

	return n, nil
}

func ParseNetwork(data []byte) (*Network, error) {
	var art networkArtifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("error decoding network: %w", err)
	}
	return NewNetwork(art.InputSize, art.Labels, art.Layers)
}

func (n *Network) InputWidth() int {
	return n.inputWidth
}

func (n *Network) Labels() []string {
	return n.labels
}

// Forward runs one inference. The input is fitted to the input width and
// scrubbed of non-finite values first.
func (n *Network) Forward(input []float64) ([]float64, error) {
	x := mat.NewVecDense(n.inputWidth, textproc.Sanitize(textproc.FitLength(input, n.inputWidth)))

	for _, l := range n.layers {
		rows, _ := l.weights.Dims()
		y := mat.NewVecDense(rows, nil)
		y.MulVec(l.weights, x)
		y.AddVec(y, l.bias)
		activate(y, l.activation)
		x = y
	}

	out := make([]float64, x.Len())
	for i := range out {
		v := x.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, ErrNonFiniteOutput
		}
		out[i] = v
	}
	return out, nil
}

// Predict runs Forward and maps the strongest output to its label.
func (n *Network) Predict(input []float64) (Prediction, error) {
	out, err := n.Forward(input)
	if err != nil {
		return Prediction{}, err
	}

	best := argmax(out)
	conf := out[best]
	if n.layers[len(n.layers)-1].activation != ActivationSoftmax {
		conf = softmaxAt(out, best)
	}
	return Prediction{Label: n.labels[best], Scores: out, Confidence: conf}, nil
}

func activate(v *mat.VecDense, a Activation) {
	switch a {
	case ActivationReLU:
		for i := 0; i < v.Len(); i++ {
			v.SetVec(i, math.Max(0, v.AtVec(i)))
		}
	case ActivationSigmoid:
		for i := 0; i < v.Len(); i++ {
			v.SetVec(i, 1/(1+math.Exp(-v.AtVec(i))))
		}
	case ActivationTanh:
		for i := 0; i < v.Len(); i++ {
			v.SetVec(i, math.Tanh(v.AtVec(i)))
		}
	case ActivationSoftmax:
		m := mat.Max(v)
		var sum float64
		for i := 0; i < v.Len(); i++ {
			e := math.Exp(v.AtVec(i) - m)
			v.SetVec(i, e)
			sum += e
		}
		v.ScaleVec(1/sum, v)
	}
}
