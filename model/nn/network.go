// Package nn is a small dense feed-forward network trained with
// mini-batch gradient descent on gonum matrices.
package nn

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/RyanBlaney/micmon/algorithms/common"
	"github.com/RyanBlaney/micmon/errdefs"
)

// LayerSpec describes one layer. The first spec must be an input layer,
// which only sets the feature width.
type LayerSpec struct {
	Units      int    `msgpack:"units" json:"units"`
	Activation string `msgpack:"activation" json:"activation,omitempty"`
	Input      bool   `msgpack:"input" json:"input,omitempty"`
}

// InputLayer declares the feature width.
func InputLayer(units int) LayerSpec {
	return LayerSpec{Units: units, Input: true}
}

// DenseLayer is a fully connected layer.
func DenseLayer(units int, activation string) LayerSpec {
	return LayerSpec{Units: units, Activation: activation}
}

// LossSpec configures sparse categorical cross-entropy. With FromLogits the
// network output is passed through softmax before the loss.
type LossSpec struct {
	FromLogits bool `msgpack:"from_logits" json:"from_logits"`
}

// Config is everything needed to build and train a network.
type Config struct {
	Layers    []LayerSpec   `msgpack:"layers"`
	Optimizer OptimizerSpec `msgpack:"optimizer"`
	Loss      LossSpec      `msgpack:"loss"`
	BatchSize int           `msgpack:"batch_size"`
	Seed      uint64        `msgpack:"seed"`
}

const (
	defaultBatchSize = 32
	probEpsilon      = 1e-7
)

// Metrics summarizes a pass over a data set.
type Metrics struct {
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
	Samples  int     `json:"samples"`
}

func (m Metrics) String() string {
	return fmt.Sprintf("loss=%.4f accuracy=%.4f samples=%d", m.Loss, m.Accuracy, m.Samples)
}

type dense struct {
	weights    *mat.Dense // in x out
	bias       []float64
	activation string
}

// Network is a compiled dense network. It is not safe for concurrent use.
type Network struct {
	config    Config
	layers    []*dense
	optimizer optimizer
	rng       *rand.Rand
}

// New validates cfg and builds a network with Glorot-uniform weights and zero biases.
func New(cfg Config) (*Network, error) {
	if len(cfg.Layers) < 2 {
		return nil, errdefs.Configuration("nn.New", "need an input layer and at least one dense layer", nil)
	}
	cfg.Layers = slices.Clone(cfg.Layers)
	if !cfg.Layers[0].Input {
		return nil, errdefs.Configuration("nn.New", "first layer must be an input layer", nil)
	}
	for i, spec := range cfg.Layers {
		if spec.Units < 1 {
			return nil, errdefs.Configuration("nn.New", fmt.Sprintf("layer %d has %d units", i, spec.Units), nil)
		}
		if i == 0 {
			continue
		}
		if spec.Input {
			return nil, errdefs.Configuration("nn.New", fmt.Sprintf("layer %d: input layer must come first", i), nil)
		}
		if spec.Activation == "" {
			cfg.Layers[i].Activation = Linear
		} else if !validActivation(spec.Activation) {
			return nil, errdefs.Configuration("nn.New", fmt.Sprintf("layer %d: unknown activation %q", i, spec.Activation), nil)
		}
	}

	spec, err := cfg.Optimizer.withDefaults()
	if err != nil {
		return nil, err
	}
	cfg.Optimizer = spec
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	n := &Network{
		config:    cfg,
		optimizer: newOptimizer(cfg.Optimizer),
		rng:       rand.New(rand.NewPCG(seed, seed>>1|1)),
	}

	for i := 1; i < len(cfg.Layers); i++ {
		in, out := cfg.Layers[i-1].Units, cfg.Layers[i].Units
		limit := math.Sqrt(6 / float64(in+out))
		data := make([]float64, in*out)
		for k := range data {
			data[k] = (2*n.rng.Float64() - 1) * limit
		}
		n.layers = append(n.layers, &dense{
			weights:    mat.NewDense(in, out, data),
			bias:       make([]float64, out),
			activation: cfg.Layers[i].Activation,
		})
	}
	return n, nil
}

// Config returns the configuration with defaults filled in.
func (n *Network) Config() Config {
	return n.config
}

// InputSize is the expected feature width.
func (n *Network) InputSize() int {
	return n.config.Layers[0].Units
}

// OutputSize is the number of classes.
func (n *Network) OutputSize() int {
	return n.config.Layers[len(n.config.Layers)-1].Units
}

// forward runs a batch through the network. It returns the input and
// pre-activation of every layer plus the final output.
func (n *Network) forward(x *mat.Dense) (inputs, zs []*mat.Dense, out *mat.Dense) {
	a := x
	for _, l := range n.layers {
		var z mat.Dense
		z.Mul(a, l.weights)
		rows, _ := z.Dims()
		for i := range rows {
			floats.Add(z.RawRowView(i), l.bias)
		}
		inputs = append(inputs, a)
		zs = append(zs, &z)
		a = activate(l.activation, &z)
	}
	return inputs, zs, a
}

// lossAndGrad returns the summed loss, correct predictions, and dL/dout
// averaged over the batch.
func (n *Network) lossAndGrad(out *mat.Dense, y []int) (loss float64, correct int, grad *mat.Dense) {
	rows, cols := out.Dims()
	grad = mat.NewDense(rows, cols, nil)
	scale := 1 / float64(rows)

	for i := range rows {
		probs := make([]float64, cols)
		copy(probs, out.RawRowView(i))
		if n.config.Loss.FromLogits {
			softmaxInPlace(probs)
		}
		if common.ArgMax(probs) == y[i] {
			correct++
		}

		g := grad.RawRowView(i)
		if n.config.Loss.FromLogits {
			loss -= math.Log(math.Max(probs[y[i]], probEpsilon))
			copy(g, probs)
			g[y[i]] -= 1
			floats.Scale(scale, g)
			continue
		}

		p := math.Min(math.Max(probs[y[i]], probEpsilon), 1-probEpsilon)
		loss -= math.Log(p)
		g[y[i]] = -scale / p
	}
	return loss, correct, grad
}

func (n *Network) backward(inputs, zs []*mat.Dense, out, grad *mat.Dense) []param {
	params := make([]param, 0, 2*len(n.layers))
	delta := grad
	a := out

	for k := len(n.layers) - 1; k >= 0; k-- {
		l := n.layers[k]
		delta = activationGrad(l.activation, zs[k], a, delta)

		var dw mat.Dense
		dw.Mul(inputs[k].T(), delta)

		_, cols := delta.Dims()
		db := make([]float64, cols)
		for j := range cols {
			db[j] = mat.Sum(delta.ColView(j))
		}

		params = append(params,
			param{value: l.weights.RawMatrix().Data, grad: dw.RawMatrix().Data},
			param{value: l.bias, grad: db},
		)

		if k > 0 {
			var prev mat.Dense
			prev.Mul(delta, l.weights.T())
			delta = &prev
			a = inputs[k]
		}
	}
	return params
}

func (n *Network) batch(x [][]float64, y []int, idx []int) (*mat.Dense, []int) {
	width := n.InputSize()
	bx := mat.NewDense(len(idx), width, nil)
	var by []int
	if y != nil {
		by = make([]int, len(idx))
	}
	for i, j := range idx {
		bx.SetRow(i, x[j])
		if y != nil {
			by[i] = y[j]
		}
	}
	return bx, by
}

// check validates widths and, when labeled, that every row has an in-range class.
func (n *Network) check(op string, x [][]float64, y []int, labeled bool) error {
	if labeled && len(x) != len(y) {
		return errdefs.DataIntegrity(op, fmt.Sprintf("%d samples but %d classes", len(x), len(y)), nil)
	}
	for i, row := range x {
		if len(row) != n.InputSize() {
			return errdefs.DataIntegrity(op,
				fmt.Sprintf("sample %d has %d features, want %d", i, len(row), n.InputSize()), nil)
		}
	}
	for i, c := range y {
		if c < 0 || c >= n.OutputSize() {
			return errdefs.DataIntegrity(op,
				fmt.Sprintf("class %d of sample %d is out of range [0, %d)", c, i, n.OutputSize()), nil)
		}
	}
	return nil
}

// Fit runs one epoch of shuffled mini-batch training and returns the
// running loss and accuracy seen during the epoch.
func (n *Network) Fit(x [][]float64, y []int) (Metrics, error) {
	if err := n.check("nn.Fit", x, y, true); err != nil {
		return Metrics{}, err
	}

	order := n.rng.Perm(len(x))
	var total float64
	var correct int

	for start := 0; start < len(order); start += n.config.BatchSize {
		idx := order[start:min(start+n.config.BatchSize, len(order))]
		bx, by := n.batch(x, y, idx)

		inputs, zs, out := n.forward(bx)
		loss, ok, grad := n.lossAndGrad(out, by)
		total += loss
		correct += ok

		n.optimizer.step(n.backward(inputs, zs, out, grad))
	}

	return summarize(total, correct, len(x)), nil
}

// Evaluate computes loss and accuracy without updating weights.
func (n *Network) Evaluate(x [][]float64, y []int) (Metrics, error) {
	if err := n.check("nn.Evaluate", x, y, true); err != nil {
		return Metrics{}, err
	}

	var total float64
	var correct int
	for start := 0; start < len(x); start += n.config.BatchSize {
		idx := make([]int, 0, n.config.BatchSize)
		for i := start; i < min(start+n.config.BatchSize, len(x)); i++ {
			idx = append(idx, i)
		}
		bx, by := n.batch(x, y, idx)

		_, _, out := n.forward(bx)
		loss, ok, _ := n.lossAndGrad(out, by)
		total += loss
		correct += ok
	}

	return summarize(total, correct, len(x)), nil
}

// Predict returns the network output for every row.
func (n *Network) Predict(x [][]float64) ([][]float64, error) {
	if err := n.check("nn.Predict", x, nil, false); err != nil {
		return nil, err
	}
	if len(x) == 0 {
		return nil, nil
	}

	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	bx, _ := n.batch(x, nil, idx)
	_, _, out := n.forward(bx)

	rows, cols := out.Dims()
	result := make([][]float64, rows)
	for i := range rows {
		result[i] = make([]float64, cols)
		copy(result[i], out.RawRowView(i))
	}
	return result, nil
}

func summarize(loss float64, correct, samples int) Metrics {
	if samples == 0 {
		return Metrics{}
	}
	return Metrics{
		Loss:     loss / float64(samples),
		Accuracy: float64(correct) / float64(samples),
		Samples:  samples,
	}
}
