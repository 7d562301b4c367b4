package nn

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/micmon/errdefs"
)

// Optimizer names accepted in OptimizerSpec.
const (
	SGD  = "sgd"
	Adam = "adam"
)

// OptimizerSpec selects and tunes the weight update rule. Zero values take
// the usual defaults (learning rate 0.01 for sgd, 0.001 for adam).
type OptimizerSpec struct {
	Name         string  `msgpack:"name" json:"name"`
	LearningRate float64 `msgpack:"learning_rate" json:"learning_rate"`
	Beta1        float64 `msgpack:"beta1" json:"beta1,omitempty"`
	Beta2        float64 `msgpack:"beta2" json:"beta2,omitempty"`
	Epsilon      float64 `msgpack:"epsilon" json:"epsilon,omitempty"`
}

func (s OptimizerSpec) withDefaults() (OptimizerSpec, error) {
	switch s.Name {
	case "", Adam:
		s.Name = Adam
		if s.LearningRate == 0 {
			s.LearningRate = 0.001
		}
		if s.Beta1 == 0 {
			s.Beta1 = 0.9
		}
		if s.Beta2 == 0 {
			s.Beta2 = 0.999
		}
		if s.Epsilon == 0 {
			s.Epsilon = 1e-7
		}
	case SGD:
		if s.LearningRate == 0 {
			s.LearningRate = 0.01
		}
	default:
		return s, errdefs.Configuration("nn.Optimizer", fmt.Sprintf("unknown optimizer %q", s.Name), nil)
	}
	if s.LearningRate < 0 {
		return s, errdefs.Configuration("nn.Optimizer", fmt.Sprintf("negative learning rate %v", s.LearningRate), nil)
	}
	return s, nil
}

// param is one trainable tensor flattened to a slice, with its gradient.
type param struct {
	value []float64
	grad  []float64
}

type optimizer interface {
	step(params []param)
}

func newOptimizer(spec OptimizerSpec) optimizer {
	if spec.Name == SGD {
		return &sgd{lr: spec.LearningRate}
	}
	return &adam{spec: spec}
}

type sgd struct {
	lr float64
}

func (o *sgd) step(params []param) {
	for _, p := range params {
		for i, g := range p.grad {
			p.value[i] -= o.lr * g
		}
	}
}

type adam struct {
	spec OptimizerSpec
	t    int
	m, v [][]float64
}

func (o *adam) step(params []param) {
	if o.m == nil {
		o.m = make([][]float64, len(params))
		o.v = make([][]float64, len(params))
		for i, p := range params {
			o.m[i] = make([]float64, len(p.value))
			o.v[i] = make([]float64, len(p.value))
		}
	}
	o.t++

	b1, b2 := o.spec.Beta1, o.spec.Beta2
	lr := o.spec.LearningRate * math.Sqrt(1-math.Pow(b2, float64(o.t))) / (1 - math.Pow(b1, float64(o.t)))

	for k, p := range params {
		m, v := o.m[k], o.v[k]
		for i, g := range p.grad {
			m[i] = b1*m[i] + (1-b1)*g
			v[i] = b2*v[i] + (1-b2)*g*g
			p.value[i] -= lr * m[i] / (math.Sqrt(v[i]) + o.spec.Epsilon)
		}
	}
}
