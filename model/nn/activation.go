package nn

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Activation names accepted in LayerSpec.
const (
	ReLU    = "relu"
	Sigmoid = "sigmoid"
	Tanh    = "tanh"
	Linear  = "linear"
	Softmax = "softmax"
)

func validActivation(name string) bool {
	switch name {
	case ReLU, Sigmoid, Tanh, Linear, Softmax:
		return true
	}
	return false
}

// activate applies the named activation to z row by row.
func activate(name string, z *mat.Dense) *mat.Dense {
	var a mat.Dense
	a.CloneFrom(z)

	switch name {
	case ReLU:
		a.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, &a)
	case Sigmoid:
		a.Apply(func(_, _ int, v float64) float64 { return 1 / (1 + math.Exp(-v)) }, &a)
	case Tanh:
		a.Apply(func(_, _ int, v float64) float64 { return math.Tanh(v) }, &a)
	case Softmax:
		rows, _ := a.Dims()
		for i := range rows {
			softmaxInPlace(a.RawRowView(i))
		}
	}
	return &a
}

// activationGrad maps dL/da to dL/dz for the named activation.
func activationGrad(name string, z, a, grad *mat.Dense) *mat.Dense {
	var dz mat.Dense
	dz.CloneFrom(grad)

	switch name {
	case ReLU:
		dz.Apply(func(i, j int, g float64) float64 {
			if z.At(i, j) > 0 {
				return g
			}
			return 0
		}, &dz)
	case Sigmoid:
		dz.Apply(func(i, j int, g float64) float64 {
			s := a.At(i, j)
			return g * s * (1 - s)
		}, &dz)
	case Tanh:
		dz.Apply(func(i, j int, g float64) float64 {
			t := a.At(i, j)
			return g * (1 - t*t)
		}, &dz)
	case Softmax:
		// Jacobian-vector product per row: a * (g - <g, a>)
		rows, _ := dz.Dims()
		for i := range rows {
			row := dz.RawRowView(i)
			probs := a.RawRowView(i)
			dot := floats.Dot(row, probs)
			for j := range row {
				row[j] = probs[j] * (row[j] - dot)
			}
		}
	}
	return &dz
}

func softmaxInPlace(row []float64) {
	m := floats.Max(row)
	var sum float64
	for j, v := range row {
		row[j] = math.Exp(v - m)
		sum += row[j]
	}
	floats.Scale(1/sum, row)
}
