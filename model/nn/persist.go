package nn

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"

	"github.com/RyanBlaney/micmon/errdefs"
)

const snapshotVersion = 1

type layerSnapshot struct {
	Rows    int       `msgpack:"rows"`
	Cols    int       `msgpack:"cols"`
	Weights []float64 `msgpack:"weights"`
	Bias    []float64 `msgpack:"bias"`
}

type snapshot struct {
	Version int             `msgpack:"version"`
	Config  Config          `msgpack:"config"`
	Layers  []layerSnapshot `msgpack:"layers"`
}

// Save writes the configuration and weights as msgpack. Optimizer state is
// not kept; a loaded network resumes training with fresh moments.
func (n *Network) Save(w io.Writer) error {
	snap := snapshot{
		Version: snapshotVersion,
		Config:  n.config,
	}
	for _, l := range n.layers {
		rows, cols := l.weights.Dims()
		snap.Layers = append(snap.Layers, layerSnapshot{
			Rows:    rows,
			Cols:    cols,
			Weights: l.weights.RawMatrix().Data,
			Bias:    l.bias,
		})
	}
	return msgpack.NewEncoder(w).Encode(&snap)
}

// Load restores a network written by Save.
func Load(r io.Reader) (*Network, error) {
	var snap snapshot
	if err := msgpack.NewDecoder(r).Decode(&snap); err != nil {
		return nil, errdefs.DataIntegrity("nn.Load", "cannot decode model", err)
	}
	if snap.Version != snapshotVersion {
		return nil, errdefs.DataIntegrity("nn.Load", fmt.Sprintf("unsupported model version %d", snap.Version), nil)
	}

	n, err := New(snap.Config)
	if err != nil {
		return nil, err
	}
	if len(snap.Layers) != len(n.layers) {
		return nil, errdefs.DataIntegrity("nn.Load",
			fmt.Sprintf("model has %d weight layers, config wants %d", len(snap.Layers), len(n.layers)), nil)
	}

	for i, ls := range snap.Layers {
		rows, cols := n.layers[i].weights.Dims()
		if ls.Rows != rows || ls.Cols != cols || len(ls.Weights) != rows*cols || len(ls.Bias) != cols {
			return nil, errdefs.DataIntegrity("nn.Load", fmt.Sprintf("layer %d has inconsistent shape", i), nil)
		}
		n.layers[i].weights = mat.NewDense(rows, cols, ls.Weights)
		n.layers[i].bias = ls.Bias
	}

	return n, nil
}
