// Package model wraps a trainable network with the label names and frequency
// cutoffs it was trained with, so predictions come back as labels.
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"

	"github.com/RyanBlaney/micmon/algorithms/common"
	"github.com/RyanBlaney/micmon/dataset"
	"github.com/RyanBlaney/micmon/errdefs"
	"github.com/RyanBlaney/micmon/logging"
	"github.com/RyanBlaney/micmon/model/nn"
	"github.com/RyanBlaney/micmon/segment"
	"github.com/RyanBlaney/micmon/storage"
)

// Bundle file names inside a model location.
const (
	ModelFileName  = "model.msgpack"
	LabelsFileName = "labels.json"
	FreqFileName   = "freq.json"
)

// Model is the trainable engine behind a Classifier. *nn.Network implements it.
type Model interface {
	Fit(x [][]float64, y []int) (nn.Metrics, error)
	Evaluate(x [][]float64, y []int) (nn.Metrics, error)
	Predict(x [][]float64) ([][]float64, error)
	InputSize() int
	Save(w io.Writer) error
}

// State tracks where a classifier is in its lifecycle. The zero value is
// Uninitialized; New and Load never return a classifier in that state.
type State int

const (
	Uninitialized State = iota
	Compiled
	Trained
	Persisted
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Compiled:
		return "compiled"
	case Trained:
		return "trained"
	case Persisted:
		return "persisted"
	default:
		return "unknown"
	}
}

// Options builds a Classifier. Exactly one of Layers or Model must be set.
type Options struct {
	// Layers compiles a new network with Optimizer, Loss and Metrics.
	Layers    []nn.LayerSpec
	Optimizer nn.OptimizerSpec
	Loss      nn.LossSpec
	Metrics   []string // only "accuracy" is supported
	BatchSize int
	Seed      uint64

	// Model wraps an existing engine, as Load does.
	Model Model

	// Labels maps class indices to names. Empty means predictions carry
	// only the index.
	Labels []string
	// Cutoff is the frequency band spectra are cropped to. The zero value
	// means segment.DefaultLowFreq and segment.DefaultHighFreq.
	Cutoff [2]int
}

// Classifier predicts labels for audio segments.
type Classifier struct {
	model  Model
	labels []string
	cutoff [2]int
	state  State
	logger logging.Logger
}

// Prediction is the outcome for one segment.
type Prediction struct {
	Index         int
	Label         string // empty when the classifier has no label names
	Probabilities []float64
}

// String returns the label, or the index when there is no label.
func (p Prediction) String() string {
	if p.Label != "" {
		return p.Label
	}
	return strconv.Itoa(p.Index)
}

// New compiles or wraps a model.
func New(opts Options) (*Classifier, error) {
	hasLayers, hasModel := len(opts.Layers) > 0, opts.Model != nil
	if hasLayers == hasModel {
		return nil, errdefs.Configuration("model.New", "exactly one of layers or model must be given", nil)
	}
	for _, m := range opts.Metrics {
		if m != "accuracy" {
			return nil, errdefs.Configuration("model.New", fmt.Sprintf("unsupported metric %q", m), nil)
		}
	}

	cutoff := opts.Cutoff
	if cutoff == [2]int{} {
		cutoff = [2]int{segment.DefaultLowFreq, segment.DefaultHighFreq}
	}
	if cutoff[0] < 0 || cutoff[1] <= cutoff[0] {
		return nil, errdefs.Configuration("model.New", fmt.Sprintf("invalid cutoff frequencies %v", cutoff), nil)
	}

	m := opts.Model
	if hasLayers {
		network, err := nn.New(nn.Config{
			Layers:    opts.Layers,
			Optimizer: opts.Optimizer,
			Loss:      opts.Loss,
			BatchSize: opts.BatchSize,
			Seed:      opts.Seed,
		})
		if err != nil {
			return nil, err
		}
		m = network
	}

	return &Classifier{
		model:  m,
		labels: opts.Labels,
		cutoff: cutoff,
		state:  Compiled,
		logger: logging.WithFields(logging.Fields{
			"component": "classifier",
		}),
	}, nil
}

// Labels returns the label names, or nil.
func (c *Classifier) Labels() []string { return c.labels }

// Cutoff returns the frequency band used for prediction.
func (c *Classifier) Cutoff() (low, high int) { return c.cutoff[0], c.cutoff[1] }

// State returns the lifecycle state.
func (c *Classifier) State() State { return c.state }

// Fit runs one training pass over the dataset's training partition.
func (c *Classifier) Fit(d *dataset.Dataset) (nn.Metrics, error) {
	m, err := c.model.Fit(d.TrainSamples(), d.TrainClasses())
	if err != nil {
		return m, err
	}
	c.state = Trained
	c.logger.Debug("Training pass complete", logging.Fields{
		"loss":     m.Loss,
		"accuracy": m.Accuracy,
		"samples":  m.Samples,
	})
	return m, nil
}

// Evaluate scores the model on the dataset's validation partition.
func (c *Classifier) Evaluate(d *dataset.Dataset) (nn.Metrics, error) {
	return c.model.Evaluate(d.ValidationSamples(), d.ValidationClasses())
}

// Predict classifies seg using the classifier's own cutoffs. The bin count
// is the model's input width.
func (c *Classifier) Predict(seg *segment.Segment) (Prediction, error) {
	spectrum := seg.Spectrum(c.cutoff[0], c.cutoff[1], c.model.InputSize())

	out, err := c.model.Predict([][]float64{spectrum})
	if err != nil {
		return Prediction{}, err
	}
	if len(out) != 1 {
		return Prediction{}, errdefs.DataIntegrity("model.Predict", fmt.Sprintf("model returned %d rows", len(out)), nil)
	}

	p := Prediction{Index: common.ArgMax(out[0]), Probabilities: out[0]}
	if len(c.labels) > 0 {
		if p.Index >= len(c.labels) {
			return p, errdefs.DataIntegrity("model.Predict",
				fmt.Sprintf("class %d has no label among %d names", p.Index, len(c.labels)), nil)
		}
		p.Label = c.labels[p.Index]
	}
	return p, nil
}

// Save writes the model and its sidecars to store.
func (c *Classifier) Save(ctx context.Context, store storage.FileStore) error {
	if err := writeFile(ctx, store, ModelFileName, c.model.Save); err != nil {
		return err
	}
	if len(c.labels) > 0 {
		if err := writeJSON(ctx, store, LabelsFileName, c.labels); err != nil {
			return err
		}
	} else if err := store.Delete(ctx, LabelsFileName); err != nil {
		// a stale sidecar would attach old names to the new model
		return errdefs.Resource("model.Save", "cannot remove "+LabelsFileName, err)
	}
	if err := writeJSON(ctx, store, FreqFileName, c.cutoff[:]); err != nil {
		return err
	}

	c.state = Persisted
	return nil
}

// Load restores a classifier from store. Missing sidecars fall back to raw
// indices and the default cutoffs.
func Load(ctx context.Context, store storage.FileStore) (*Classifier, error) {
	r, err := store.Read(ctx, ModelFileName)
	if err != nil {
		return nil, errdefs.Resource("model.Load", "cannot open "+ModelFileName, err)
	}
	network, err := nn.Load(r)
	r.Close()
	if err != nil {
		return nil, err
	}

	var labels []string
	if err := readJSON(ctx, store, LabelsFileName, &labels); err != nil {
		return nil, err
	}

	var freq []int
	if err := readJSON(ctx, store, FreqFileName, &freq); err != nil {
		return nil, err
	}
	var cutoff [2]int
	switch len(freq) {
	case 0:
	case 2:
		cutoff = [2]int{freq[0], freq[1]}
	default:
		return nil, errdefs.Configuration("model.Load", fmt.Sprintf("%s must hold two values, got %d", FreqFileName, len(freq)), nil)
	}

	c, err := New(Options{Model: network, Labels: labels, Cutoff: cutoff})
	if err != nil {
		return nil, err
	}
	c.state = Persisted
	return c, nil
}

func writeFile(ctx context.Context, store storage.FileStore, name string, encode func(io.Writer) error) error {
	w, err := store.Write(ctx, name)
	if err != nil {
		return errdefs.Resource("model.Save", "cannot create "+name, err)
	}
	err = encode(w)
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errdefs.Resource("model.Save", "cannot write "+name, err)
	}
	return nil
}

func writeJSON(ctx context.Context, store storage.FileStore, name string, v any) error {
	return writeFile(ctx, store, name, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(v)
	})
}

// readJSON decodes name into v. A missing file leaves v untouched.
func readJSON(ctx context.Context, store storage.FileStore, name string, v any) error {
	r, err := store.Read(ctx, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errdefs.Resource("model.Load", "cannot open "+name, err)
	}
	defer r.Close()

	if err := json.NewDecoder(r).Decode(v); err != nil {
		return errdefs.Configuration("model.Load", "malformed "+name, err)
	}
	return nil
}
