// Package dataset accumulates labeled spectra into npz archives and loads
// them back as shuffled train/validation splits.
package dataset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"path"
	"slices"
	"strings"

	"github.com/RyanBlaney/micmon/errdefs"
	"github.com/RyanBlaney/micmon/segment"
	"github.com/RyanBlaney/micmon/storage"
)

// Options configures a Dataset.
type Options struct {
	// ValidationSplit is the fraction of rows held out for validation, in [0, 1).
	ValidationSplit float64
	// Rand drives shuffling. nil uses a randomly seeded source.
	Rand *rand.Rand
}

// Dataset is a set of spectra with their label indices, split into training
// and validation partitions by the most recent Shuffle.
type Dataset struct {
	samples  [][]float64
	classes  []int
	labels   []int
	lowFreq  int
	highFreq int
	split    float64
	rng      *rand.Rand

	pivot int
}

// New builds a dataset and shuffles it once.
func New(samples [][]float64, classes []int, lowFreq, highFreq int, opts Options) (*Dataset, error) {
	if len(samples) != len(classes) {
		return nil, errdefs.DataIntegrity("dataset.New",
			fmt.Sprintf("%d samples but %d classes", len(samples), len(classes)), nil)
	}
	if opts.ValidationSplit < 0 || opts.ValidationSplit >= 1 || math.IsNaN(opts.ValidationSplit) {
		return nil, errdefs.Configuration("dataset.New",
			fmt.Sprintf("validation split must be in [0, 1): %v", opts.ValidationSplit), nil)
	}
	for i, c := range classes {
		if c < 0 {
			return nil, errdefs.DataIntegrity("dataset.New", fmt.Sprintf("row %d has negative class %d", i, c), nil)
		}
	}

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	labels := slices.Clone(classes)
	slices.Sort(labels)

	d := &Dataset{
		samples:  slices.Clone(samples),
		classes:  slices.Clone(classes),
		labels:   slices.Compact(labels),
		lowFreq:  lowFreq,
		highFreq: highFreq,
		split:    opts.ValidationSplit,
		rng:      rng,
	}
	d.Shuffle()
	return d, nil
}

// Shuffle applies a fresh random permutation to samples and classes together
// and recomputes both partitions at pivot = N - floor(split * N).
func (d *Dataset) Shuffle() {
	n := len(d.samples)
	perm := d.rng.Perm(n)

	samples := make([][]float64, n)
	classes := make([]int, n)
	for i, j := range perm {
		samples[i] = d.samples[j]
		classes[i] = d.classes[j]
	}
	d.samples = samples
	d.classes = classes
	d.pivot = n - int(math.Floor(d.split*float64(n)))
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.samples) }

// Bins returns the feature vector length, or 0 for an empty dataset.
func (d *Dataset) Bins() int {
	if len(d.samples) == 0 {
		return 0
	}
	return len(d.samples[0])
}

// Samples returns all rows in the current shuffled order.
func (d *Dataset) Samples() [][]float64 { return d.samples }

// Classes returns all label indices in the current shuffled order.
func (d *Dataset) Classes() []int { return d.classes }

// Labels returns the sorted unique label indices.
func (d *Dataset) Labels() []int { return d.labels }

// Cutoff returns the low and high frequency index the spectra were cropped to.
func (d *Dataset) Cutoff() (low, high int) { return d.lowFreq, d.highFreq }

// ValidationSplit returns the held-out fraction.
func (d *Dataset) ValidationSplit() float64 { return d.split }

// TrainSamples returns rows [0, pivot) of the last shuffle.
func (d *Dataset) TrainSamples() [][]float64 { return d.samples[:d.pivot] }

// TrainClasses returns the classes of TrainSamples.
func (d *Dataset) TrainClasses() []int { return d.classes[:d.pivot] }

// ValidationSamples returns rows [pivot, N) of the last shuffle.
func (d *Dataset) ValidationSamples() [][]float64 { return d.samples[d.pivot:] }

// ValidationClasses returns the classes of ValidationSamples.
func (d *Dataset) ValidationClasses() []int { return d.classes[d.pivot:] }

// Load reads one archive from store.
func Load(ctx context.Context, store storage.FileStore, name string, opts Options) (*Dataset, error) {
	r, err := store.Read(ctx, name)
	if err != nil {
		return nil, errdefs.Resource("dataset.Load", "cannot open "+name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errdefs.Resource("dataset.Load", "cannot read "+name, err)
	}

	a, err := ReadArchive(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return New(a.Samples, a.Classes, a.Cutoff[0], a.Cutoff[1], opts)
}

// Scan loads every archive at the top level of store, in name order.
func Scan(ctx context.Context, store storage.FileStore, opts Options) ([]*Dataset, error) {
	names, err := store.List(ctx, "")
	if err != nil {
		return nil, errdefs.Resource("dataset.Scan", "cannot list datasets", err)
	}

	var datasets []*Dataset
	for _, name := range names {
		if strings.Contains(name, "/") || path.Ext(name) != ArchiveExt {
			continue
		}
		d, err := Load(ctx, store, name, opts)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, d)
	}
	return datasets, nil
}

// Writer accumulates segment spectra and labels until Flush writes them out.
type Writer struct {
	store    storage.FileStore
	name     string
	lowFreq  int
	highFreq int
	bins     int

	samples [][]float64
	classes []int
}

// NewWriter creates a writer for the archive name in store. Spectra are
// extracted with the given cutoffs and bin count.
func NewWriter(store storage.FileStore, name string, lowFreq, highFreq, bins int) (*Writer, error) {
	if bins < 1 {
		return nil, errdefs.Configuration("dataset.NewWriter", fmt.Sprintf("bins must be at least 1: %d", bins), nil)
	}
	if lowFreq < 0 || highFreq <= lowFreq {
		return nil, errdefs.Configuration("dataset.NewWriter",
			fmt.Sprintf("invalid frequency band [%d, %d)", lowFreq, highFreq), nil)
	}
	return &Writer{
		store:    store,
		name:     name,
		lowFreq:  lowFreq,
		highFreq: highFreq,
		bins:     bins,
	}, nil
}

// Add appends the spectrum and label of seg. Unlabeled segments are rejected.
func (w *Writer) Add(seg *segment.Segment) error {
	label, ok := seg.Label()
	if !ok {
		return errdefs.DataIntegrity("dataset.Add", "segment has no label", nil)
	}
	w.samples = append(w.samples, seg.Spectrum(w.lowFreq, w.highFreq, w.bins))
	w.classes = append(w.classes, label)
	return nil
}

// Len returns the number of buffered rows.
func (w *Writer) Len() int { return len(w.samples) }

// Flush writes the buffered rows to the archive, replacing any previous
// content, and clears the buffer. Flushing an empty buffer writes an empty
// archive. The archive is encoded before the store is touched, so a rejected
// flush leaves the previous archive intact.
func (w *Writer) Flush(ctx context.Context) error {
	var buf bytes.Buffer
	err := WriteArchive(&buf, &Archive{
		Samples: w.samples,
		Classes: w.classes,
		Cutoff:  [2]int{w.lowFreq, w.highFreq},
	})
	if err != nil {
		return err
	}

	out, err := w.store.Write(ctx, w.name)
	if err != nil {
		return errdefs.Resource("dataset.Flush", "cannot create "+w.name, err)
	}
	_, err = buf.WriteTo(out)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errdefs.Resource("dataset.Flush", "cannot write "+w.name, err)
	}

	w.samples = nil
	w.classes = nil
	return nil
}
