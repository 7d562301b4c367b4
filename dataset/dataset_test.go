package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/sbinet/npyio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/micmon/errdefs"
	"github.com/RyanBlaney/micmon/segment"
	"github.com/RyanBlaney/micmon/storage"
)

func seeded() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func indexedRows(n int) ([][]float64, []int) {
	samples := make([][]float64, n)
	classes := make([]int, n)
	for i := range n {
		classes[i] = i % 3
		samples[i] = []float64{float64(i), float64(i % 3)}
	}
	return samples, classes
}

func TestShufflePartition(t *testing.T) {
	for _, n := range []int{0, 1, 7, 10, 33} {
		for _, split := range []float64{0, 0.3, 0.5, 0.99} {
			t.Run(fmt.Sprintf("n=%d/split=%v", n, split), func(t *testing.T) {
				samples, classes := indexedRows(n)
				d, err := New(samples, classes, 20, 20000, Options{ValidationSplit: split, Rand: seeded()})
				require.NoError(t, err)

				for range 3 {
					d.Shuffle()

					wantTrain := n - int(math.Floor(split*float64(n)))
					assert.Len(t, d.TrainSamples(), wantTrain)
					assert.Len(t, d.TrainClasses(), wantTrain)
					assert.Len(t, d.ValidationSamples(), n-wantTrain)
					assert.Len(t, d.ValidationClasses(), n-wantTrain)

					// every row is present once and still paired with its class
					seen := make([]int, 0, n)
					for i, row := range d.Samples() {
						assert.Equal(t, float64(d.Classes()[i]), row[1])
						seen = append(seen, int(row[0]))
					}
					slices.Sort(seen)
					for i, v := range seen {
						assert.Equal(t, i, v)
					}
				}
			})
		}
	}
}

func TestShuffleReselectsPermutation(t *testing.T) {
	samples, classes := indexedRows(20)
	d, err := New(samples, classes, 20, 20000, Options{Rand: seeded()})
	require.NoError(t, err)

	first := slices.Clone(d.Classes())
	firstRows := make([]float64, 0, 20)
	for _, row := range d.Samples() {
		firstRows = append(firstRows, row[0])
	}

	d.Shuffle()
	secondRows := make([]float64, 0, 20)
	for _, row := range d.Samples() {
		secondRows = append(secondRows, row[0])
	}

	assert.NotEqual(t, firstRows, secondRows)
	assert.ElementsMatch(t, first, d.Classes())
}

func TestNewValidation(t *testing.T) {
	samples, classes := indexedRows(4)

	for _, split := range []float64{-0.1, 1, 1.5, math.NaN()} {
		_, err := New(samples, classes, 20, 20000, Options{ValidationSplit: split})
		assert.True(t, errors.Is(err, errdefs.ErrConfiguration), "split %v", split)
	}

	_, err := New(samples, classes[:3], 20, 20000, Options{})
	assert.True(t, errors.Is(err, errdefs.ErrDataIntegrity))

	_, err = New(samples, []int{0, 1, -1, 2}, 20, 20000, Options{})
	assert.True(t, errors.Is(err, errdefs.ErrDataIntegrity))
}

func TestLabelsAreSortedUnique(t *testing.T) {
	d, err := New([][]float64{{1}, {2}, {3}, {4}}, []int{2, 0, 2, 1}, 20, 20000, Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, d.Labels())
	assert.Equal(t, 1, d.Bins())

	low, high := d.Cutoff()
	assert.Equal(t, 20, low)
	assert.Equal(t, 20000, high)
}

func TestArchiveRoundTrip(t *testing.T) {
	rng := seeded()
	a := &Archive{Cutoff: [2]int{20, 20000}}
	for i := range 12 {
		row := make([]float64, 5)
		for j := range row {
			row[j] = rng.Float64()
		}
		a.Samples = append(a.Samples, row)
		a.Classes = append(a.Classes, i%2)
	}

	var buf bytes.Buffer
	require.NoError(t, WriteArchive(&buf, a))

	got, err := ReadArchive(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestArchiveRejectsRaggedRows(t *testing.T) {
	a := &Archive{Samples: [][]float64{{1, 2}, {3}}, Classes: []int{0, 1}}
	err := WriteArchive(&bytes.Buffer{}, a)
	assert.True(t, errors.Is(err, errdefs.ErrDataIntegrity))
}

func TestReadArchiveMissingMember(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, value := range map[string]any{
		samplesMember: []float64{},
		classesMember: []int64{},
	} {
		fw, err := zw.Create(name)
		require.NoError(t, err)
		require.NoError(t, npyio.Write(fw, value))
	}
	require.NoError(t, zw.Close())

	_, err := ReadArchive(buf.Bytes())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrDataIntegrity))
	assert.Contains(t, err.Error(), cutoffMember)
}

func TestReadArchiveNotZip(t *testing.T) {
	_, err := ReadArchive([]byte("definitely not a zip"))
	assert.True(t, errors.Is(err, errdefs.ErrDataIntegrity))
}

func toneSegment(t *testing.T, freq float64, label int) *segment.Segment {
	t.Helper()
	const rate = 1000
	samples := make([]int16, rate)
	for i := range samples {
		samples[i] = int16(10000 * math.Sin(2*math.Pi*freq*float64(i)/rate))
	}
	seg, err := segment.FromSamples(samples, rate, 1)
	require.NoError(t, err)
	if label >= 0 {
		seg.SetLabel(label)
	}
	return seg
}

func TestWriterFlushAndLoad(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	w, err := NewWriter(store, "baby-01.npz", 20, 120, 10)
	require.NoError(t, err)

	require.NoError(t, w.Add(toneSegment(t, 50, 0)))
	require.NoError(t, w.Add(toneSegment(t, 100, 1)))
	require.NoError(t, w.Add(toneSegment(t, 50, 0)))
	assert.Equal(t, 3, w.Len())

	require.NoError(t, w.Flush(ctx))
	assert.Equal(t, 0, w.Len())

	d, err := Load(ctx, store, "baby-01.npz", Options{Rand: seeded()})
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len())
	assert.Equal(t, 10, d.Bins())
	assert.Equal(t, []int{0, 1}, d.Labels())

	low, high := d.Cutoff()
	assert.Equal(t, 20, low)
	assert.Equal(t, 120, high)

	want := toneSegment(t, 100, 1).Spectrum(20, 120, 10)
	for i, row := range d.Samples() {
		if d.Classes()[i] == 1 {
			assert.Equal(t, want, row)
		}
	}

	// a second flush without new rows leaves an empty archive
	require.NoError(t, w.Flush(ctx))
	d, err = Load(ctx, store, "baby-01.npz", Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, d.Len())
	assert.Empty(t, d.TrainSamples())
	assert.Empty(t, d.ValidationSamples())
}

func TestRejectedFlushKeepsPreviousArchive(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	w, err := NewWriter(store, "baby-01.npz", 20, 120, 10)
	require.NoError(t, err)
	require.NoError(t, w.Add(toneSegment(t, 50, 0)))
	require.NoError(t, w.Flush(ctx))

	w.samples = [][]float64{{1, 2}, {3}}
	w.classes = []int{0, 1}
	err = w.Flush(ctx)
	assert.True(t, errors.Is(err, errdefs.ErrDataIntegrity))

	d, err := Load(ctx, store, "baby-01.npz", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, 10, d.Bins())
}

func TestWriterRejectsUnlabeled(t *testing.T) {
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	w, err := NewWriter(store, "x.npz", 20, 120, 10)
	require.NoError(t, err)

	err = w.Add(toneSegment(t, 50, -1))
	assert.True(t, errors.Is(err, errdefs.ErrDataIntegrity))
	assert.Equal(t, 0, w.Len())
}

func TestNewWriterValidation(t *testing.T) {
	_, err := NewWriter(nil, "x.npz", 20, 120, 0)
	assert.True(t, errors.Is(err, errdefs.ErrConfiguration))

	_, err = NewWriter(nil, "x.npz", 120, 20, 10)
	assert.True(t, errors.Is(err, errdefs.ErrConfiguration))
}

func TestScan(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	for i, name := range []string{"b.npz", "a.npz", "nested/c.npz"} {
		w, err := NewWriter(store, name, 20, 120, 10)
		require.NoError(t, err)
		for range i + 1 {
			require.NoError(t, w.Add(toneSegment(t, 50, 0)))
		}
		require.NoError(t, w.Flush(ctx))
	}

	notes, err := store.Write(ctx, "notes.txt")
	require.NoError(t, err)
	require.NoError(t, notes.Close())

	datasets, err := Scan(ctx, store, Options{ValidationSplit: 0.5})
	require.NoError(t, err)
	require.Len(t, datasets, 2)

	// a.npz (2 rows) sorts before b.npz (1 row)
	assert.Equal(t, 2, datasets[0].Len())
	assert.Equal(t, 1, datasets[1].Len())
	assert.Equal(t, 0.5, datasets[0].ValidationSplit())
}

func TestLoadMissing(t *testing.T) {
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = Load(context.Background(), store, "missing.npz", Options{})
	assert.True(t, errors.Is(err, errdefs.ErrResource))
}
