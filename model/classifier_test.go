package model

import (
	"context"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/micmon/dataset"
	"github.com/RyanBlaney/micmon/errdefs"
	"github.com/RyanBlaney/micmon/model/nn"
	"github.com/RyanBlaney/micmon/segment"
	"github.com/RyanBlaney/micmon/storage"
)

type MockModel struct {
	mock.Mock
}

func (m *MockModel) Fit(x [][]float64, y []int) (nn.Metrics, error) {
	args := m.Called(x, y)
	return args.Get(0).(nn.Metrics), args.Error(1)
}

func (m *MockModel) Evaluate(x [][]float64, y []int) (nn.Metrics, error) {
	args := m.Called(x, y)
	return args.Get(0).(nn.Metrics), args.Error(1)
}

func (m *MockModel) Predict(x [][]float64) ([][]float64, error) {
	args := m.Called(x)
	out, _ := args.Get(0).([][]float64)
	return out, args.Error(1)
}

func (m *MockModel) InputSize() int {
	return m.Called().Int(0)
}

func (m *MockModel) Save(w io.Writer) error {
	return m.Called(w).Error(0)
}

func tone(t *testing.T, freq float64) *segment.Segment {
	t.Helper()
	const rate = 8000
	samples := make([]int16, rate/2)
	for i := range samples {
		samples[i] = int16(8000 * math.Sin(2*math.Pi*freq*float64(i)/rate))
	}
	seg, err := segment.FromSamples(samples, rate, 1)
	require.NoError(t, err)
	return seg
}

func smallLayers(bins, classes int) []nn.LayerSpec {
	return []nn.LayerSpec{
		nn.InputLayer(bins),
		nn.DenseLayer(8, nn.ReLU),
		nn.DenseLayer(classes, nn.Softmax),
	}
}

func TestNewRequiresExactlyOneForm(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, errdefs.ErrConfiguration)

	_, err = New(Options{Layers: smallLayers(4, 2), Model: &MockModel{}})
	assert.ErrorIs(t, err, errdefs.ErrConfiguration)

	c, err := New(Options{Layers: smallLayers(4, 2)})
	require.NoError(t, err)
	assert.Equal(t, Compiled, c.State())

	low, high := c.Cutoff()
	assert.Equal(t, segment.DefaultLowFreq, low)
	assert.Equal(t, segment.DefaultHighFreq, high)
}

func TestStateLifecycle(t *testing.T) {
	var zero State
	assert.Equal(t, Uninitialized, zero)
	assert.Equal(t, "uninitialized", zero.String())
	assert.Equal(t, "compiled", Compiled.String())
	assert.Equal(t, "trained", Trained.String())
	assert.Equal(t, "persisted", Persisted.String())

	var c Classifier
	assert.Equal(t, Uninitialized, c.State())
}

func TestNewRejectsUnsupportedMetric(t *testing.T) {
	_, err := New(Options{Layers: smallLayers(4, 2), Metrics: []string{"precision"}})
	assert.ErrorIs(t, err, errdefs.ErrConfiguration)

	_, err = New(Options{Layers: smallLayers(4, 2), Metrics: []string{"accuracy"}})
	assert.NoError(t, err)
}

func TestNewRejectsBadCutoff(t *testing.T) {
	_, err := New(Options{Layers: smallLayers(4, 2), Cutoff: [2]int{500, 100}})
	assert.ErrorIs(t, err, errdefs.ErrConfiguration)
}

func TestPredictUsesOwnCutoffsAndLabels(t *testing.T) {
	m := &MockModel{}
	seg := tone(t, 440)
	want := seg.Spectrum(100, 1000, 4)

	m.On("InputSize").Return(4)
	m.On("Predict", [][]float64{want}).Return([][]float64{{0.2, 0.8}}, nil)

	c, err := New(Options{Model: m, Labels: []string{"negative", "positive"}, Cutoff: [2]int{100, 1000}})
	require.NoError(t, err)

	p, err := c.Predict(seg)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Index)
	assert.Equal(t, "positive", p.Label)
	assert.Equal(t, "positive", p.String())
	m.AssertExpectations(t)
}

func TestPredictWithoutLabelsReturnsIndex(t *testing.T) {
	m := &MockModel{}
	m.On("InputSize").Return(3)
	m.On("Predict", mock.Anything).Return([][]float64{{0.7, 0.2, 0.1}}, nil)

	c, err := New(Options{Model: m})
	require.NoError(t, err)

	p, err := c.Predict(tone(t, 300))
	require.NoError(t, err)
	assert.Equal(t, 0, p.Index)
	assert.Empty(t, p.Label)
	assert.Equal(t, "0", p.String())
}

func TestPredictIndexOutsideLabels(t *testing.T) {
	m := &MockModel{}
	m.On("InputSize").Return(3)
	m.On("Predict", mock.Anything).Return([][]float64{{0.1, 0.1, 0.8}}, nil)

	c, err := New(Options{Model: m, Labels: []string{"a", "b"}})
	require.NoError(t, err)

	_, err = c.Predict(tone(t, 300))
	assert.ErrorIs(t, err, errdefs.ErrDataIntegrity)
}

func TestFitAndEvaluateUsePartitions(t *testing.T) {
	samples := [][]float64{{1}, {2}, {3}, {4}}
	classes := []int{0, 1, 0, 1}
	d, err := dataset.New(samples, classes, 20, 20000, dataset.Options{ValidationSplit: 0.5})
	require.NoError(t, err)

	m := &MockModel{}
	m.On("Fit", d.TrainSamples(), d.TrainClasses()).Return(nn.Metrics{Loss: 0.5, Accuracy: 1, Samples: 2}, nil)
	m.On("Evaluate", d.ValidationSamples(), d.ValidationClasses()).Return(nn.Metrics{Loss: 0.7, Accuracy: 0.5, Samples: 2}, nil)

	c, err := New(Options{Model: m})
	require.NoError(t, err)

	fit, err := c.Fit(d)
	require.NoError(t, err)
	assert.Equal(t, 2, fit.Samples)
	assert.Equal(t, Trained, c.State())

	eval, err := c.Evaluate(d)
	require.NoError(t, err)
	assert.Equal(t, 0.5, eval.Accuracy)
	m.AssertExpectations(t)
}

func TestSaveLoadBundle(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	c, err := New(Options{
		Layers:  smallLayers(6, 2),
		Labels:  []string{"negative", "positive"},
		Cutoff:  [2]int{50, 2000},
		Seed:    7,
		Metrics: []string{"accuracy"},
	})
	require.NoError(t, err)
	require.NoError(t, c.Save(ctx, store))
	assert.Equal(t, Persisted, c.State())

	for _, name := range []string{ModelFileName, LabelsFileName, FreqFileName} {
		ok, err := store.Exists(ctx, name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}

	loaded, err := Load(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []string{"negative", "positive"}, loaded.Labels())
	low, high := loaded.Cutoff()
	assert.Equal(t, 50, low)
	assert.Equal(t, 2000, high)

	seg := tone(t, 440)
	want, err := c.Predict(seg)
	require.NoError(t, err)
	got, err := loaded.Predict(seg)
	require.NoError(t, err)
	assert.Equal(t, want.Label, got.Label)
	assert.InDeltaSlice(t, want.Probabilities, got.Probabilities, 1e-12)
}

func TestLoadWithoutSidecars(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	c, err := New(Options{Layers: smallLayers(4, 3)})
	require.NoError(t, err)
	require.NoError(t, c.Save(ctx, store))
	require.NoError(t, store.Delete(ctx, FreqFileName))

	loaded, err := Load(ctx, store)
	require.NoError(t, err)
	assert.Nil(t, loaded.Labels())
	low, high := loaded.Cutoff()
	assert.Equal(t, segment.DefaultLowFreq, low)
	assert.Equal(t, segment.DefaultHighFreq, high)

	p, err := loaded.Predict(tone(t, 1000))
	require.NoError(t, err)
	assert.Empty(t, p.Label)
	assert.Len(t, p.Probabilities, 3)
}

func TestLoadMissingModel(t *testing.T) {
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = Load(context.Background(), store)
	assert.ErrorIs(t, err, errdefs.ErrResource)
}

func TestLoadMalformedFreq(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	c, err := New(Options{Layers: smallLayers(4, 2)})
	require.NoError(t, err)
	require.NoError(t, c.Save(ctx, store))

	w, err := store.Write(ctx, FreqFileName)
	require.NoError(t, err)
	_, err = w.Write([]byte("[1, 2, 3]"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = Load(ctx, store)
	assert.ErrorIs(t, err, errdefs.ErrConfiguration)
}
