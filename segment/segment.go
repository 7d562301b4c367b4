// Package segment holds one fixed-duration chunk of signed 16-bit little-endian
// PCM and turns it into a fixed-length spectral feature vector.
package segment

import (
	"encoding/binary"
	"fmt"
	"io"
	"slices"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/RyanBlaney/micmon/algorithms/common"
	"github.com/RyanBlaney/micmon/algorithms/spectral"
	"github.com/RyanBlaney/micmon/errdefs"
)

// Feature extraction defaults: the audible band and 100 bins.
const (
	DefaultLowFreq  = 20
	DefaultHighFreq = 20000
	DefaultBins     = 100
)

// maxMagnitude is the 16-bit full scale used to normalize averaged magnitudes.
const maxMagnitude = float64(1<<16 - 1)

// BytesPerSample is the width of one s16le sample.
const BytesPerSample = 2

// Segment is a decoded chunk with its stream parameters and optional label index.
type Segment struct {
	samples    []int16
	sampleRate int
	channels   int
	label      int
	hasLabel   bool
}

// New copies data into a new segment. A trailing odd byte is dropped.
func New(data []byte, sampleRate, channels int) (*Segment, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, errdefs.Configuration("segment.New",
			fmt.Sprintf("invalid stream parameters rate=%d channels=%d", sampleRate, channels), nil)
	}

	n := len(data) / BytesPerSample
	if n == 0 {
		return nil, errdefs.DataIntegrity("segment.New", "segment has no samples", nil)
	}

	samples := make([]int16, n)
	for i := range n {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}

	return &Segment{samples: samples, sampleRate: sampleRate, channels: channels}, nil
}

// FromSamples builds a segment from interleaved samples, copying them.
func FromSamples(samples []int16, sampleRate, channels int) (*Segment, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, errdefs.Configuration("segment.FromSamples",
			fmt.Sprintf("invalid stream parameters rate=%d channels=%d", sampleRate, channels), nil)
	}
	if len(samples) == 0 {
		return nil, errdefs.DataIntegrity("segment.FromSamples", "segment has no samples", nil)
	}
	return &Segment{samples: slices.Clone(samples), sampleRate: sampleRate, channels: channels}, nil
}

// SampleRate returns the sample rate in Hz.
func (s *Segment) SampleRate() int { return s.sampleRate }

// Channels returns the channel count.
func (s *Segment) Channels() int { return s.channels }

// Samples returns a copy of the interleaved samples.
func (s *Segment) Samples() []int16 { return slices.Clone(s.samples) }

// Duration returns the length in seconds.
func (s *Segment) Duration() float64 {
	return float64(len(s.samples)) / float64(s.sampleRate*s.channels)
}

// Label returns the label index, if one was set.
func (s *Segment) Label() (int, bool) {
	return s.label, s.hasLabel
}

// SetLabel attaches a label index.
func (s *Segment) SetLabel(index int) {
	s.label = index
	s.hasLabel = true
}

// Bytes re-encodes the samples as s16le.
func (s *Segment) Bytes() []byte {
	out := make([]byte, len(s.samples)*BytesPerSample)
	for i, v := range s.samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// FFT returns the magnitude spectrum restricted to bin indices [low, high).
// Indices equal Hz only when the segment lasts exactly one second. Channels
// are not separated; the interleaved sample array is transformed as a whole.
func (s *Segment) FFT(low, high int) []float64 {
	signal := make([]float64, len(s.samples))
	for i, v := range s.samples {
		signal[i] = float64(v)
	}
	return spectral.Crop(spectral.NewFFT().Magnitude(signal), low, high)
}

// Spectrum averages the cropped magnitude spectrum into bins equal-width
// slices and normalizes by duration * (2^16 - 1). The result always has
// exactly bins elements.
func (s *Segment) Spectrum(low, high, bins int) []float64 {
	averaged := spectral.AverageBins(s.FFT(low, high), bins)
	return common.Scale(1/(s.Duration()*maxMagnitude), averaged)
}

// DefaultSpectrum is Spectrum with the package defaults.
func (s *Segment) DefaultSpectrum() []float64 {
	return s.Spectrum(DefaultLowFreq, DefaultHighFreq, DefaultBins)
}

// WriteWAV encodes the segment as a 16-bit PCM WAV file.
func (s *Segment) WriteWAV(w io.WriteSeeker) error {
	data := make([]int, len(s.samples))
	for i, v := range s.samples {
		data[i] = int(v)
	}

	enc := wav.NewEncoder(w, s.sampleRate, 16, s.channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: s.channels, SampleRate: s.sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize wav: %w", err)
	}
	return nil
}
