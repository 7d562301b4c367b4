// Package source exposes a decoder subprocess as a pull-based sequence of
// fixed-duration audio segments.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync/atomic"
	"time"

	"github.com/RyanBlaney/micmon/errdefs"
	"github.com/RyanBlaney/micmon/labels"
	"github.com/RyanBlaney/micmon/logging"
	"github.com/RyanBlaney/micmon/segment"
	"github.com/RyanBlaney/micmon/transcode"
)

// Options controls chunking and decoding.
type Options struct {
	SampleDuration time.Duration
	Format         transcode.Format
	Decoder        *transcode.DecoderConfig
	Executor       transcode.CommandExecutor // nil uses transcode.DefaultExecutor
}

// DefaultOptions returns 2 second chunks of 44.1 kHz mono audio.
func DefaultOptions() Options {
	return Options{
		SampleDuration: 2 * time.Second,
		Format:         transcode.DefaultFormat(),
		Decoder:        transcode.DefaultDecoderConfig(),
	}
}

func (o *Options) validate() error {
	if o.SampleDuration <= 0 {
		return errdefs.Configuration("source.Options", fmt.Sprintf("sample duration must be positive: %v", o.SampleDuration), nil)
	}
	if err := o.Format.Validate(); err != nil {
		return err
	}
	if o.Decoder == nil {
		o.Decoder = transcode.DefaultDecoderConfig()
	}
	if err := o.Decoder.Validate(); err != nil {
		return err
	}
	if o.Format.ChunkBytes(o.SampleDuration) < segment.BytesPerSample {
		return errdefs.Configuration("source.Options",
			fmt.Sprintf("sample duration %v is shorter than one sample", o.SampleDuration), nil)
	}
	return nil
}

// Source owns one decoder subprocess for the span between Start and Stop.
// The segment sequence is single-pass: once exhausted or stopped, a new
// Source must be constructed to read again.
type Source struct {
	target     transcode.Target
	opts       Options
	chunkBytes int

	timeline   *labels.Timeline
	vocabulary *labels.Vocabulary
	cursor     *labels.Cursor
	positionMs int64

	proc      *transcode.Process
	started   bool
	exhausted bool
	stopped   atomic.Bool

	logger logging.Logger
}

func newSource(target transcode.Target, timeline *labels.Timeline, opts Options) (*Source, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	s := &Source{
		target:     target,
		opts:       opts,
		chunkBytes: opts.Format.ChunkBytes(opts.SampleDuration),
		timeline:   timeline,
		logger: logging.WithFields(logging.Fields{
			"component": "audio_source",
			"target":    target.String(),
		}),
	}
	if timeline != nil {
		s.vocabulary = timeline.Vocabulary()
		s.cursor = timeline.Cursor()
	}
	return s, nil
}

// NewLiveDevice creates a source that captures from a hardware input.
func NewLiveDevice(device transcode.LiveDevice, opts Options) (*Source, error) {
	if device.Backend == "" || device.Device == "" {
		return nil, errdefs.Configuration("source.NewLiveDevice", "capture backend and device are required", nil)
	}
	return newSource(device, nil, opts)
}

// NewFileSource creates a source that decodes a stored file. When timeline is
// non-nil every segment is labeled with the entry active at its start time,
// measured from file.Start.
func NewFileSource(file transcode.StoredFile, timeline *labels.Timeline, opts Options) (*Source, error) {
	if file.Path == "" {
		return nil, errdefs.Configuration("source.NewFileSource", "file path is required", nil)
	}
	if file.Start < 0 || file.Duration < 0 {
		return nil, errdefs.Configuration("source.NewFileSource", "start and duration must not be negative", nil)
	}

	s, err := newSource(file, timeline, opts)
	if err != nil {
		return nil, err
	}
	s.positionMs = file.Start.Milliseconds()
	return s, nil
}

// ChunkBytes is the size of every chunk except possibly the last:
// duration * rate * channels * 2.
func (s *Source) ChunkBytes() int {
	return s.chunkBytes
}

// Vocabulary returns the sorted labels of the attached timeline, or nil.
func (s *Source) Vocabulary() *labels.Vocabulary {
	return s.vocabulary
}

// Position returns the playback time of the next segment.
func (s *Source) Position() time.Duration {
	return time.Duration(s.positionMs) * time.Millisecond
}

// Start launches the decoder. Decoder diagnostics are discarded unless the
// decoder config enables debug output.
func (s *Source) Start(ctx context.Context) error {
	if s.started {
		return errdefs.Configuration("source.Start", "source already started", nil)
	}
	s.started = true

	proc, err := transcode.StartDecoder(ctx, s.opts.Decoder, s.target, s.opts.Format, s.opts.Executor)
	if err != nil {
		s.exhausted = true
		return err
	}
	s.proc = proc

	s.logger.Debug("Audio source started", logging.Fields{
		"chunk_bytes": s.chunkBytes,
		"pid":         proc.Pid(),
	})
	return nil
}

// Next blocks until a full chunk is available and returns it as a segment.
// ok is false once the decoder has exited and its output is drained, or after
// Stop. The last segment before the end may be shorter than ChunkBytes.
func (s *Source) Next() (seg *segment.Segment, ok bool, err error) {
	if s.proc == nil || s.exhausted || s.stopped.Load() {
		return nil, false, nil
	}

	buf := make([]byte, s.chunkBytes)
	n, err := io.ReadFull(s.proc, buf)
	switch {
	case err == nil:
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.exhausted = true
	case errors.Is(err, io.EOF):
		s.exhausted = true
		return nil, false, nil
	default:
		if s.stopped.Load() {
			s.exhausted = true
			return nil, false, nil
		}
		return nil, false, errdefs.Resource("source.Next", "failed to read decoder output", err)
	}

	if n < segment.BytesPerSample {
		return nil, false, nil
	}

	seg, err = segment.New(buf[:n], s.opts.Format.SampleRate, s.opts.Format.Channels)
	if err != nil {
		return nil, false, err
	}

	if s.cursor != nil {
		if name, set := s.cursor.Resolve(s.positionMs); set {
			index, _ := s.vocabulary.Index(name)
			seg.SetLabel(index)
		}
	}
	s.positionMs += labels.SecondsToMillis(seg.Duration())

	return seg, true, nil
}

// Segments returns the remaining segments as an iterator. Iteration stops at
// the end of the stream or after yielding a non-nil error.
func (s *Source) Segments() iter.Seq2[*segment.Segment, error] {
	return func(yield func(*segment.Segment, error) bool) {
		for {
			seg, ok, err := s.Next()
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok || !yield(seg, nil) {
				return
			}
		}
	}
}

// Pause suspends the decoder. Output it has already written stays readable.
func (s *Source) Pause() error {
	if s.proc == nil {
		return nil
	}
	return s.proc.Pause()
}

// Resume continues a paused decoder.
func (s *Source) Resume() error {
	if s.proc == nil {
		return nil
	}
	return s.proc.Resume()
}

// Stop terminates the decoder and reaps it. It never fails, may be called
// more than once or on a source that was never started, and unblocks a
// concurrent Next.
func (s *Source) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	if s.proc != nil {
		s.proc.Stop()
		s.logger.Debug("Audio source stopped", logging.Fields{"position_ms": s.positionMs})
	}
}

// Err reports an abnormal decoder exit, such as an unreadable input file.
// A stream that ended normally or through Stop reports nil.
func (s *Source) Err() error {
	if s.proc == nil || s.stopped.Load() {
		return nil
	}
	if s.exhausted {
		// output is closed, so the decoder is on its way out
		select {
		case <-s.proc.Done():
		case <-time.After(s.opts.Decoder.StopTimeout):
		}
	}
	return s.proc.ExitError()
}

// Run starts src, calls fn, and stops src on every exit path.
func Run(ctx context.Context, src *Source, fn func(*Source) error) error {
	if err := src.Start(ctx); err != nil {
		return err
	}
	defer src.Stop()

	return fn(src)
}
