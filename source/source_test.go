//go:build !windows

package source

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/micmon/errdefs"
	"github.com/RyanBlaney/micmon/labels"
	"github.com/RyanBlaney/micmon/segment"
	"github.com/RyanBlaney/micmon/transcode"
	"github.com/RyanBlaney/micmon/transcode/transcodetest"
)

func TestMain(m *testing.M) {
	transcodetest.Main()
	os.Exit(m.Run())
}

func testOptions(decoderPath string) Options {
	return Options{
		SampleDuration: 2 * time.Second,
		Format:         transcode.Format{SampleRate: 8000, Channels: 1},
		Decoder: &transcode.DecoderConfig{
			FFmpegPath:  decoderPath,
			StopTimeout: time.Second,
		},
	}
}

func testTimeline(t *testing.T, raw map[string]string) *labels.Timeline {
	t.Helper()
	timeline, err := labels.NewTimeline(raw)
	require.NoError(t, err)
	return timeline
}

func collect(t *testing.T, src *Source) []*segment.Segment {
	t.Helper()
	var segs []*segment.Segment
	err := Run(context.Background(), src, func(s *Source) error {
		for seg, err := range s.Segments() {
			if err != nil {
				return err
			}
			segs = append(segs, seg)
		}
		return s.Err()
	})
	require.NoError(t, err)
	return segs
}

func labelsOf(segs []*segment.Segment) []int {
	out := make([]int, len(segs))
	for i, seg := range segs {
		out[i] = -1
		if label, ok := seg.Label(); ok {
			out[i] = label
		}
	}
	return out
}

func TestChunkBytes(t *testing.T) {
	src, err := NewLiveDevice(transcode.DefaultLiveDevice(), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 176400, src.ChunkBytes())

	opts := DefaultOptions()
	opts.SampleDuration = 500 * time.Millisecond
	opts.Format = transcode.Format{SampleRate: 16000, Channels: 2}
	src, err = NewLiveDevice(transcode.DefaultLiveDevice(), opts)
	require.NoError(t, err)
	assert.Equal(t, 32000, src.ChunkBytes())
}

func TestOptionsValidation(t *testing.T) {
	opts := DefaultOptions()
	opts.SampleDuration = 0
	_, err := NewLiveDevice(transcode.DefaultLiveDevice(), opts)
	assert.True(t, errors.Is(err, errdefs.ErrConfiguration))

	opts = DefaultOptions()
	opts.SampleDuration = time.Microsecond
	_, err = NewLiveDevice(transcode.DefaultLiveDevice(), opts)
	assert.True(t, errors.Is(err, errdefs.ErrConfiguration))

	_, err = NewLiveDevice(transcode.LiveDevice{Backend: "alsa"}, DefaultOptions())
	assert.True(t, errors.Is(err, errdefs.ErrConfiguration))

	_, err = NewFileSource(transcode.StoredFile{}, nil, DefaultOptions())
	assert.True(t, errors.Is(err, errdefs.ErrConfiguration))

	_, err = NewFileSource(transcode.StoredFile{Path: "a.mp3", Start: -time.Second}, nil, DefaultOptions())
	assert.True(t, errors.Is(err, errdefs.ErrConfiguration))
}

func TestLabeledFileSource(t *testing.T) {
	opts := testOptions(transcodetest.Use(t, transcodetest.ModeTone))
	timeline := testTimeline(t, map[string]string{"00:00": "negative", "00:05": "positive"})

	src, err := NewFileSource(transcode.StoredFile{Path: "tone.mp3", Duration: 10 * time.Second}, timeline, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"negative", "positive"}, src.Vocabulary().Names())

	segs := collect(t, src)
	require.Len(t, segs, 5)
	for _, seg := range segs {
		assert.Len(t, seg.Bytes(), src.ChunkBytes())
		assert.InDelta(t, 2.0, seg.Duration(), 1e-9)
	}
	assert.Equal(t, []int{0, 0, 0, 1, 1}, labelsOf(segs))
	assert.Equal(t, 10*time.Second, src.Position())
}

func TestFinalShortChunk(t *testing.T) {
	opts := testOptions(transcodetest.Use(t, transcodetest.ModeTone))

	src, err := NewFileSource(transcode.StoredFile{Path: "tone.mp3", Duration: 5 * time.Second}, nil, opts)
	require.NoError(t, err)

	segs := collect(t, src)
	require.Len(t, segs, 3)
	assert.InDelta(t, 2.0, segs[0].Duration(), 1e-9)
	assert.InDelta(t, 2.0, segs[1].Duration(), 1e-9)
	assert.InDelta(t, 1.0, segs[2].Duration(), 1e-9)
	assert.Equal(t, []int{-1, -1, -1}, labelsOf(segs))
}

func TestChunksStayFrameAligned(t *testing.T) {
	for _, channels := range []int{1, 2} {
		t.Run(fmt.Sprintf("channels=%d", channels), func(t *testing.T) {
			opts := testOptions(transcodetest.Use(t, transcodetest.ModeTone))
			opts.Format.Channels = channels
			// half a frame longer than one second
			opts.SampleDuration = time.Second + 62500*time.Nanosecond

			src, err := NewFileSource(transcode.StoredFile{Path: "tone.mp3", Duration: 3 * time.Second}, nil, opts)
			require.NoError(t, err)
			assert.Equal(t, 8000*channels*2, src.ChunkBytes())

			segs := collect(t, src)
			require.Len(t, segs, 3)

			// same expression as the fake decoder so the values match bit for bit
			freq, rate := 440.0, 8000
			frame := 0
			for k, seg := range segs {
				samples := seg.Samples()
				require.Len(t, samples, 8000*channels)
				for i := 0; i < len(samples); i += channels {
					want := int16(8000 * math.Sin(2*math.Pi*freq*float64(frame)/float64(rate)))
					for c := range channels {
						require.Equal(t, want, samples[i+c], "segment %d frame %d channel %d", k, frame, c)
					}
					frame++
				}
			}
		})
	}
}

func TestStartOffsetShiftsLabelTime(t *testing.T) {
	opts := testOptions(transcodetest.Use(t, transcodetest.ModeTone))
	timeline := testTimeline(t, map[string]string{"00:00": "negative", "00:05": "positive"})

	file := transcode.StoredFile{Path: "tone.mp3", Start: 4 * time.Second, Duration: 4 * time.Second}
	src, err := NewFileSource(file, timeline, opts)
	require.NoError(t, err)

	segs := collect(t, src)
	assert.Equal(t, []int{0, 1}, labelsOf(segs))
}

func TestUnlabeledBeforeFirstEntry(t *testing.T) {
	opts := testOptions(transcodetest.Use(t, transcodetest.ModeTone))
	timeline := testTimeline(t, map[string]string{"00:03": "positive"})

	src, err := NewFileSource(transcode.StoredFile{Path: "tone.mp3", Duration: 6 * time.Second}, timeline, opts)
	require.NoError(t, err)

	assert.Equal(t, []int{-1, -1, 0}, labelsOf(collect(t, src)))
}

func TestStopIsIdempotent(t *testing.T) {
	t.Run("never started", func(t *testing.T) {
		src, err := NewLiveDevice(transcode.DefaultLiveDevice(), DefaultOptions())
		require.NoError(t, err)

		src.Stop()
		src.Stop()

		_, ok, err := src.Next()
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, src.Err())
	})

	t.Run("started", func(t *testing.T) {
		opts := testOptions(transcodetest.Use(t, transcodetest.ModeStream))
		src, err := NewLiveDevice(transcode.DefaultLiveDevice(), opts)
		require.NoError(t, err)
		require.NoError(t, src.Start(context.Background()))

		_, ok, err := src.Next()
		require.NoError(t, err)
		require.True(t, ok)

		src.Stop()
		src.Stop()

		_, ok, err = src.Next()
		assert.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStopUnblocksNext(t *testing.T) {
	opts := testOptions(transcodetest.Use(t, transcodetest.ModeHang))
	opts.Decoder.StopTimeout = 200 * time.Millisecond

	src, err := NewLiveDevice(transcode.DefaultLiveDevice(), opts)
	require.NoError(t, err)
	require.NoError(t, src.Start(context.Background()))

	type result struct {
		ok  bool
		err error
	}
	results := make(chan result, 1)
	go func() {
		_, ok, err := src.Next()
		results <- result{ok, err}
	}()

	time.Sleep(100 * time.Millisecond)
	src.Stop()

	select {
	case r := <-results:
		assert.NoError(t, r.err)
		assert.False(t, r.ok)
	case <-time.After(5 * time.Second):
		t.Fatal("Next still blocked after Stop")
	}
}

func TestPauseResume(t *testing.T) {
	opts := testOptions(transcodetest.Use(t, transcodetest.ModeStream))
	src, err := NewLiveDevice(transcode.DefaultLiveDevice(), opts)
	require.NoError(t, err)

	// no-ops before start
	assert.NoError(t, src.Pause())
	assert.NoError(t, src.Resume())

	err = Run(context.Background(), src, func(s *Source) error {
		if _, _, err := s.Next(); err != nil {
			return err
		}
		if err := s.Pause(); err != nil {
			return err
		}
		if err := s.Resume(); err != nil {
			return err
		}
		seg, ok, err := s.Next()
		require.True(t, ok)
		assert.Len(t, seg.Bytes(), s.ChunkBytes())
		return err
	})
	require.NoError(t, err)
}

func TestStartTwice(t *testing.T) {
	opts := testOptions(transcodetest.Use(t, transcodetest.ModeStream))
	src, err := NewLiveDevice(transcode.DefaultLiveDevice(), opts)
	require.NoError(t, err)

	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	assert.True(t, errors.Is(src.Start(context.Background()), errdefs.ErrConfiguration))
}

func TestDecoderFailureIsReported(t *testing.T) {
	opts := testOptions(transcodetest.Use(t, transcodetest.ModeFail))
	src, err := NewFileSource(transcode.StoredFile{Path: "missing.mp3"}, nil, opts)
	require.NoError(t, err)

	err = Run(context.Background(), src, func(s *Source) error {
		_, ok, err := s.Next()
		require.NoError(t, err)
		assert.False(t, ok)
		return s.Err()
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No such file or directory")
}

func TestRunStopsOnError(t *testing.T) {
	opts := testOptions(transcodetest.Use(t, transcodetest.ModeStream))
	src, err := NewLiveDevice(transcode.DefaultLiveDevice(), opts)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = Run(context.Background(), src, func(*Source) error { return boom })
	assert.ErrorIs(t, err, boom)

	_, ok, err := src.Next()
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestRealDecoderEndToEnd(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available")
	}

	dir := t.TempDir()
	audioPath := filepath.Join(dir, "tone.wav")
	writeToneWAV(t, audioPath, 8000, 10*time.Second, 440)

	opts := testOptions("ffmpeg")
	timeline := testTimeline(t, map[string]string{"00:00": "negative", "00:05": "positive"})

	src, err := NewFileSource(transcode.StoredFile{Path: audioPath}, timeline, opts)
	require.NoError(t, err)

	segs := collect(t, src)
	require.Len(t, segs, 5)
	assert.Equal(t, []int{0, 0, 0, 1, 1}, labelsOf(segs))

	// 440 Hz over a 2 s chunk peaks at index 880
	spectrum := segs[0].FFT(0, 2000)
	peak := 0
	for i, v := range spectrum {
		if v > spectrum[peak] {
			peak = i
		}
	}
	assert.InDelta(t, 880, peak, 2)
}

func writeToneWAV(t *testing.T, path string, rate int, duration time.Duration, freq float64) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	frames := int(duration.Seconds() * float64(rate))
	data := make([]int, frames)
	for i := range data {
		data[i] = int(8000 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
}
