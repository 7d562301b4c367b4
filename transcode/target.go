package transcode

import (
	"fmt"
	"strconv"
	"time"

	"github.com/RyanBlaney/micmon/errdefs"
)

// Format is the raw PCM layout requested from the decoder.
type Format struct {
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
}

// DefaultFormat is 44.1 kHz mono.
func DefaultFormat() Format {
	return Format{SampleRate: 44100, Channels: 1}
}

// Validate checks the format parameters.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return errdefs.Configuration("transcode.Format", fmt.Sprintf("sample rate must be positive: %d", f.SampleRate), nil)
	}
	if f.Channels <= 0 {
		return errdefs.Configuration("transcode.Format", fmt.Sprintf("channels must be positive: %d", f.Channels), nil)
	}
	return nil
}

// ChunkBytes returns the size of a chunk of the given duration:
// duration * rate * channels * 2, rounded down to a whole frame so every
// chunk starts on the first channel of a sample.
func (f Format) ChunkBytes(duration time.Duration) int {
	frames := int64(duration) * int64(f.SampleRate) / int64(time.Second)
	return int(frames) * f.Channels * 2
}

// Target selects what the decoder reads. It is either a LiveDevice or a StoredFile.
type Target interface {
	inputArgs() []string
	String() string
}

// LiveDevice captures from a hardware input through a capture backend such as
// "alsa" or "pulse".
type LiveDevice struct {
	Backend string
	Device  string
}

// DefaultLiveDevice is the second ALSA capture device, a common USB microphone slot.
func DefaultLiveDevice() LiveDevice {
	return LiveDevice{Backend: "alsa", Device: "plughw:0,1"}
}

func (d LiveDevice) inputArgs() []string {
	return []string{"-f", d.Backend, "-i", d.Device}
}

func (d LiveDevice) String() string {
	return d.Backend + ":" + d.Device
}

// StoredFile decodes a file, optionally seeking to Start and stopping after Duration.
type StoredFile struct {
	Path     string
	Start    time.Duration
	Duration time.Duration
}

func (f StoredFile) inputArgs() []string {
	args := []string{"-i", f.Path}
	if f.Start > 0 {
		args = append(args, "-ss", formatSeconds(f.Start))
	}
	if f.Duration > 0 {
		args = append(args, "-t", formatSeconds(f.Duration))
	}
	return args
}

func (f StoredFile) String() string {
	return f.Path
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// BuildArgs maps a target and output format to the decoder argument list.
// Output is always signed 16-bit little-endian PCM on stdout.
func BuildArgs(target Target, format Format, debug bool) []string {
	args := []string{"-hide_banner", "-nostdin"}
	if !debug {
		args = append(args, "-loglevel", "error")
	}

	args = append(args, target.inputArgs()...)

	return append(args,
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", strconv.Itoa(format.Channels),
		"-ar", strconv.Itoa(format.SampleRate),
		"-",
	)
}
