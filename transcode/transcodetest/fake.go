// Package transcodetest provides a fake decoder and player for tests. A test
// binary calls Main from TestMain; when EnvMode is set the binary acts as the
// subprocess instead of running tests.
package transcodetest

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"testing"
	"time"
)

const (
	// EnvMode selects the fake subprocess behaviour.
	EnvMode = "MICMON_FAKE_SUBPROCESS"
	// EnvFreq sets the tone frequency in Hz for ModeTone and ModeStream.
	EnvFreq = "MICMON_FAKE_FREQ"
)

const (
	ModeTone   = "tone"   // write a tone for -t seconds (default 1s) and exit
	ModeStream = "stream" // write a tone until killed
	ModeHang   = "hang"   // ignore SIGTERM and never exit on its own
	ModeFail   = "fail"   // print to stderr and exit 1
	ModeSink   = "sink"   // drain stdin until EOF
)

// Main runs the fake subprocess and exits if EnvMode is set.
func Main() {
	mode := os.Getenv(EnvMode)
	if mode == "" {
		return
	}
	os.Exit(run(mode, os.Args[1:]))
}

// Use points subprocess launches at the running test binary in the given mode
// and returns its path.
func Use(t testing.TB, mode string) string {
	t.Helper()
	t.Setenv(EnvMode, mode)
	return os.Args[0]
}

func run(mode string, args []string) int {
	switch mode {
	case ModeTone:
		return writeTone(args, false)
	case ModeStream:
		return writeTone(args, true)
	case ModeHang:
		signal.Ignore(syscall.SIGTERM)
		// one byte tells the parent the handler is installed
		_, _ = os.Stdout.Write([]byte{0})
		time.Sleep(time.Hour)
		return 0
	case ModeFail:
		fmt.Fprintln(os.Stderr, "input: No such file or directory")
		return 1
	case ModeSink:
		_, _ = io.Copy(io.Discard, os.Stdin)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown fake mode %q\n", mode)
		return 2
	}
}

func flagValue(args []string, name string) (string, bool) {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == name {
			return args[i+1], true
		}
	}
	return "", false
}

func writeTone(args []string, forever bool) int {
	rate, channels, seconds := 44100, 1, 1.0
	if v, ok := flagValue(args, "-ar"); ok {
		rate, _ = strconv.Atoi(v)
	}
	if v, ok := flagValue(args, "-ac"); ok {
		channels, _ = strconv.Atoi(v)
	}
	if v, ok := flagValue(args, "-t"); ok {
		seconds, _ = strconv.ParseFloat(v, 64)
	}
	freq := 440.0
	if v := os.Getenv(EnvFreq); v != "" {
		freq, _ = strconv.ParseFloat(v, 64)
	}

	w := bufio.NewWriter(os.Stdout)
	frames := int(seconds * float64(rate))
	buf := make([]byte, 2)
	for i := 0; forever || i < frames; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
		binary.LittleEndian.PutUint16(buf, uint16(v))
		for c := 0; c < channels; c++ {
			if _, err := w.Write(buf); err != nil {
				return 0
			}
		}
	}
	if err := w.Flush(); err != nil {
		return 0
	}
	return 0
}
