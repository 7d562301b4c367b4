// Package transcode drives the external decoder (ffmpeg) and player (ffplay)
// processes that turn audio inputs into raw s16le PCM and back.
package transcode

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/RyanBlaney/micmon/errdefs"
	"github.com/RyanBlaney/micmon/logging"
)

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	FFmpegPath  string        `json:"ffmpeg_path"`  // Path to ffmpeg binary
	FFplayPath  string        `json:"ffplay_path"`  // Path to ffplay binary
	StopTimeout time.Duration `json:"stop_timeout"` // Grace period between terminate and kill
	Debug       bool          `json:"debug"`        // Pass decoder diagnostics through to stderr
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		FFmpegPath:  "ffmpeg",
		FFplayPath:  "ffplay",
		StopTimeout: 5 * time.Second,
	}
}

// Validate validates the decoder configuration
func (c *DecoderConfig) Validate() error {
	if strings.TrimSpace(c.FFmpegPath) == "" {
		return errdefs.Configuration("transcode.Validate", "ffmpeg path must not be empty", nil)
	}
	if c.StopTimeout <= 0 {
		return errdefs.Configuration("transcode.Validate",
			fmt.Sprintf("stop timeout must be positive: %v", c.StopTimeout), nil)
	}
	return nil
}

// CheckBinary verifies that path resolves to an executable.
func CheckBinary(path string) error {
	if _, err := exec.LookPath(path); err != nil {
		return errdefs.Resource("transcode.CheckBinary", "decoder binary not found at "+path, err)
	}
	return nil
}

// StartDecoder launches the decoder for target, writing s16le PCM in format to
// the returned process's stdout.
func StartDecoder(ctx context.Context, cfg *DecoderConfig, target Target, format Format, executor CommandExecutor) (*Process, error) {
	if cfg == nil {
		cfg = DefaultDecoderConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	args := BuildArgs(target, format, cfg.Debug)

	logger := logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "StartDecoder",
		"target":    target.String(),
	})
	logger.Debug("Starting decoder", logging.Fields{
		"command": fmt.Sprintf("%s %s", cfg.FFmpegPath, strings.Join(args, " ")),
	})

	return Start(ctx, &ProcessOptions{
		Path:        cfg.FFmpegPath,
		Args:        args,
		Stdout:      true,
		Debug:       cfg.Debug,
		StopTimeout: cfg.StopTimeout,
		Executor:    executor,
		Logger:      logger,
	})
}
