// Package config loads micmon settings from a config file, MICMON_*
// environment variables and command-line flags through viper.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/RyanBlaney/micmon/datagen"
	"github.com/RyanBlaney/micmon/errdefs"
	"github.com/RyanBlaney/micmon/logging"
	"github.com/RyanBlaney/micmon/segment"
	"github.com/RyanBlaney/micmon/source"
	"github.com/RyanBlaney/micmon/transcode"
)

const (
	// Name is the config file base name, without extension.
	Name = "micmon"
	// EnvPrefix prefixes environment overrides, e.g. MICMON_AUDIO_SAMPLE_RATE.
	EnvPrefix = "MICMON"
)

// Config represents the application configuration
type Config struct {
	Debug    bool   `mapstructure:"debug" yaml:"debug"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	Audio    AudioConfig    `mapstructure:"audio" yaml:"audio"`
	Decoder  DecoderConfig  `mapstructure:"decoder" yaml:"decoder"`
	Features FeatureConfig  `mapstructure:"features" yaml:"features"`
	Training TrainingConfig `mapstructure:"training" yaml:"training"`
	Capture  CaptureConfig  `mapstructure:"capture" yaml:"capture"`
}

// AudioConfig controls the decoded PCM format and chunking
type AudioConfig struct {
	SampleDuration time.Duration `mapstructure:"sample_duration" yaml:"sample_duration"`
	SampleRate     int           `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels       int           `mapstructure:"channels" yaml:"channels"`
}

// DecoderConfig locates the external binaries
type DecoderConfig struct {
	FFmpegBin   string        `mapstructure:"ffmpeg_bin" yaml:"ffmpeg_bin"`
	FFplayBin   string        `mapstructure:"ffplay_bin" yaml:"ffplay_bin"`
	StopTimeout time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
}

// FeatureConfig controls spectrum extraction
type FeatureConfig struct {
	LowFreq  int `mapstructure:"low_freq" yaml:"low_freq"`
	HighFreq int `mapstructure:"high_freq" yaml:"high_freq"`
	Bins     int `mapstructure:"bins" yaml:"bins"`
}

// TrainingConfig controls the train command
type TrainingConfig struct {
	ValidationSplit float64  `mapstructure:"validation_split" yaml:"validation_split"`
	Epochs          int      `mapstructure:"epochs" yaml:"epochs"`
	BatchSize       int      `mapstructure:"batch_size" yaml:"batch_size"`
	Optimizer       string   `mapstructure:"optimizer" yaml:"optimizer"`
	LearningRate    float64  `mapstructure:"learning_rate" yaml:"learning_rate"`
	Labels          []string `mapstructure:"labels" yaml:"labels"`
}

// CaptureConfig selects the live input device
type CaptureConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Device  string `mapstructure:"device" yaml:"device"`
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("log_level", "info")

	// Audio defaults
	v.SetDefault("audio.sample_duration", 2*time.Second)
	v.SetDefault("audio.sample_rate", 44100)
	v.SetDefault("audio.channels", 1)

	// Decoder defaults
	v.SetDefault("decoder.ffmpeg_bin", "ffmpeg")
	v.SetDefault("decoder.ffplay_bin", "ffplay")
	v.SetDefault("decoder.stop_timeout", 5*time.Second)

	// Feature defaults
	v.SetDefault("features.low_freq", segment.DefaultLowFreq)
	v.SetDefault("features.high_freq", segment.DefaultHighFreq)
	v.SetDefault("features.bins", segment.DefaultBins)

	// Training defaults
	v.SetDefault("training.validation_split", 0.3)
	v.SetDefault("training.epochs", 2)
	v.SetDefault("training.batch_size", 32)
	v.SetDefault("training.optimizer", "adam")
	v.SetDefault("training.learning_rate", 0.0) // 0 keeps the optimizer's own default
	v.SetDefault("training.labels", []string{})

	// Capture defaults
	live := transcode.DefaultLiveDevice()
	v.SetDefault("capture.backend", live.Backend)
	v.SetDefault("capture.device", live.Device)
}

// Setup points v at the config file and environment. An empty file searches
// $HOME, $HOME/.config/micmon, /etc/micmon and ./configs for micmon.yaml.
func Setup(v *viper.Viper, file string) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
			v.AddConfigPath(filepath.Join(home, ".config", Name))
		}
		v.AddConfigPath(filepath.Join("/etc", Name))
		v.AddConfigPath("./configs")
		v.SetConfigName(Name)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
}

// Read loads the config file found by Setup. A missing file is not an error
// unless it was named explicitly.
func Read(v *viper.Viper) error {
	err := v.ReadInConfig()
	if err == nil {
		logging.Debug("Using config file", logging.Fields{"path": v.ConfigFileUsed()})
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	return errdefs.Configuration("config.Read", "cannot read config file", err)
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errdefs.Configuration("config.Load", "unable to decode configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errdefs.Configuration("config.Validate", fmt.Sprintf(format, args...), nil)
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return errdefs.Configuration("config.Validate", "invalid log level", err)
	}
	if c.Audio.SampleDuration <= 0 {
		return invalid("sample duration must be positive")
	}
	if c.Audio.SampleRate <= 0 {
		return invalid("sample rate must be positive")
	}
	if c.Audio.Channels <= 0 {
		return invalid("channels must be positive")
	}
	if c.Decoder.FFmpegBin == "" {
		return invalid("ffmpeg binary path is required")
	}
	if c.Decoder.StopTimeout <= 0 {
		return invalid("stop timeout must be positive")
	}
	if c.Features.LowFreq < 0 || c.Features.HighFreq <= c.Features.LowFreq {
		return invalid("invalid frequency band [%d, %d)", c.Features.LowFreq, c.Features.HighFreq)
	}
	if c.Features.Bins < 1 {
		return invalid("bins must be at least 1")
	}
	split := c.Training.ValidationSplit
	if math.IsNaN(split) || split < 0 || split >= 1 {
		return invalid("validation split must be in [0, 1): %v", split)
	}
	if c.Training.Epochs < 1 {
		return invalid("epochs must be at least 1")
	}
	if c.Training.LearningRate < 0 {
		return invalid("learning rate must not be negative")
	}
	if c.Training.BatchSize < 1 {
		return invalid("batch size must be at least 1")
	}
	return nil
}

// DecoderOptions returns the decoder settings for the transcode package.
func (c *Config) DecoderOptions() *transcode.DecoderConfig {
	return &transcode.DecoderConfig{
		FFmpegPath:  c.Decoder.FFmpegBin,
		FFplayPath:  c.Decoder.FFplayBin,
		StopTimeout: c.Decoder.StopTimeout,
		Debug:       c.Debug,
	}
}

// Format returns the decoded PCM format.
func (c *Config) Format() transcode.Format {
	return transcode.Format{SampleRate: c.Audio.SampleRate, Channels: c.Audio.Channels}
}

// SourceOptions returns chunking and decoder options for audio sources.
func (c *Config) SourceOptions() source.Options {
	return source.Options{
		SampleDuration: c.Audio.SampleDuration,
		Format:         c.Format(),
		Decoder:        c.DecoderOptions(),
	}
}

// DatagenOptions returns the options for dataset generation.
func (c *Config) DatagenOptions() datagen.Options {
	return datagen.Options{
		LowFreq:  c.Features.LowFreq,
		HighFreq: c.Features.HighFreq,
		Bins:     c.Features.Bins,
		Source:   c.SourceOptions(),
	}
}

// LiveDevice returns the configured capture device.
func (c *Config) LiveDevice() transcode.LiveDevice {
	return transcode.LiveDevice{Backend: c.Capture.Backend, Device: c.Capture.Device}
}
