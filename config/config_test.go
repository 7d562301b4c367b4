package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/micmon/errdefs"
)

func newViper(t *testing.T, file string) *viper.Viper {
	t.Helper()
	v := viper.New()
	Setup(v, file)
	require.NoError(t, Read(v))
	return v
}

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Audio.SampleDuration)
	assert.Equal(t, 44100, cfg.Audio.SampleRate)
	assert.Equal(t, 1, cfg.Audio.Channels)
	assert.Equal(t, "ffmpeg", cfg.Decoder.FFmpegBin)
	assert.Equal(t, "ffplay", cfg.Decoder.FFplayBin)
	assert.Equal(t, 5*time.Second, cfg.Decoder.StopTimeout)
	assert.Equal(t, 20, cfg.Features.LowFreq)
	assert.Equal(t, 20000, cfg.Features.HighFreq)
	assert.Equal(t, 100, cfg.Features.Bins)
	assert.Equal(t, 0.3, cfg.Training.ValidationSplit)
	assert.Equal(t, 2, cfg.Training.Epochs)
	assert.Equal(t, "alsa", cfg.Capture.Backend)
	assert.Equal(t, "plughw:0,1", cfg.Capture.Device)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "micmon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
audio:
  sample_duration: 500ms
  sample_rate: 8000
features:
  bins: 20
training:
  labels: [negative, positive]
`), 0o644))
	t.Setenv("MICMON_AUDIO_CHANNELS", "2")

	cfg, err := Load(newViper(t, path))
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.Audio.SampleDuration)
	assert.Equal(t, 8000, cfg.Audio.SampleRate)
	assert.Equal(t, 2, cfg.Audio.Channels)
	assert.Equal(t, 20, cfg.Features.Bins)
	assert.Equal(t, []string{"negative", "positive"}, cfg.Training.Labels)

	opts := cfg.SourceOptions()
	assert.Equal(t, 500*time.Millisecond, opts.SampleDuration)
	assert.Equal(t, 8000, opts.Format.SampleRate)
	assert.Equal(t, "ffmpeg", opts.Decoder.FFmpegPath)

	gen := cfg.DatagenOptions()
	assert.Equal(t, 20, gen.Bins)
}

func TestMissingExplicitFile(t *testing.T) {
	v := viper.New()
	Setup(v, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, Read(v), errdefs.ErrConfiguration)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		v := viper.New()
		SetDefaults(v)
		cfg, err := Load(v)
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"duration", func(c *Config) { c.Audio.SampleDuration = 0 }},
		{"rate", func(c *Config) { c.Audio.SampleRate = -1 }},
		{"channels", func(c *Config) { c.Audio.Channels = 0 }},
		{"ffmpeg", func(c *Config) { c.Decoder.FFmpegBin = "" }},
		{"stop timeout", func(c *Config) { c.Decoder.StopTimeout = 0 }},
		{"band", func(c *Config) { c.Features.HighFreq = c.Features.LowFreq }},
		{"bins", func(c *Config) { c.Features.Bins = 0 }},
		{"split", func(c *Config) { c.Training.ValidationSplit = 1 }},
		{"epochs", func(c *Config) { c.Training.Epochs = 0 }},
		{"batch", func(c *Config) { c.Training.BatchSize = 0 }},
		{"learning rate", func(c *Config) { c.Training.LearningRate = -0.1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), errdefs.ErrConfiguration)
		})
	}
}

func TestYAMLOutput(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	cfg, err := Load(v)
	require.NoError(t, err)

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "sample_duration: 2s")
	assert.Contains(t, string(out), "ffmpeg_bin: ffmpeg")
}
