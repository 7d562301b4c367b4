package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/RyanBlaney/micmon/config"
	"github.com/RyanBlaney/micmon/logging"
	"github.com/RyanBlaney/micmon/transcode"
)

var (
	configFile string
	appConfig  *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "micmon",
	Short: "Sound detection from audio frequency spectra",
	Long: `micmon turns labeled audio recordings into frequency spectrum datasets,
trains a classifier on them and runs it against audio files or a live
capture device.

Typical workflow:
  micmon datagen ~/samples ~/datasets
  micmon train ~/datasets ~/models/baby-monitor
  micmon predict ~/models/baby-monitor`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeConfig()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	// interrupts cancel the context so running decoders are stopped
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "",
		"config file (default is $HOME/.config/micmon/micmon.yaml)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.Bool("debug", false, "show decoder diagnostics and debug logs")

	// Decoding flags shared by every command that reads audio
	pf.String("ffmpeg", "ffmpeg", "path to the ffmpeg executable")
	pf.String("ffplay", "ffplay", "path to the ffplay executable")
	pf.DurationP("sample-duration", "d", 0, "length of each audio segment (default 2s)")
	pf.IntP("sample-rate", "r", 0, "audio sample rate in Hz (default 44100)")
	pf.IntP("channels", "c", 0, "number of audio channels (default 1)")
	pf.String("backend", "", "capture backend for live input, e.g. alsa or pulse (default alsa)")
	pf.String("device", "", "capture device for live input (default plughw:0,1)")

	bindFlags(pf, map[string]string{
		"log-level":       "log_level",
		"debug":           "debug",
		"ffmpeg":          "decoder.ffmpeg_bin",
		"ffplay":          "decoder.ffplay_bin",
		"sample-duration": "audio.sample_duration",
		"sample-rate":     "audio.sample_rate",
		"channels":        "audio.channels",
		"backend":         "capture.backend",
		"device":          "capture.device",
	})
}

// initConfig points viper at the config file and environment
func initConfig() {
	config.Setup(viper.GetViper(), configFile)
}

// initializeConfig reads and validates the configuration once flags are parsed
func initializeConfig() error {
	v := viper.GetViper()
	if err := config.Read(v); err != nil {
		return err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if cfg.Debug {
		level = logging.DebugLevel
	}
	logging.SetLevel(level)

	appConfig = cfg
	return nil
}

// bindFlags binds each flag to its viper key. A flag only overrides the
// config file and environment when it is set on the command line.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

// requireDecoder fails early when the decoder binary cannot be found
func requireDecoder() error {
	return transcode.CheckBinary(appConfig.Decoder.FFmpegBin)
}
