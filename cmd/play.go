package cmd

import (
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/micmon/source"
	"github.com/RyanBlaney/micmon/transcode"
)

var (
	playStart    string
	playDuration string
)

var playCmd = &cobra.Command{
	Use:   "play [audio_file]",
	Short: "Play audio segment by segment through ffplay",
	Long: `Decode audio_file, or the configured capture device, into segments the
same way datagen and predict do and play them back. Useful to check what the
model hears at a given sample rate and channel count.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().StringVar(&playStart, "start", "", "start offset in the audio file")
	playCmd.Flags().StringVar(&playDuration, "duration", "", "length of audio to play")
}

func runPlay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := requireDecoder(); err != nil {
		return err
	}
	if err := transcode.CheckBinary(appConfig.Decoder.FFplayBin); err != nil {
		return err
	}

	src, _, err := openSource(args, playStart, playDuration)
	if err != nil {
		return err
	}

	player := transcode.NewPlayer(appConfig.DecoderOptions(), appConfig.Format(), nil)
	if err := player.Start(ctx); err != nil {
		return err
	}
	defer player.Stop()

	return source.Run(ctx, src, func(s *source.Source) error {
		return playSegments(s, player)
	})
}

func playSegments(s *source.Source, player *transcode.Player) error {
	for seg, err := range s.Segments() {
		if err != nil {
			return err
		}
		if err := player.Play(seg); err != nil {
			return err
		}
	}
	return s.Err()
}
