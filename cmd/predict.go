package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/micmon/logging"
	"github.com/RyanBlaney/micmon/model"
	"github.com/RyanBlaney/micmon/source"
	"github.com/RyanBlaney/micmon/storage"
)

var (
	predictStart    string
	predictDuration string
)

var predictCmd = &cobra.Command{
	Use:   "predict <model_dir> [audio_file]",
	Short: "Classify audio segments with a trained model",
	Long: `Load a model saved by train and print a prediction for every audio
segment, prefixed by the segment's start time in seconds.

Without audio_file the configured capture device is used (--backend and
--device). Capture is paused while each segment is classified.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPredict,
}

func init() {
	rootCmd.AddCommand(predictCmd)

	predictCmd.Flags().StringVar(&predictStart, "start", "", "start offset in the audio file, e.g. 01:00 or 60")
	predictCmd.Flags().StringVar(&predictDuration, "duration", "", "length of audio to read, e.g. 10:00 (default until the end)")
}

func runPredict(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := requireDecoder(); err != nil {
		return err
	}

	store, err := storage.Open(ctx, args[0])
	if err != nil {
		return err
	}
	clf, err := model.Load(ctx, store)
	if err != nil {
		return err
	}

	src, offset, err := openSource(args[1:], predictStart, predictDuration)
	if err != nil {
		return err
	}

	return source.Run(ctx, src, func(s *source.Source) error {
		return predictSegments(s, clf, offset, cmd.OutOrStdout())
	})
}

// predictSegments prints "<seconds>: <prediction>" for every segment of s,
// pausing the decoder while the model runs.
func predictSegments(s *source.Source, clf *model.Classifier, offset time.Duration, w io.Writer) error {
	seconds := offset.Seconds()
	for seg, err := range s.Segments() {
		if err != nil {
			return err
		}

		if err := s.Pause(); err != nil {
			logging.Debug("Pause not supported", logging.Fields{"error": err.Error()})
		}
		prediction, err := clf.Predict(seg)
		if resumeErr := s.Resume(); resumeErr != nil {
			logging.Debug("Resume not supported", logging.Fields{"error": resumeErr.Error()})
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "%.2f: %s\n", seconds, prediction)
		seconds += seg.Duration()
	}
	return s.Err()
}
