package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/micmon/datagen"
	"github.com/RyanBlaney/micmon/storage"
)

var datagenCmd = &cobra.Command{
	Use:   "datagen <audio_dir> <dataset_dir>",
	Short: "Create spectrum datasets from labeled audio samples",
	Long: `Create compressed .npz dataset files with audio spectrum data from a set
of labeled raw audio files.

audio_dir holds one sub-directory per labeled audio sample:

  audio_dir/
    train_sample_1/
      audio.mp3
      labels.json
    train_sample_2/
      audio.mp3
      labels.json

labels.json maps timestamps to labels. Every segment from a timestamp up to
the next entry, or the end of the file, gets that label:

  {
    "00:00": "negative",
    "02:13": "positive",
    "04:57": "negative"
  }

labels.yaml with the same shape is accepted instead.

dataset_dir receives one <sample>.npz per sample directory. It may be a
local directory or an s3://bucket/prefix URL.`,
	Args: cobra.ExactArgs(2),
	RunE: runDatagen,
}

func init() {
	rootCmd.AddCommand(datagenCmd)

	f := datagenCmd.Flags()
	f.Int("low", 0, "lowest frequency index of the spectrum (default 20)")
	f.Int("high", 0, "highest frequency index of the spectrum (default 20000)")
	f.IntP("bins", "b", 0, "number of frequency bins (default 100)")

	bindFlags(f, map[string]string{
		"low":  "features.low_freq",
		"high": "features.high_freq",
		"bins": "features.bins",
	})
}

func runDatagen(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := requireDecoder(); err != nil {
		return err
	}

	out, err := storage.Open(ctx, args[1])
	if err != nil {
		return err
	}

	results, err := datagen.Generate(ctx, args[0], out, appConfig.DatagenOptions())
	printResults(cmd.OutOrStdout(), results)
	if err != nil {
		return fmt.Errorf("dataset generation incomplete: %w", err)
	}
	return nil
}

func printResults(w io.Writer, results []datagen.Result) {
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "FAIL  %s: %v\n", r.Directory, r.Err)
			continue
		}
		fmt.Fprintf(w, "OK    %s -> %s (%d samples)\n", r.Directory, r.Archive, r.Rows)
	}
}
