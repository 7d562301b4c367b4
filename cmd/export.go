package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/micmon/errdefs"
	"github.com/RyanBlaney/micmon/source"
)

const unlabeledDir = "unlabeled"

var exportCmd = &cobra.Command{
	Use:   "export <sample_dir> <out_dir>",
	Short: "Write every segment of a labeled sample as a WAV file",
	Long: `Split the audio of a labeled sample directory into segments and write each
one to out_dir/<label>/<sample>-<index>.wav. Segments before the first label
entry go to out_dir/unlabeled. Handy for listening to what each label
actually contains before training.`,
	Args: cobra.ExactArgs(2),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if err := requireDecoder(); err != nil {
		return err
	}

	dir, err := source.NewDirectory(args[0])
	if err != nil {
		return err
	}
	outDir, err := source.ExpandPath(args[1])
	if err != nil {
		return err
	}
	src, err := source.NewDirectorySource(dir, appConfig.SourceOptions())
	if err != nil {
		return err
	}

	return source.Run(cmd.Context(), src, func(s *source.Source) error {
		n, err := exportSegments(s, dir.Name(), outDir)
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d segments to %s\n", n, outDir)
		return err
	})
}

// exportSegments writes each segment of s under outDir and returns how many
// were written.
func exportSegments(s *source.Source, name, outDir string) (int, error) {
	n := 0
	for seg, err := range s.Segments() {
		if err != nil {
			return n, err
		}

		label := unlabeledDir
		if index, ok := seg.Label(); ok {
			if label, ok = s.Vocabulary().Name(index); !ok {
				return n, errdefs.DataIntegrity("export", fmt.Sprintf("label index %d out of range", index), nil)
			}
		}

		path := filepath.Join(outDir, label, fmt.Sprintf("%s-%04d.wav", name, n))
		if err := writeWAV(path, seg.WriteWAV); err != nil {
			return n, err
		}
		n++
	}
	return n, s.Err()
}

func writeWAV(path string, encode func(io.WriteSeeker) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errdefs.Resource("export", "cannot create "+filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return errdefs.Resource("export", "cannot create "+path, err)
	}

	err = encode(f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errdefs.Resource("export", "cannot write "+path, err)
	}
	return nil
}
