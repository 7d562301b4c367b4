// Package datagen turns a tree of labeled audio samples into dataset archives,
// one archive per sample directory.
package datagen

import (
	"context"
	"errors"
	"fmt"

	"github.com/RyanBlaney/micmon/dataset"
	"github.com/RyanBlaney/micmon/errdefs"
	"github.com/RyanBlaney/micmon/logging"
	"github.com/RyanBlaney/micmon/segment"
	"github.com/RyanBlaney/micmon/source"
	"github.com/RyanBlaney/micmon/storage"
)

// Options controls feature extraction and decoding.
type Options struct {
	LowFreq  int
	HighFreq int
	Bins     int
	Source   source.Options
}

// DefaultOptions returns the audible band, 100 bins and the default source options.
func DefaultOptions() Options {
	return Options{
		LowFreq:  segment.DefaultLowFreq,
		HighFreq: segment.DefaultHighFreq,
		Bins:     segment.DefaultBins,
		Source:   source.DefaultOptions(),
	}
}

// Result summarizes one sample directory.
type Result struct {
	Directory string
	Archive   string
	Rows      int
	Err       error
}

// Generate scans audioDir for labeled sample directories and writes
// <name>.npz for each of them to out. A failing directory is logged and
// skipped; the failures are returned joined once every directory has been
// tried.
func Generate(ctx context.Context, audioDir string, out storage.FileStore, opts Options) ([]Result, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "datagen",
		"function":  "Generate",
	})

	dirs, err := source.ScanDirectories(audioDir)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		logger.Warn("No labeled sample directories found", logging.Fields{"audio_dir": audioDir})
		return nil, nil
	}

	results := make([]Result, 0, len(dirs))
	var errs []error
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		logger.Info("Processing audio sample", logging.Fields{"path": dir.Path})
		res := processDirectory(ctx, dir, out, opts)
		if res.Err != nil {
			logger.Error(res.Err, "Failed to process audio sample", logging.Fields{"path": dir.Path})
			errs = append(errs, fmt.Errorf("%s: %w", dir.Name(), res.Err))
		} else {
			logger.Info("Dataset written", logging.Fields{
				"archive": res.Archive,
				"rows":    res.Rows,
			})
		}
		results = append(results, res)
	}

	return results, errors.Join(errs...)
}

// ArchiveName is the dataset archive written for a sample directory.
func ArchiveName(dir *source.Directory) string {
	return dir.Name() + dataset.ArchiveExt
}

func processDirectory(ctx context.Context, dir *source.Directory, out storage.FileStore, opts Options) Result {
	res := Result{Directory: dir.Path, Archive: ArchiveName(dir)}

	src, err := source.NewDirectorySource(dir, opts.Source)
	if err != nil {
		res.Err = err
		return res
	}
	writer, err := dataset.NewWriter(out, res.Archive, opts.LowFreq, opts.HighFreq, opts.Bins)
	if err != nil {
		res.Err = err
		return res
	}

	err = source.Run(ctx, src, func(s *source.Source) error {
		for seg, err := range s.Segments() {
			if err != nil {
				return err
			}
			// a segment before the first label entry has no class to train on
			if err := writer.Add(seg); err != nil {
				return fmt.Errorf("segment %d of %s: %w", writer.Len(), dir.AudioFile, err)
			}
		}
		return s.Err()
	})
	if err != nil {
		res.Err = err
		return res
	}

	res.Rows = writer.Len()
	if res.Rows == 0 {
		res.Err = errdefs.DataIntegrity("datagen.Generate", "no segments decoded from "+dir.AudioFile, nil)
		return res
	}
	res.Err = writer.Flush(ctx)
	return res
}
