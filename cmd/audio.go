package cmd

import (
	"time"

	"github.com/RyanBlaney/micmon/labels"
	"github.com/RyanBlaney/micmon/logging"
	"github.com/RyanBlaney/micmon/source"
	"github.com/RyanBlaney/micmon/transcode"
)

// parseOffset accepts "[hh:]mm:ss[.fff]" or plain seconds. Empty is 0.
func parseOffset(s string) (time.Duration, error) {
	ms, err := labels.ParseTimestamp(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// openSource returns a file source for args[0], or the configured capture
// device when no file is given. start and duration only apply to files.
func openSource(args []string, start, duration string) (*source.Source, time.Duration, error) {
	if len(args) == 0 {
		if start != "" || duration != "" {
			logging.Warn("--start and --duration are ignored for live input")
		}
		src, err := source.NewLiveDevice(appConfig.LiveDevice(), appConfig.SourceOptions())
		return src, 0, err
	}

	path, err := source.ExpandPath(args[0])
	if err != nil {
		return nil, 0, err
	}
	offset, err := parseOffset(start)
	if err != nil {
		return nil, 0, err
	}
	length, err := parseOffset(duration)
	if err != nil {
		return nil, 0, err
	}

	src, err := source.NewFileSource(transcode.StoredFile{
		Path:     path,
		Start:    offset,
		Duration: length,
	}, nil, appConfig.SourceOptions())
	return src, offset, err
}
