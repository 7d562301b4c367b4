package source

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/RyanBlaney/micmon/errdefs"
	"github.com/RyanBlaney/micmon/labels"
	"github.com/RyanBlaney/micmon/transcode"
)

const (
	// AudioFileName is the audio file expected in a labeled sample directory.
	AudioFileName = "audio.mp3"
	// LabelsFileName is the label file expected next to it.
	LabelsFileName = "labels.json"
)

// YAML label files are accepted when labels.json is absent.
var labelsFileFallbacks = []string{"labels.yaml", "labels.yml"}

// Directory is a labeled sample: one audio file and one label file.
type Directory struct {
	Path       string
	AudioFile  string
	LabelsFile string
}

// ExpandPath resolves a leading ~ and returns an absolute path.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errdefs.Resource("source.ExpandPath", "cannot resolve home directory", err)
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// NewDirectory opens a labeled sample directory. A missing audio or label
// file is a resource error.
func NewDirectory(path string) (*Directory, error) {
	abs, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	d := &Directory{
		Path:      abs,
		AudioFile: filepath.Join(abs, AudioFileName),
	}
	if !isFile(d.AudioFile) {
		return nil, errdefs.Resource("source.NewDirectory", AudioFileName+" missing from "+abs, nil)
	}

	d.LabelsFile = findLabelsFile(abs)
	if d.LabelsFile == "" {
		return nil, errdefs.Resource("source.NewDirectory", LabelsFileName+" missing from "+abs, nil)
	}
	return d, nil
}

// Name is the base name of the directory.
func (d *Directory) Name() string {
	return filepath.Base(d.Path)
}

// Timeline parses the directory's label file.
func (d *Directory) Timeline() (*labels.Timeline, error) {
	return labels.ParseFile(d.LabelsFile)
}

// ScanDirectories returns every complete labeled sample directory directly
// under root, sorted by name. Incomplete directories are skipped.
func ScanDirectories(root string) ([]*Directory, error) {
	abs, err := ExpandPath(root)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, errdefs.Resource("source.ScanDirectories", "cannot read "+abs, err)
	}

	var dirs []*Directory
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(abs, entry.Name())
		if !isFile(filepath.Join(path, AudioFileName)) || findLabelsFile(path) == "" {
			continue
		}
		d, err := NewDirectory(path)
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, d)
	}

	slices.SortFunc(dirs, func(a, b *Directory) int {
		return strings.Compare(a.Path, b.Path)
	})
	return dirs, nil
}

// NewDirectorySource creates a file source for the directory's audio,
// labeled with its timeline.
func NewDirectorySource(d *Directory, opts Options) (*Source, error) {
	timeline, err := d.Timeline()
	if err != nil {
		return nil, err
	}
	return NewFileSource(transcode.StoredFile{Path: d.AudioFile}, timeline, opts)
}

func findLabelsFile(dir string) string {
	for _, name := range append([]string{LabelsFileName}, labelsFileFallbacks...) {
		if path := filepath.Join(dir, name); isFile(path) {
			return path
		}
	}
	return ""
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
