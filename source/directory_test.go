//go:build !windows

package source

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/micmon/errdefs"
	"github.com/RyanBlaney/micmon/transcode/transcodetest"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func sampleTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "b-json", AudioFileName), "audio")
	writeFile(t, filepath.Join(root, "b-json", LabelsFileName), `{"00:00": "negative", "00:05": "positive"}`)

	writeFile(t, filepath.Join(root, "a-yaml", AudioFileName), "audio")
	writeFile(t, filepath.Join(root, "a-yaml", "labels.yaml"), "\"00:00\": quiet\n\"00:04\": cry\n")

	writeFile(t, filepath.Join(root, "no-labels", AudioFileName), "audio")
	writeFile(t, filepath.Join(root, "no-audio", LabelsFileName), `{}`)
	writeFile(t, filepath.Join(root, "stray.txt"), "not a directory")

	return root
}

func TestScanDirectories(t *testing.T) {
	root := sampleTree(t)

	dirs, err := ScanDirectories(root)
	require.NoError(t, err)
	require.Len(t, dirs, 2)

	assert.Equal(t, "a-yaml", dirs[0].Name())
	assert.Equal(t, filepath.Join(root, "a-yaml", "labels.yaml"), dirs[0].LabelsFile)
	assert.Equal(t, "b-json", dirs[1].Name())
	assert.Equal(t, filepath.Join(root, "b-json", AudioFileName), dirs[1].AudioFile)
}

func TestScanMissingRoot(t *testing.T) {
	_, err := ScanDirectories(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, errors.Is(err, errdefs.ErrResource))
}

func TestNewDirectoryMissingFiles(t *testing.T) {
	root := sampleTree(t)

	_, err := NewDirectory(filepath.Join(root, "no-labels"))
	assert.True(t, errors.Is(err, errdefs.ErrResource))

	_, err = NewDirectory(filepath.Join(root, "no-audio"))
	assert.True(t, errors.Is(err, errdefs.ErrResource))
}

func TestDirectoryTimeline(t *testing.T) {
	root := sampleTree(t)

	d, err := NewDirectory(filepath.Join(root, "a-yaml"))
	require.NoError(t, err)

	timeline, err := d.Timeline()
	require.NoError(t, err)
	assert.Equal(t, []string{"cry", "quiet"}, timeline.Vocabulary().Names())
}

func TestNewDirectorySource(t *testing.T) {
	opts := testOptions(transcodetest.Use(t, transcodetest.ModeTone))
	root := sampleTree(t)

	d, err := NewDirectory(filepath.Join(root, "b-json"))
	require.NoError(t, err)

	src, err := NewDirectorySource(d, opts)
	require.NoError(t, err)

	// the fake decoder emits one second when no duration is given
	segs := collect(t, src)
	require.Len(t, segs, 1)
	assert.InDelta(t, time.Second.Seconds(), segs[0].Duration(), 1e-9)
	assert.Equal(t, []int{0}, labelsOf(segs))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/samples")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "samples"), got)

	got, err = ExpandPath("relative")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}
