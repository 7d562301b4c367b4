package dataset

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"github.com/RyanBlaney/micmon/errdefs"
)

// Archive member names. The layout matches numpy's savez_compressed, so the
// files load with numpy.load as well.
const (
	samplesMember = "samples.npy"
	classesMember = "classes.npy"
	cutoffMember  = "cutoff_frequencies.npy"

	// ArchiveExt is the file suffix of dataset archives.
	ArchiveExt = ".npz"
)

// Archive is the on-disk content of one dataset file.
type Archive struct {
	Samples [][]float64 // N rows of equal length
	Classes []int       // N label indices
	Cutoff  [2]int      // low and high frequency index
}

// WriteArchive writes a deflate-compressed npz archive to w.
func WriteArchive(w io.Writer, a *Archive) error {
	if len(a.Samples) != len(a.Classes) {
		return errdefs.DataIntegrity("dataset.WriteArchive",
			fmt.Sprintf("%d samples but %d classes", len(a.Samples), len(a.Classes)), nil)
	}

	var samples any = []float64{}
	if len(a.Samples) > 0 {
		bins := len(a.Samples[0])
		if bins == 0 {
			return errdefs.DataIntegrity("dataset.WriteArchive", "samples have no bins", nil)
		}
		dense := mat.NewDense(len(a.Samples), bins, nil)
		for i, row := range a.Samples {
			if len(row) != bins {
				return errdefs.DataIntegrity("dataset.WriteArchive",
					fmt.Sprintf("sample %d has %d bins, want %d", i, len(row), bins), nil)
			}
			dense.SetRow(i, row)
		}
		samples = dense
	}

	classes := make([]int64, len(a.Classes))
	for i, c := range a.Classes {
		classes[i] = int64(c)
	}

	zw := zip.NewWriter(w)
	members := []struct {
		name  string
		value any
	}{
		{samplesMember, samples},
		{classesMember, classes},
		{cutoffMember, []int64{int64(a.Cutoff[0]), int64(a.Cutoff[1])}},
	}

	for _, m := range members {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: m.name, Method: zip.Deflate})
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", m.name, err)
		}
		if err := npyio.Write(fw, m.value); err != nil {
			return fmt.Errorf("failed to encode %s: %w", m.name, err)
		}
	}

	return zw.Close()
}

// ReadArchive decodes an npz archive held in data.
func ReadArchive(data []byte) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errdefs.DataIntegrity("dataset.ReadArchive", "not a zip archive", err)
	}

	members := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		members[f.Name] = f
	}

	samples, shape, err := readFloats(members, samplesMember)
	if err != nil {
		return nil, err
	}
	classes, _, err := readInts(members, classesMember)
	if err != nil {
		return nil, err
	}
	cutoff, _, err := readInts(members, cutoffMember)
	if err != nil {
		return nil, err
	}

	if len(cutoff) != 2 {
		return nil, errdefs.DataIntegrity("dataset.ReadArchive",
			fmt.Sprintf("cutoff_frequencies has %d values, want 2", len(cutoff)), nil)
	}

	a := &Archive{
		Classes: classes,
		Cutoff:  [2]int{cutoff[0], cutoff[1]},
	}

	if len(samples) > 0 {
		if len(shape) != 2 {
			return nil, errdefs.DataIntegrity("dataset.ReadArchive",
				fmt.Sprintf("samples has shape %v, want 2 dimensions", shape), nil)
		}
		rows, cols := shape[0], shape[1]
		a.Samples = make([][]float64, rows)
		for i := range rows {
			a.Samples[i] = samples[i*cols : (i+1)*cols : (i+1)*cols]
		}
	}

	if len(a.Samples) != len(a.Classes) {
		return nil, errdefs.DataIntegrity("dataset.ReadArchive",
			fmt.Sprintf("%d samples but %d classes", len(a.Samples), len(a.Classes)), nil)
	}
	return a, nil
}

func openMember(members map[string]*zip.File, name string) (*npyio.Reader, func() error, error) {
	f, ok := members[name]
	if !ok {
		return nil, nil, errdefs.DataIntegrity("dataset.ReadArchive", "archive is missing "+name, nil)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, nil, errdefs.DataIntegrity("dataset.ReadArchive", "cannot open "+name, err)
	}
	r, err := npyio.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, nil, errdefs.DataIntegrity("dataset.ReadArchive", "invalid array "+name, err)
	}
	return r, rc.Close, nil
}

func readFloats(members map[string]*zip.File, name string) ([]float64, []int, error) {
	r, closeFn, err := openMember(members, name)
	if err != nil {
		return nil, nil, err
	}
	defer closeFn()

	var data []float64
	if err := r.Read(&data); err != nil {
		return nil, nil, errdefs.DataIntegrity("dataset.ReadArchive", "cannot decode "+name, err)
	}
	return data, r.Header.Descr.Shape, nil
}

func readInts(members map[string]*zip.File, name string) ([]int, []int, error) {
	r, closeFn, err := openMember(members, name)
	if err != nil {
		return nil, nil, err
	}
	defer closeFn()

	var data []int64
	if err := r.Read(&data); err != nil {
		return nil, nil, errdefs.DataIntegrity("dataset.ReadArchive", "cannot decode "+name, err)
	}

	out := make([]int, len(data))
	for i, v := range data {
		out[i] = int(v)
	}
	return out, r.Header.Descr.Shape, nil
}
