// Package storage defines the FileStore interface that dataset archives and
// model bundles are read from and written to. Locations are either local
// directories or s3://bucket/prefix URLs.
package storage

import (
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/RyanBlaney/micmon/errdefs"
)

// FileStore is a minimal interface for file-oriented storage.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file for reading.
	// The caller must close the returned ReadCloser when done.
	// If the file does not exist, an error wrapping os.ErrNotExist is returned.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing.
	// If the file already exists it is truncated.
	// Parent directories are created automatically.
	// The caller must close the returned WriteCloser to flush data.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file.
	// If the file does not exist, Delete returns nil (idempotent).
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns the sorted paths of all files under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

const s3Scheme = "s3://"

// Open returns the store for location: an S3Store for s3://bucket[/prefix],
// otherwise a Local store rooted at the directory. S3 credentials and region
// come from the standard AWS environment and shared config files.
func Open(ctx context.Context, location string, optFns ...func(*s3.Options)) (FileStore, error) {
	if !strings.HasPrefix(location, s3Scheme) {
		return NewLocal(location)
	}

	bucket, prefix, _ := strings.Cut(strings.TrimPrefix(location, s3Scheme), "/")
	if bucket == "" {
		return nil, errdefs.Configuration("storage.Open", "missing bucket in "+location, nil)
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errdefs.Resource("storage.Open", "cannot load AWS configuration", err)
	}
	return NewS3(s3.NewFromConfig(cfg, optFns...), bucket, strings.Trim(prefix, "/")), nil
}

// IsRemote reports whether location names an object store rather than a
// local directory.
func IsRemote(location string) bool {
	return strings.HasPrefix(location, s3Scheme)
}
