package producer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/stupid-simple/rotate/artifact"
	"github.com/stupid-simple/rotate/fileutils"
)

const (
	ExtSQLiteCopy = "sqlite3"
	ExtSQLDump    = "sql.gz"
	ExtMedia      = "tar.gz"

	MediaLogicalName = "media"
)

// ErrUnsupportedEngine is returned for database engines no producer can
// back up.
var ErrUnsupportedEngine = errors.New("unsupported database engine")

// Producer creates a fresh artifact for one resource.
type Producer interface {
	// Name returns the identity of the produced artifacts. The pattern is
	// left empty.
	Name() artifact.Name
	// Produce writes the artifact for pattern into dir. The returned
	// artifact is closed and will not change anymore.
	Produce(ctx context.Context, dir, pattern string) (artifact.Artifact, error)
}

// Error reports a resource that could not be produced.
type Error struct {
	Producer string
	Logical  string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s producer for %s: %v", e.Producer, e.Logical, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// writeArtifact runs write against a hidden temporary file in dir and
// moves the result to its final name once write succeeded. A failed write
// leaves nothing behind.
func writeArtifact(dir string, name artifact.Name, write func(w io.Writer) error) (a artifact.Artifact, err error) {
	if err := name.Validate(); err != nil {
		return artifact.Artifact{}, err
	}
	dst := name.Path(dir)
	if fileutils.Exists(dst) {
		return artifact.Artifact{}, fmt.Errorf("file or directory already exists with this name: %s", dst)
	}

	tmp, err := fileutils.CreateTemp(dir, name.String())
	if err != nil {
		return artifact.Artifact{}, err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return artifact.Artifact{}, err
	}
	if err = tmp.Sync(); err != nil {
		return artifact.Artifact{}, err
	}
	if err = tmp.Close(); err != nil {
		return artifact.Artifact{}, err
	}
	if err = fileutils.Commit(tmp.Name(), dst); err != nil {
		return artifact.Artifact{}, err
	}

	return artifact.NewFromFS(dst, name)
}

// gzipped wraps write so its output is gzip compressed.
func gzipped(write func(w io.Writer) error) func(w io.Writer) error {
	return func(w io.Writer) error {
		gz := gzip.NewWriter(w)
		if err := write(gz); err != nil {
			_ = gz.Close()
			return err
		}
		return gz.Close()
	}
}

// Kind returns a short name for the producer variant, used in reports and
// metrics labels.
func Kind(p Producer) string {
	switch p.(type) {
	case *SQLiteCopy:
		return "sqlite_copy"
	case *SQLiteDump:
		return "sqlite_dump"
	case *PostgresDump:
		return "postgres_dump"
	case *MediaArchive:
		return "media"
	case *File:
		return "file"
	default:
		return "unknown"
	}
}
