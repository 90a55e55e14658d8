package fileutils

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyFile copies src to dst byte for byte and returns the number of bytes
// written. The data is written to a hidden temporary file next to dst and
// renamed into place, so dst either does not exist or is complete.
func CopyFile(src, dst string) (written int64, err error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = in.Close()
	}()

	tmp, err := CreateTemp(filepath.Dir(dst), filepath.Base(dst))
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	written, err = io.Copy(tmp, in)
	if err != nil {
		return 0, fmt.Errorf("could not copy %s: %w", src, err)
	}
	if err = tmp.Sync(); err != nil {
		return 0, err
	}
	if err = tmp.Close(); err != nil {
		return 0, err
	}

	return written, Commit(tmp.Name(), dst)
}

// CreateTemp creates a hidden temporary file in dir for the final file name.
// Hidden names never match an artifact name.
func CreateTemp(dir, name string) (*os.File, error) {
	return os.CreateTemp(dir, "."+name+".tmp-*")
}

// Commit moves a finished temporary file to its final path, refusing to
// replace an existing file.
func Commit(tmpPath, dst string) error {
	if Exists(dst) {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("file or directory already exists with this name: %s", dst)
	}
	if err := os.Chmod(tmpPath, 0640); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Exists reports whether something is present at path.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
