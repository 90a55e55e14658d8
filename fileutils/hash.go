package fileutils

import (
	"errors"
	"io"
	"os"

	"github.com/cespare/xxhash"
)

// ComputeHash returns the hash of the reader.
// It will read the entire contents of the reader. It will not close the reader.
func ComputeHash(r io.Reader) (uint64, error) {
	hash := xxhash.New()
	_, err := io.Copy(hash, r)
	if err != nil {
		return 0, err
	}
	return hash.Sum64(), nil
}

// ComputeFileHash returns the hash of the file at path.
func ComputeFileHash(path string) (hash uint64, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}

	defer func() {
		closeErr := file.Close()
		err = errors.Join(err, closeErr)
	}()

	return ComputeHash(file)
}

// SameContent compares two files by hash and returns the hash of a.
func SameContent(a, b string) (uint64, bool, error) {
	ha, err := ComputeFileHash(a)
	if err != nil {
		return 0, false, err
	}
	hb, err := ComputeFileHash(b)
	if err != nil {
		return 0, false, err
	}
	return ha, ha == hb, nil
}
