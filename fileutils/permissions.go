package fileutils

import (
	"fmt"
	"os"
)

// Returns nil if dirPath is a directory and is writable.
func VerifyWritable(dirPath string) error {
	fil, err := os.CreateTemp(dirPath, ".write-check-*")
	if err != nil {
		return err
	}
	err = fil.Close()
	if err != nil {
		return err
	}
	return os.Remove(fil.Name())
}

// EnsureDir creates dirPath and its parents when missing and checks that the
// result is a writable directory.
func EnsureDir(dirPath string) (created bool, err error) {
	info, err := os.Stat(dirPath)
	switch {
	case err == nil && !info.IsDir():
		return false, fmt.Errorf("%s exists and is not a directory", dirPath)
	case err == nil:
		return false, nil
	case !os.IsNotExist(err):
		return false, err
	}

	if err := os.MkdirAll(dirPath, 0750); err != nil {
		return false, err
	}
	return true, nil
}
