package fileutils_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stupid-simple/rotate/fileutils"
)

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.sql.gz")
	dst := filepath.Join(dir, "out", "dst.sql.gz")
	require.NoError(t, os.WriteFile(src, data, 0600))
	require.NoError(t, os.Mkdir(filepath.Dir(dst), 0750))

	n, err := fileutils.CopyFile(src, dst)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, same, err := fileutils.SameContent(src, dst)
	require.NoError(t, err)
	assert.True(t, same)

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestCopyFile_Existing(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, data, 0600))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0600))

	_, err := fileutils.CopyFile(src, dst)
	assert.Error(t, err)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "."), "leftover temporary file %s", e.Name())
	}
}

func TestCopyFile_MissingDestinationDir(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.WriteFile(src, data, 0600))

	_, err := fileutils.CopyFile(src, filepath.Join(dir, "nope", "dst"))
	assert.Error(t, err)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(path, data, 0600))

	assert.True(t, fileutils.Exists(path))
	assert.True(t, fileutils.Exists(dir))
	assert.False(t, fileutils.Exists(filepath.Join(dir, "missing")))
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	created, err := fileutils.EnsureDir(dir)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, fileutils.VerifyWritable(dir))

	created, err = fileutils.EnsureDir(dir)
	require.NoError(t, err)
	assert.False(t, created)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, data, 0600))
	_, err = fileutils.EnsureDir(file)
	assert.Error(t, err)
}
