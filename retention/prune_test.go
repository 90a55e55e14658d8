package retention_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stupid-simple/rotate/retention"
)

var base = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// writeAged creates dir/name with a modification time of base + age.
func writeAged(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(name), 0600))
	mtime := base.Add(age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func names(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	writeAged(t, dir, "db_2024-01-03.sql.gz", 3*time.Hour)
	writeAged(t, dir, "db_2024-01-01.sql.gz", 1*time.Hour)
	writeAged(t, dir, "db_2024-01-02.sql.gz", 2*time.Hour)
	writeAged(t, dir, "db_2024-01-01.sqlite3", 0)
	writeAged(t, dir, "db_replica_2024-01-01.sql.gz", 0)
	writeAged(t, dir, "media_2024-01-01.tar.gz", 0)
	writeAged(t, dir, ".db_2024-01-04.sql.gz.tmp-123", 0)

	entries, err := retention.List(dir, "db", "sql.gz")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "2024-01-01", entries[0].Pattern)
	assert.Equal(t, "2024-01-02", entries[1].Pattern)
	assert.Equal(t, "2024-01-03", entries[2].Pattern)
	assert.Equal(t, filepath.Join(dir, "db_2024-01-03.sql.gz"), entries[2].Path)
}

func TestList_SameModTime(t *testing.T) {
	dir := t.TempDir()
	writeAged(t, dir, "db_2024-01-02.sql.gz", 0)
	writeAged(t, dir, "db_2024-01-01.sql.gz", 0)

	entries, err := retention.List(dir, "db", "sql.gz")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2024-01-01", entries[0].Pattern)
}

func TestList_MissingDir(t *testing.T) {
	entries, err := retention.List(filepath.Join(t.TempDir(), "missing"), "db", "sql.gz")
	assert.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPrune(t *testing.T) {
	testCases := []struct {
		name     string
		keep     int
		expected []string
	}{
		{"keep two", 2, []string{"db_2024-01-02.sql.gz", "db_2024-01-03.sql.gz", "other_2024-01-01.sql.gz"}},
		{"keep more than present", 5, []string{"db_2024-01-01.sql.gz", "db_2024-01-02.sql.gz", "db_2024-01-03.sql.gz", "other_2024-01-01.sql.gz"}},
		{"keep exactly present", 3, []string{"db_2024-01-01.sql.gz", "db_2024-01-02.sql.gz", "db_2024-01-03.sql.gz", "other_2024-01-01.sql.gz"}},
		{"keep one", 1, []string{"db_2024-01-03.sql.gz", "other_2024-01-01.sql.gz"}},
		{"keep zero", 0, []string{"other_2024-01-01.sql.gz"}},
		{"keep negative", -3, []string{"other_2024-01-01.sql.gz"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeAged(t, dir, "db_2024-01-01.sql.gz", 1*time.Hour)
			writeAged(t, dir, "db_2024-01-02.sql.gz", 2*time.Hour)
			writeAged(t, dir, "db_2024-01-03.sql.gz", 3*time.Hour)
			writeAged(t, dir, "other_2024-01-01.sql.gz", 0)

			logger := zerolog.New(zerolog.NewTestWriter(t))
			res, err := retention.Prune(dir, "db", "sql.gz", tc.keep, logger)
			require.NoError(t, err)
			assert.Empty(t, res.Failed())
			assert.Equal(t, tc.expected, names(t, dir))
			assert.Equal(t, min(max(tc.keep, 0), 3), len(res.Kept))
			assert.Equal(t, 3-len(res.Kept), len(res.Deleted))
		})
	}
}

func TestPrune_NothingToDelete(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))

	res, err := retention.Prune(filepath.Join(t.TempDir(), "missing"), "db", "sql.gz", 0, logger)
	require.NoError(t, err)
	assert.Empty(t, res.Deleted)
	assert.Empty(t, res.Kept)
}

func TestPrune_DryRun(t *testing.T) {
	dir := t.TempDir()
	writeAged(t, dir, "db_2024-01-01.sql.gz", 1*time.Hour)
	writeAged(t, dir, "db_2024-01-02.sql.gz", 2*time.Hour)

	called := 0
	logger := zerolog.New(zerolog.NewTestWriter(t))
	res, err := retention.Prune(dir, "db", "sql.gz", 1, logger,
		retention.WithDryRun(true),
		retention.WithOnDelete(func(retention.Deletion) { called++ }),
	)
	require.NoError(t, err)
	assert.Len(t, res.Deleted, 1)
	assert.Len(t, names(t, dir), 2)
	assert.Zero(t, called)
}

func TestPrune_DryRunPending(t *testing.T) {
	dir := t.TempDir()
	writeAged(t, dir, "db_2024-01-01.sql.gz", 1*time.Hour)
	writeAged(t, dir, "db_2024-01-02.sql.gz", 2*time.Hour)
	pending := filepath.Join(dir, "db_2024-01-03.sql.gz")

	logger := zerolog.New(zerolog.NewTestWriter(t))
	res, err := retention.Prune(dir, "db", "sql.gz", 2, logger,
		retention.WithDryRun(true),
		retention.WithPending(pending, 42),
	)
	require.NoError(t, err)
	require.Len(t, res.Deleted, 1)
	assert.Equal(t, filepath.Join(dir, "db_2024-01-01.sql.gz"), res.Deleted[0].Path)
	require.Len(t, res.Kept, 2)
	assert.Equal(t, pending, res.Kept[1].Path)
	assert.Equal(t, "2024-01-03", res.Kept[1].Pattern)
	assert.Len(t, names(t, dir), 2)

	// Without a dry run the pending file is not counted.
	res, err = retention.Prune(dir, "db", "sql.gz", 2, logger, retention.WithPending(pending, 42))
	require.NoError(t, err)
	assert.Empty(t, res.Deleted)
	assert.Len(t, names(t, dir), 2)
}

func TestPrune_OnDelete(t *testing.T) {
	dir := t.TempDir()
	old := writeAged(t, dir, "db_2024-01-01.sql.gz", 1*time.Hour)
	writeAged(t, dir, "db_2024-01-02.sql.gz", 2*time.Hour)

	var deleted []string
	logger := zerolog.New(zerolog.NewTestWriter(t))
	res, err := retention.Prune(dir, "db", "sql.gz", 1, logger, retention.WithOnDelete(func(d retention.Deletion) {
		deleted = append(deleted, d.Path)
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{old}, deleted)
	assert.Equal(t, int64(len("db_2024-01-01.sql.gz")), res.FreedBytes())
}

func TestPrune_DeleteFailureContinues(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced")
	}

	dir := t.TempDir()
	writeAged(t, dir, "db_2024-01-01.sql.gz", 1*time.Hour)
	writeAged(t, dir, "db_2024-01-02.sql.gz", 2*time.Hour)
	writeAged(t, dir, "db_2024-01-03.sql.gz", 3*time.Hour)

	require.NoError(t, os.Chmod(dir, 0500))
	defer func() {
		_ = os.Chmod(dir, 0700)
	}()

	logger := zerolog.New(zerolog.NewTestWriter(t))
	res, err := retention.Prune(dir, "db", "sql.gz", 1, logger)
	require.NoError(t, err, "deletion failures are reported in the result")

	// Both candidates were attempted even though the first failed.
	require.Len(t, res.Deleted, 2)
	assert.Len(t, res.Failed(), 2)
	assert.Zero(t, res.FreedBytes())
	assert.Len(t, names(t, dir), 3)
}
