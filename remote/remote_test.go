package remote_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stupid-simple/rotate/config"
	"github.com/stupid-simple/rotate/remote"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-rsync")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0700))
	return path
}

func TestRsync_Command(t *testing.T) {
	r := &remote.Rsync{Host: "backup.example.com", User: "drb", RemotePath: "/srv/backups"}
	cmd := r.Command(context.Background(), "/tmp/key", "/var/backups")

	assert.Equal(t, []string{
		"rsync", "-avz",
		"-e", "ssh -i '/tmp/key' -o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null",
		"/var/backups", "drb@backup.example.com:/srv/backups", "--stats",
	}, cmd.Args)
}

func TestRsync_Sync(t *testing.T) {
	// The key is written to a temporary folder whose path has spaces.
	tmp := filepath.Join(t.TempDir(), "tmp dir")
	require.NoError(t, os.MkdirAll(tmp, 0700))
	t.Setenv("TMPDIR", tmp)

	out := t.TempDir()
	binary := writeScript(t, `
printf '%s\n' "$@" > "`+out+`/args"
key=$(echo "$3" | sed "s/^ssh -i '\\([^']*\\)' .*/\\1/")
echo "$key" > "`+out+`/keypath"
cat "$key" > "`+out+`/key"
stat -c %a "$key" > "`+out+`/mode"
echo "Number of files: 3"
`)

	r := &remote.Rsync{
		Host:       "backup.example.com",
		User:       "drb",
		RemotePath: "/srv/backups",
		SSHKey:     "-----BEGIN KEY-----",
		Binary:     binary,
		Logger:     zerolog.New(zerolog.NewTestWriter(t)),
	}
	root := t.TempDir()
	require.NoError(t, r.Sync(context.Background(), root))

	args, err := os.ReadFile(filepath.Join(out, "args"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(args)), "\n")
	assert.Equal(t, root, lines[3])
	assert.Equal(t, "drb@backup.example.com:/srv/backups", lines[4])

	key, err := os.ReadFile(filepath.Join(out, "key"))
	require.NoError(t, err)
	assert.Equal(t, "-----BEGIN KEY-----\n", string(key))

	mode, err := os.ReadFile(filepath.Join(out, "mode"))
	require.NoError(t, err)
	assert.Equal(t, "600", strings.TrimSpace(string(mode)))

	keyPath, err := os.ReadFile(filepath.Join(out, "keypath"))
	require.NoError(t, err)
	assert.Equal(t, tmp, filepath.Dir(strings.TrimSpace(string(keyPath))))
	assert.NoFileExists(t, strings.TrimSpace(string(keyPath)), "key file is removed after the sync")
}

func TestRsync_Failure(t *testing.T) {
	r := &remote.Rsync{
		Host:       "backup.example.com",
		User:       "drb",
		RemotePath: "/srv/backups",
		SSHKey:     "key",
		Binary:     writeScript(t, "echo 'connection refused' >&2\nexit 12\n"),
		Logger:     zerolog.New(zerolog.NewTestWriter(t)),
	}
	err := r.Sync(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    []string
	failPut string
}

func (f *fakeObjects) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(in.Key)
	if key == f.failPut {
		return nil, errors.New("access denied")
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.puts = append(f.puts, key)
	return &s3.PutObjectOutput{}, nil
}

func setupTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range map[string]string{
		"hourly/db_2024-01-01_10.sql.gz":  "hourly",
		"daily/db_2024-01-01.sql.gz":      "daily",
		"weekly/db_2024-01.sql.gz":        "weekly",
		"daily/.db_2024-01-02.sql.gz.tmp": "partial",
	} {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	}
	return root
}

func TestS3Mirror_Sync(t *testing.T) {
	root := setupTree(t)
	api := &fakeObjects{objects: map[string][]byte{
		"site/daily/db_2024-01-01.sql.gz": []byte("daily"),
		"site/weekly/db_2024-01.sql.gz":   []byte("stale content"),
		"site/monthly/db_2023-12.sql.gz":  []byte("kept"),
	}}
	m := &remote.S3Mirror{API: api, Bucket: "backups", Prefix: "site", Logger: zerolog.New(zerolog.NewTestWriter(t))}

	require.NoError(t, m.Sync(context.Background(), root))

	assert.ElementsMatch(t, []string{
		"site/hourly/db_2024-01-01_10.sql.gz",
		"site/weekly/db_2024-01.sql.gz",
	}, api.puts)
	assert.Equal(t, []byte("weekly"), api.objects["site/weekly/db_2024-01.sql.gz"])
	assert.Contains(t, api.objects, "site/monthly/db_2023-12.sql.gz", "remote objects are never deleted")
	assert.NotContains(t, api.objects, "site/daily/.db_2024-01-02.sql.gz.tmp")

	// Nothing changed, nothing is uploaded.
	api.puts = nil
	require.NoError(t, m.Sync(context.Background(), root))
	assert.Empty(t, api.puts)
}

func TestS3Mirror_Key(t *testing.T) {
	m := &remote.S3Mirror{}
	assert.Equal(t, "daily/db_2024-01-01.sql.gz", m.Key(filepath.Join("daily", "db_2024-01-01.sql.gz")))
	m.Prefix = "a/b"
	assert.Equal(t, "a/b/daily/x.sql.gz", m.Key(filepath.Join("daily", "x.sql.gz")))
}

func TestS3Mirror_UploadFailure(t *testing.T) {
	root := setupTree(t)
	api := &fakeObjects{objects: map[string][]byte{}, failPut: "daily/db_2024-01-01.sql.gz"}
	m := &remote.S3Mirror{API: api, Bucket: "backups", Logger: zerolog.New(zerolog.NewTestWriter(t))}

	err := m.Sync(context.Background(), root)
	require.Error(t, err)
	// The other files are still uploaded.
	assert.Len(t, api.puts, 2)
}

func TestS3Mirror_Cancelled(t *testing.T) {
	root := setupTree(t)
	api := &fakeObjects{objects: map[string][]byte{}}
	m := &remote.S3Mirror{API: api, Bucket: "backups", Logger: zerolog.New(zerolog.NewTestWriter(t))}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Sync(ctx, root), context.Canceled)
	assert.Empty(t, api.puts)
}

func TestFromConfig(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))

	syncers, err := remote.FromConfig(context.Background(), config.Remote{}, logger)
	require.NoError(t, err)
	assert.Empty(t, syncers)

	syncers, err = remote.FromConfig(context.Background(), config.Remote{
		Rsync: config.Rsync{Enabled: true, Host: "h", User: "u", RemotePath: "/p", SSHKey: "k"},
		S3: config.S3{
			Enabled:        true,
			Bucket:         "backups",
			Endpoint:       "http://127.0.0.1:8333",
			AccessKey:      "access",
			SecretKey:      "secret",
			ForcePathStyle: true,
		},
	}, logger)
	require.NoError(t, err)
	require.Len(t, syncers, 2)
	assert.Equal(t, "rsync", syncers[0].Name())
	assert.Equal(t, "s3", syncers[1].Name())
}
