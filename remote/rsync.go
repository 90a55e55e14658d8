package remote

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultRsyncBinary = "rsync"

// Rsync pushes the archive tree to a remote host over ssh.
type Rsync struct {
	Host       string
	User       string
	RemotePath string
	// Private key content, not a path.
	SSHKey string
	Binary string
	Logger zerolog.Logger
}

func (r *Rsync) Name() string {
	return "rsync"
}

// Command returns the rsync invocation that uses the key stored at keyPath.
func (r *Rsync) Command(ctx context.Context, keyPath, root string) *exec.Cmd {
	binary := r.Binary
	if binary == "" {
		binary = defaultRsyncBinary
	}
	// rsync splits the remote shell command on spaces unless quoted.
	ssh := fmt.Sprintf("ssh -i %s -o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null", shellQuote(keyPath))
	target := fmt.Sprintf("%s@%s:%s", r.User, r.Host, r.RemotePath)
	return exec.CommandContext(ctx, binary, "-avz", "-e", ssh, root, target, "--stats")
}

func (r *Rsync) Sync(ctx context.Context, root string) error {
	keyPath, err := writeKey(r.SSHKey)
	if err != nil {
		return fmt.Errorf("could not write ssh key: %w", err)
	}
	defer func() {
		if err := os.Remove(keyPath); err != nil {
			r.Logger.Warn().Err(err).Msg("could not remove temporary ssh key")
		}
	}()

	startTime := time.Now()
	r.Logger.Info().Str("host", r.Host).Str("remote_path", r.RemotePath).Msg("start remote sync")

	var out bytes.Buffer
	cmd := r.Command(ctx, keyPath, root)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("rsync failed: %w: %s", err, strings.TrimSpace(out.String()))
	}

	r.Logger.Info().
		Str("output", strings.TrimSpace(out.String())).
		Float64("seconds", time.Since(startTime).Seconds()).
		Msg("done remote sync")
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func writeKey(key string) (path string, err error) {
	f, err := os.CreateTemp("", "ssrotate-ssh-key-*")
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()

	// ssh rejects keys without a trailing newline.
	if !strings.HasSuffix(key, "\n") {
		key += "\n"
	}
	if err := f.Chmod(0600); err != nil {
		return "", err
	}
	if _, err := f.WriteString(key); err != nil {
		return "", err
	}
	return f.Name(), nil
}
