package producer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/stupid-simple/rotate/artifact"
)

const (
	defaultPostgresHost = "127.0.0.1"
	defaultPostgresPort = 5432
)

// PostgresDump streams the output of pg_dump into a gzip compressed file.
type PostgresDump struct {
	Logical string
	DSN     string
	Binary  string // defaults to pg_dump
	Logger  zerolog.Logger
}

func (p *PostgresDump) Name() artifact.Name {
	return artifact.Name{Logical: p.Logical, Extension: ExtSQLDump}
}

// Command builds the pg_dump invocation for the configured DSN. The
// password is passed through the environment, never on the command line.
func (p *PostgresDump) Command(ctx context.Context) (*exec.Cmd, error) {
	cfg, err := pgconn.ParseConfig(p.DSN)
	if err != nil {
		return nil, fmt.Errorf("could not parse DSN: %w", err)
	}

	host, port := cfg.Host, int(cfg.Port)
	if !hostInDSN(p.DSN) && os.Getenv("PGHOST") == "" {
		host = defaultPostgresHost
	}
	if port == 0 {
		port = defaultPostgresPort
	}

	binary := p.Binary
	if binary == "" {
		binary = "pg_dump"
	}

	args := []string{"-h", host, "-p", strconv.Itoa(port), "--no-password"}
	if cfg.User != "" {
		args = append(args, "-U", cfg.User)
	}
	args = append(args, cfg.Database)

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+cfg.Password)
	return cmd, nil
}

func (p *PostgresDump) Produce(ctx context.Context, dir, pattern string) (artifact.Artifact, error) {
	cmd, err := p.Command(ctx)
	if err != nil {
		return artifact.Artifact{}, err
	}

	startTime := time.Now()
	a, err := writeArtifact(dir, p.Name().WithPattern(pattern), gzipped(func(w io.Writer) error {
		var stderr bytes.Buffer
		cmd.Stdout = w
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("%s failed: %w: %s", cmd.Path, err, msg)
			}
			return fmt.Errorf("%s failed: %w", cmd.Path, err)
		}
		return nil
	}))
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("could not dump database: %w", err)
	}

	p.Logger.Info().
		Object("artifact", a).
		Float64("seconds", time.Since(startTime).Seconds()).
		Msg("created PostgreSQL dump of database")
	return a, nil
}

var hostKeyword = regexp.MustCompile(`(^|\s)host\s*=`)

func hostInDSN(dsn string) bool {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return false
		}
		return u.Hostname() != "" || u.Query().Get("host") != ""
	}
	return hostKeyword.MatchString(dsn)
}
