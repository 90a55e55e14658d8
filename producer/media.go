package producer

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/rs/zerolog"

	"github.com/stupid-simple/rotate/artifact"
)

// MediaArchive packs a media directory into a gzip compressed tar file.
type MediaArchive struct {
	Root string
	// Files larger than this are skipped. Zero means no limit.
	MaxFileBytes int64
	// Paths left out of the archive, typically the backup destination when
	// it lives inside the media root.
	Exclude []string
	Logger  zerolog.Logger
}

func (p *MediaArchive) Name() artifact.Name {
	return artifact.Name{Logical: MediaLogicalName, Extension: ExtMedia}
}

func (p *MediaArchive) Produce(ctx context.Context, dir, pattern string) (artifact.Artifact, error) {
	root, err := filepath.Abs(p.Root)
	if err != nil {
		return artifact.Artifact{}, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("could not open media root: %w", err)
	}
	if !info.IsDir() {
		return artifact.Artifact{}, fmt.Errorf("media root %s is not a directory", p.Root)
	}

	exclude := make([]string, 0, len(p.Exclude)+1)
	for _, ex := range append([]string{dir}, p.Exclude...) {
		if ex == "" {
			continue
		}
		if abs, err := filepath.Abs(ex); err == nil {
			exclude = append(exclude, abs)
		}
	}

	startTime := time.Now()
	var stored int
	var written int64

	a, err := writeArtifact(dir, p.Name().WithPattern(pattern), gzipped(func(w io.Writer) error {
		tw := tar.NewWriter(w)
		base := filepath.Dir(root)
		entries := scanDirectory(ctx, root, func(path string) bool {
			return excluded(path, exclude)
		}, p.Logger)

		for entry := range entries {
			if p.MaxFileBytes > 0 && entry.info.Mode().IsRegular() && entry.info.Size() > p.MaxFileBytes {
				p.Logger.Warn().
					Object("file", entry).
					Str("max_size", units.HumanSize(float64(p.MaxFileBytes))).
					Msg("file larger than max file size. Will be skipped")
				continue
			}

			n, err := addToTar(tw, base, entry)
			if err != nil {
				return fmt.Errorf("could not archive %s: %w", entry.path, err)
			}
			written += n
			stored++
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return tw.Close()
	}))
	if err != nil {
		return artifact.Artifact{}, err
	}

	p.Logger.Info().
		Str("root", p.Root).
		Object("artifact", a).
		Int("files_count", stored).
		Str("files_size", units.HumanSize(float64(written))).
		Float64("seconds", time.Since(startTime).Seconds()).
		Msg("created media backup")
	return a, nil
}

func addToTar(tw *tar.Writer, base string, entry mediaEntry) (int64, error) {
	header, err := tar.FileInfoHeader(entry.info, "")
	if err != nil {
		return 0, err
	}
	rel, err := filepath.Rel(base, entry.path)
	if err != nil {
		return 0, err
	}
	header.Name = filepath.ToSlash(rel)
	if entry.info.IsDir() {
		header.Name += "/"
	}

	if err := tw.WriteHeader(header); err != nil {
		return 0, err
	}
	if !entry.info.Mode().IsRegular() {
		return 0, nil
	}

	f, err := os.Open(entry.path)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = f.Close()
	}()
	// The header size is authoritative, a file that grew is truncated.
	return io.CopyN(tw, f, header.Size)
}

func excluded(path string, exclude []string) bool {
	path = filepath.Clean(path)
	for _, ex := range exclude {
		if path == ex || strings.HasPrefix(path, ex+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
