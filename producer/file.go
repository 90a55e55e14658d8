package producer

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/stupid-simple/rotate/artifact"
)

// File stages a backup made by an external tool.
type File struct {
	Logical   string
	Extension string
	Source    string
	Logger    zerolog.Logger
}

func (p *File) Name() artifact.Name {
	return artifact.Name{Logical: p.Logical, Extension: p.Extension}
}

func (p *File) Produce(ctx context.Context, dir, pattern string) (artifact.Artifact, error) {
	src, err := os.Open(p.Source)
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("could not open source: %w", err)
	}
	defer func() {
		_ = src.Close()
	}()

	info, err := src.Stat()
	if err != nil {
		return artifact.Artifact{}, err
	}
	if !info.Mode().IsRegular() {
		return artifact.Artifact{}, fmt.Errorf("source %s is not a regular file", p.Source)
	}

	a, err := writeArtifact(dir, p.Name().WithPattern(pattern), func(w io.Writer) error {
		_, err := io.Copy(w, readerWithContext(ctx, src))
		return err
	})
	if err != nil {
		return artifact.Artifact{}, err
	}
	p.Logger.Info().Str("source", p.Source).Object("artifact", a).Msg("staged external backup")
	return a, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
