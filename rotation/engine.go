package rotation

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/stupid-simple/rotate/artifact"
	"github.com/stupid-simple/rotate/fileutils"
	"github.com/stupid-simple/rotate/retention"
	"github.com/stupid-simple/rotate/tier"
)

type Status string

const (
	StatusSkipped    Status = "skipped"
	StatusCopied     Status = "copied"
	StatusCopyFailed Status = "copy_failed"
)

// Outcome is the result of archiving one artifact into one tier.
type Outcome struct {
	Tier    tier.Key
	Pattern string
	Path    string
	Status  Status
	Err     error
	Prune   *retention.Result
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (o Outcome) MarshalZerologObject(e *zerolog.Event) {
	e.Str("tier", string(o.Tier))
	e.Str("pattern", o.Pattern)
	e.Str("path", o.Path)
	e.Str("status", string(o.Status))
	if o.Err != nil {
		e.AnErr("cause", o.Err)
	}
	if o.Prune != nil {
		e.Object("prune", o.Prune)
	}
}

// Engine copies a staged artifact into every rotation tier whose current
// bucket is still empty and applies the tier retention afterwards. An
// engine is bound to the instant of one run.
type Engine struct {
	catalog *tier.Catalog
	now     time.Time
	logger  zerolog.Logger
	o       options
}

func NewEngine(catalog *tier.Catalog, now time.Time, logger zerolog.Logger, opts ...Option) *Engine {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{
		catalog: catalog,
		now:     now,
		logger:  logger,
		o:       o,
	}
}

func (e *Engine) Now() time.Time {
	return e.now
}

// Archive rotates a into the daily, weekly and monthly tiers. Tiers are
// independent: a failure in one is reported in its outcome and the next
// tier is still attempted.
func (e *Engine) Archive(ctx context.Context, a artifact.Artifact) []Outcome {
	slots := e.catalog.Tiers(e.now)
	outcomes := make([]Outcome, 0, len(slots))

	for _, slot := range slots {
		name := a.Name.WithPattern(slot.Pattern)
		out := Outcome{
			Tier:    slot.Key,
			Pattern: slot.Pattern,
			Path:    name.Path(slot.Dir),
		}

		if err := ctx.Err(); err != nil {
			out.Status = StatusSkipped
			out.Err = err
			outcomes = append(outcomes, out)
			continue
		}

		logger := e.logger.With().
			Str("tier", string(slot.Key)).
			Str("logical", a.LogicalName()).
			Str("extension", a.Extension()).
			Logger()
		logger.Info().Str("pattern", slot.Pattern).Msg("running rotation scheme")

		e.archiveSlot(ctx, slot, a, &out, logger)
		outcomes = append(outcomes, out)
	}

	return outcomes
}

func (e *Engine) archiveSlot(ctx context.Context, slot tier.Slot, a artifact.Artifact, out *Outcome, logger zerolog.Logger) {
	if fileutils.Exists(out.Path) {
		logger.Info().Str("path", out.Path).Msg("file already exists, skipping")
		out.Status = StatusSkipped
		return
	}

	if e.o.dryRun {
		logger.Info().Str("source", a.Path).Str("path", out.Path).Msg("would copy backup (dry run)")
		out.Status = StatusCopied
	} else {
		hash, err := e.copy(slot, a.Path, out.Path, logger)
		if err != nil {
			logger.Error().Err(err).Str("source", a.Path).Str("path", out.Path).Msg("could not copy backup")
			out.Status = StatusCopyFailed
			out.Err = err
			return
		}
		out.Status = StatusCopied

		if e.o.recorder != nil {
			if err := e.o.recorder.RecordCopy(ctx, slot.Key, a.Name.WithPattern(slot.Pattern), out.Path, hash); err != nil {
				logger.Warn().Err(err).Str("path", out.Path).Msg("could not record backup copy")
			}
		}
	}

	res, err := retention.Prune(slot.Dir, a.LogicalName(), a.Extension(), slot.Retention, logger,
		retention.WithDryRun(e.o.dryRun),
		retention.WithPending(out.Path, a.Size),
		retention.WithOnDelete(func(d retention.Deletion) {
			if e.o.recorder == nil {
				return
			}
			if err := e.o.recorder.ForgetCopy(ctx, d.Path); err != nil {
				logger.Warn().Err(err).Str("path", d.Path).Msg("could not forget pruned backup copy")
			}
		}),
	)
	if err != nil {
		logger.Warn().Err(err).Msg("could not prune tier")
		out.Err = err
		return
	}
	out.Prune = &res
}

// copy writes the artifact into the slot and returns the hash of the copy
// when verification is enabled.
func (e *Engine) copy(slot tier.Slot, src, dst string, logger zerolog.Logger) (uint64, error) {
	created, err := fileutils.EnsureDir(slot.Dir)
	if err != nil {
		return 0, fmt.Errorf("could not create destination folder: %w", err)
	}
	if created {
		logger.Info().Str("dir", slot.Dir).Msg("destination folder did not exist and has been created")
	}

	startTime := time.Now()
	written, err := fileutils.CopyFile(src, dst)
	if err != nil {
		return 0, err
	}

	var hash uint64
	if e.o.verify {
		var same bool
		hash, same, err = fileutils.SameContent(src, dst)
		if err == nil && !same {
			err = fmt.Errorf("copy of %s differs from source", src)
		}
		if err != nil {
			_ = os.Remove(dst)
			return 0, fmt.Errorf("could not verify copy: %w", err)
		}
	}

	logger.Info().
		Str("source", src).
		Str("path", dst).
		Int64("size", written).
		Float64("seconds", time.Since(startTime).Seconds()).
		Msg("created copy of backup")
	return hash, nil
}
