package retention

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/docker/go-units"
	"github.com/rs/zerolog"

	"github.com/stupid-simple/rotate/artifact"
)

// Entry is an artifact file found in a tier directory.
type Entry struct {
	Path    string
	Pattern string
	ModTime time.Time
	Size    int64
}

type Deletion struct {
	Path string
	Size int64
	Err  error
}

type Result struct {
	Kept    []Entry
	Deleted []Deletion
}

// Failed returns the deletions that could not be carried out.
func (r Result) Failed() []Deletion {
	var failed []Deletion
	for _, d := range r.Deleted {
		if d.Err != nil {
			failed = append(failed, d)
		}
	}
	return failed
}

func (r Result) FreedBytes() int64 {
	var freed int64
	for _, d := range r.Deleted {
		if d.Err == nil {
			freed += d.Size
		}
	}
	return freed
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (r Result) MarshalZerologObject(e *zerolog.Event) {
	e.Int("kept", len(r.Kept))
	e.Int("deleted", len(r.Deleted)-len(r.Failed()))
	e.Int("failed", len(r.Failed()))
	e.Str("freed", units.HumanSize(float64(r.FreedBytes())))
}

// List returns the artifacts of (logical, extension) in dir, oldest first.
// A missing directory holds no artifacts.
func List(dir, logical, extension string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not list %s: %w", dir, err)
	}

	var entries []Entry
	for _, d := range dirEntries {
		pattern, ok := artifact.Match(d.Name(), logical, extension)
		if !ok || !d.Type().IsRegular() {
			continue
		}
		info, err := d.Info()
		if err != nil {
			// Removed between listing and stat.
			continue
		}
		entries = append(entries, Entry{
			Path:    filepath.Join(dir, d.Name()),
			Pattern: pattern,
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].ModTime.Equal(entries[j].ModTime) {
			return entries[i].ModTime.Before(entries[j].ModTime)
		}
		return entries[i].Path < entries[j].Path
	})

	return entries, nil
}

// Prune deletes every artifact of (logical, extension) in dir except the
// keep newest ones. keep <= 0 deletes all of them. Deletion failures are
// logged and recorded in the result; the remaining candidates are still
// processed. The error is only set when dir cannot be listed.
func Prune(dir, logical, extension string, keep int, logger zerolog.Logger, opts ...Option) (Result, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	entries, err := List(dir, logical, extension)
	if err != nil {
		return Result{}, err
	}
	if o.dryRun && o.pending != nil && !listed(entries, o.pending.Path) {
		pending := *o.pending
		pending.Pattern, _ = artifact.Match(filepath.Base(pending.Path), logical, extension)
		entries = append(entries, pending)
	}

	keep = max(keep, 0)
	if len(entries) <= keep {
		return Result{Kept: entries}, nil
	}

	cut := len(entries) - keep
	res := Result{Kept: entries[cut:]}

	logger = logger.With().Str("dir", dir).Str("logical", logical).Str("extension", extension).Logger()
	for _, e := range entries[:cut] {
		d := Deletion{Path: e.Path, Size: e.Size}

		if o.dryRun {
			logger.Info().Str("path", e.Path).Int64("size", e.Size).Msg("would delete old backup file (dry run)")
		} else if err := os.Remove(e.Path); err != nil {
			d.Err = err
			logger.Warn().Err(err).Str("path", e.Path).Msg("failed to delete old backup file")
		} else {
			logger.Info().Str("path", e.Path).Int64("size", e.Size).Msg("deleted old backup file")
		}

		res.Deleted = append(res.Deleted, d)
		if d.Err == nil && !o.dryRun && o.onDelete != nil {
			o.onDelete(d)
		}
	}

	return res, nil
}

func listed(entries []Entry, path string) bool {
	for _, e := range entries {
		if e.Path == path {
			return true
		}
	}
	return false
}
