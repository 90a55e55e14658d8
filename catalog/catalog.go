package catalog

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stupid-simple/rotate/artifact"
	"github.com/stupid-simple/rotate/fileutils"
	"github.com/stupid-simple/rotate/sqlitedb"
	"github.com/stupid-simple/rotate/tier"
)

const iterateBatchSize = 50

// Catalog is a ledger of the copies held by the rotation tiers. The
// filesystem stays the reference for every rotation decision, the catalog
// only remembers what was written and with which content.
type Catalog struct {
	Lock   sync.Mutex
	Cli    *gorm.DB
	Logger zerolog.Logger
	DryRun bool
}

func Open(path string, logger zerolog.Logger, dryRun bool) (*Catalog, error) {
	cli, err := sqlitedb.Open(path, logger,
		sqlitedb.WithDryRun(dryRun),
		sqlitedb.WithModels(&Run{}, &TierCopy{}),
	)
	if err != nil {
		return nil, fmt.Errorf("could not open catalog: %w", err)
	}
	return &Catalog{
		Cli:    cli,
		Logger: logger.With().Str("catalog", path).Logger(),
		DryRun: dryRun,
	}, nil
}

func (c *Catalog) Close() error {
	return sqlitedb.Close(c.Cli)
}

// RecordCopy stores a copy made into a tier. When hash is zero it is
// computed from the file.
func (c *Catalog) RecordCopy(ctx context.Context, key tier.Key, name artifact.Name, path string, hash uint64) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("could not stat copy: %w", err)
	}
	if hash == 0 {
		hash, err = fileutils.ComputeFileHash(path)
		if err != nil {
			return fmt.Errorf("could not hash copy: %w", err)
		}
	}

	record := &TierCopy{
		Path:      path,
		Tier:      string(key),
		Logical:   name.Logical,
		Extension: name.Extension,
		Pattern:   name.Pattern,
		Size:      info.Size(),
		Hash:      int64(hash),
		CreatedAt: info.ModTime().UTC(),
	}

	c.Lock.Lock()
	defer c.Lock.Unlock()

	c.Logger.Debug().Str("path", path).Str("tier", string(key)).Msg("record tier copy")
	return c.Cli.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(record).Error
}

// ForgetCopy removes a pruned copy from the ledger.
func (c *Catalog) ForgetCopy(ctx context.Context, path string) error {
	c.Lock.Lock()
	defer c.Lock.Unlock()

	if c.DryRun {
		c.Logger.Info().Str("path", path).Msg("would forget tier copy (dry run)")
		return nil
	}
	return c.Cli.WithContext(ctx).Where("path = ?", path).Delete(&TierCopy{}).Error
}

func (c *Catalog) StartRun(ctx context.Context, id string, startedAt time.Time) error {
	c.Lock.Lock()
	defer c.Lock.Unlock()

	return c.Cli.WithContext(ctx).Create(&Run{ID: id, StartedAt: startedAt.UTC()}).Error
}

func (c *Catalog) FinishRun(ctx context.Context, id string, finishedAt time.Time, copied, failed int) error {
	c.Lock.Lock()
	defer c.Lock.Unlock()

	finished := finishedAt.UTC()
	return c.Cli.WithContext(ctx).Model(&Run{ID: id}).Updates(map[string]any{
		"finished_at": finished,
		"copied":      copied,
		"failed":      failed,
	}).Error
}

// Runs returns the most recent runs first.
func (c *Catalog) Runs(ctx context.Context, limit int) ([]Run, error) {
	c.Lock.Lock()
	defer c.Lock.Unlock()

	var runs []Run
	err := c.Cli.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// Copies iterates over the recorded copies in path order.
func (c *Catalog) Copies(ctx context.Context, opts ...CopiesOption) (iter.Seq[TierCopy], error) {
	o := copiesOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	return func(yield func(TierCopy) bool) {
		offset := 0
		remaining := o.limit
		for {
			batchSize := iterateBatchSize
			if remaining > 0 {
				batchSize = min(remaining, iterateBatchSize)
			}

			query := c.Cli.WithContext(ctx).Model(&TierCopy{})
			if o.tier != "" {
				query = query.Where("tier = ?", o.tier)
			}
			if o.logical != "" {
				query = query.Where("logical = ?", o.logical)
			}

			var copies []TierCopy
			c.Lock.Lock()
			err := query.Order("path").Limit(batchSize).Offset(offset).Find(&copies).Error
			c.Lock.Unlock()
			if err != nil {
				c.Logger.Error().Err(err).Msg("error fetching tier copies from catalog")
				return
			}

			for _, cp := range copies {
				if ctx.Err() != nil {
					return
				}
				if !yield(cp) {
					return
				}
			}
			if len(copies) < batchSize {
				return
			}
			if remaining > 0 {
				remaining -= batchSize
				if remaining <= 0 {
					return
				}
			}
			offset += batchSize
		}
	}, nil
}

type Problem string

const (
	ProblemMissing  Problem = "missing"
	ProblemModified Problem = "modified"
)

type Finding struct {
	Copy    TierCopy
	Problem Problem
	Err     error
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (f Finding) MarshalZerologObject(e *zerolog.Event) {
	e.Str("path", f.Copy.Path)
	e.Str("tier", f.Copy.Tier)
	e.Str("problem", string(f.Problem))
	if f.Err != nil {
		e.AnErr("cause", f.Err)
	}
}

type VerifyResult struct {
	Checked  int
	Findings []Finding
}

// Verify hashes every recorded copy again and reports those that are gone
// or whose content changed since they were written.
func (c *Catalog) Verify(ctx context.Context) (VerifyResult, error) {
	copies, err := c.Copies(ctx)
	if err != nil {
		return VerifyResult{}, err
	}

	startTime := time.Now()
	c.Logger.Info().Msg("start verifying tier copies")

	res := VerifyResult{}
	for cp := range copies {
		res.Checked++
		logger := c.Logger.With().Str("path", cp.Path).Logger()

		hash, err := fileutils.ComputeFileHash(cp.Path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			f := Finding{Copy: cp, Problem: ProblemMissing, Err: err}
			logger.Warn().Object("finding", f).Msg("tier copy is missing")
			res.Findings = append(res.Findings, f)
		case err != nil:
			logger.Warn().Err(err).Msg("could not hash tier copy")
			res.Findings = append(res.Findings, Finding{Copy: cp, Problem: ProblemModified, Err: err})
		case int64(hash) != cp.Hash:
			f := Finding{Copy: cp, Problem: ProblemModified}
			logger.Warn().Object("finding", f).Msg("tier copy content changed")
			res.Findings = append(res.Findings, f)
		}
	}

	c.Logger.Info().
		Int("checked", res.Checked).
		Int("findings", len(res.Findings)).
		Float64("seconds", time.Since(startTime).Seconds()).
		Msg("done verifying tier copies")
	return res, ctx.Err()
}
