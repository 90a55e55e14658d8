package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stupid-simple/rotate/artifact"
	"github.com/stupid-simple/rotate/catalog"
	"github.com/stupid-simple/rotate/config"
	"github.com/stupid-simple/rotate/fileutils"
	"github.com/stupid-simple/rotate/producer"
	"github.com/stupid-simple/rotate/remote"
	"github.com/stupid-simple/rotate/retention"
	"github.com/stupid-simple/rotate/rotation"
	"github.com/stupid-simple/rotate/tier"
)

// Runner performs backup runs for one loaded configuration. Rebuild it
// when the configuration changes.
type Runner struct {
	cfg       *config.Config
	tiers     *tier.Catalog
	producers []producer.Producer
	syncers   []remote.Syncer
	ledger    *catalog.Catalog
	ownLedger bool
	logger    zerolog.Logger
	o         options
}

func NewRunner(cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Runner, error) {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	tiers, err := tier.NewCatalog(cfg.Destination, cfg.Retention.Resolve())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}

	r := &Runner{
		cfg:    cfg,
		tiers:  tiers,
		ledger: o.ledger,
		logger: logger,
		o:      o,
	}

	r.producers = o.producers
	if r.producers == nil {
		r.producers, err = producersFromConfig(cfg, logger)
		if err != nil {
			return nil, err
		}
	}
	if err := uniqueIdentities(r.producers); err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}

	r.syncers = o.syncers
	if r.syncers == nil {
		r.syncers, err = remote.FromConfig(context.Background(), cfg.Remote, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
		}
	}

	if r.ledger == nil && cfg.Catalog != "" {
		r.ledger, err = catalog.Open(cfg.Catalog, logger, o.dryRun)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
		}
		r.ownLedger = true
	}

	return r, nil
}

// producersFromConfig builds the producers of every configured resource.
// Databases with an unsupported engine are left out with a warning.
func producersFromConfig(cfg *config.Config, logger zerolog.Logger) ([]producer.Producer, error) {
	var producers []producer.Producer
	for _, db := range cfg.Databases {
		ps, err := producer.ForDatabase(db, cfg.Producers, logger)
		if errors.Is(err, producer.ErrUnsupportedEngine) {
			logger.Warn().
				Object("database", db).
				Str("engine_type", producer.EngineType(db.Engine)).
				Msg("unsupported database engine. Will not be backed up")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
		}
		producers = append(producers, ps...)
	}

	if cfg.Producers.Media {
		producers = append(producers, &producer.MediaArchive{
			Root:         cfg.Media.Root,
			MaxFileBytes: cfg.Media.MaxFileSize.Size,
			Exclude:      []string{cfg.Destination, cfg.Catalog},
			Logger:       logger.With().Str("media_root", cfg.Media.Root).Logger(),
		})
	}
	return producers, nil
}

// uniqueIdentities rejects producers sharing a (logical, extension) pair.
// Distinct aliases can sanitize to the same logical name, and the second
// producer would then always find the first one's staging file.
func uniqueIdentities(producers []producer.Producer) error {
	seen := make(map[artifact.Name]string, len(producers))
	for _, p := range producers {
		id := p.Name()
		id.Pattern = ""
		if other, ok := seen[id]; ok {
			return fmt.Errorf("%s and %s producers both write %s backups named %q",
				other, producer.Kind(p), id.Extension, id.Logical)
		}
		seen[id] = producer.Kind(p)
	}
	return nil
}

func (r *Runner) Close() error {
	if r.ownLedger && r.ledger != nil {
		return r.ledger.Close()
	}
	return nil
}

func (r *Runner) Tiers() *tier.Catalog {
	return r.tiers
}

// Run backs up every configured resource, rotates the new artifacts and
// mirrors the archive tree. Only a staging namespace that cannot be
// created fails the run, every other failure is part of the report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	return r.run(ctx, r.producers)
}

// ArchiveFile stages and rotates a backup made outside of the runner.
func (r *Runner) ArchiveFile(ctx context.Context, logical, extension, path string) (*Report, error) {
	if err := artifact.ValidateIdentity(logical, extension); err != nil {
		return nil, err
	}
	return r.run(ctx, []producer.Producer{&producer.File{
		Logical:   logical,
		Extension: extension,
		Source:    path,
		Logger:    r.logger,
	}})
}

func (r *Runner) run(ctx context.Context, producers []producer.Producer) (*Report, error) {
	now := r.o.clock()
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Now:       now,
	}
	logger := r.logger.With().Str("run_id", report.RunID).Logger()
	logger.Info().Time("now", now).Int("producers", len(producers)).Bool("dry_run", r.o.dryRun).Msg("start backup run")

	staging := r.tiers.Staging()
	if !r.o.dryRun {
		created, err := fileutils.EnsureDir(staging.Dir)
		if err != nil {
			return report, fmt.Errorf("could not create staging folder: %w", err)
		}
		if created {
			logger.Info().Str("dir", staging.Dir).Msg("staging folder did not exist and has been created")
		}
		if err := fileutils.VerifyWritable(staging.Dir); err != nil {
			return report, fmt.Errorf("staging folder must be writable: %w", err)
		}
	}

	if r.ledger != nil {
		if err := r.ledger.StartRun(ctx, report.RunID, now); err != nil {
			logger.Warn().Err(err).Msg("could not record run start")
		}
	}

	engineOpts := []rotation.Option{
		rotation.WithDryRun(r.o.dryRun),
		rotation.WithVerifyCopy(r.cfg.VerifyCopies),
	}
	if r.ledger != nil {
		engineOpts = append(engineOpts, rotation.WithRecorder(r.ledger))
	}
	engine := rotation.NewEngine(r.tiers, now, logger, engineOpts...)
	pattern := staging.Bucket(now)

	for _, p := range producers {
		res := r.runProducer(ctx, engine, staging, pattern, p, logger)
		report.Resources = append(report.Resources, res)
	}

	for _, s := range r.syncers {
		report.Syncs = append(report.Syncs, r.runSyncer(ctx, s, logger))
	}

	report.Duration = time.Since(report.StartedAt)
	finishedAt := report.StartedAt.Add(report.Duration)

	if r.ledger != nil {
		// The run is recorded even when ctx was cancelled.
		if err := r.ledger.FinishRun(context.WithoutCancel(ctx), report.RunID, finishedAt, report.Copied(), report.Failed()); err != nil {
			logger.Warn().Err(err).Msg("could not record run end")
		}
	}
	if r.o.metrics != nil {
		r.o.metrics.RunFinished(finishedAt, report.Duration)
		if r.cfg.Metrics.Textfile != "" && !r.o.dryRun {
			if err := r.o.metrics.WriteTextfile(r.cfg.Metrics.Textfile); err != nil {
				logger.Warn().Err(err).Str("path", r.cfg.Metrics.Textfile).Msg("could not write metrics")
			}
		}
	}

	event := logger.Info()
	if ctx.Err() != nil {
		event = logger.Warn().Err(ctx.Err())
	}
	event.Object("report", report).Float64("seconds", report.Duration.Seconds()).Msg("done backup run")
	return report, nil
}

func (r *Runner) runProducer(ctx context.Context, engine *rotation.Engine, staging tier.Tier, pattern string, p producer.Producer, logger zerolog.Logger) ResourceReport {
	name := p.Name().WithPattern(pattern)
	res := ResourceReport{
		Producer: producer.Kind(p),
		Name:     name,
		Path:     name.Path(staging.Dir),
	}
	logger = logger.With().Str("producer", res.Producer).Str("logical", name.Logical).Logger()

	if err := ctx.Err(); err != nil {
		res.Status = ResourceSkipped
		res.Err = err
		return res
	}

	if fileutils.Exists(res.Path) {
		logger.Info().Str("path", res.Path).Msg("backup already exists for this hour, skipping")
		res.Status = ResourceExisting
		return res
	}

	if r.o.dryRun {
		logger.Info().Str("path", res.Path).Msg("would create backup (dry run)")
		res.Status = ResourcePlanned
		r.planRotation(ctx, engine, staging, p, &res, logger)
		return res
	}

	a, err := p.Produce(ctx, staging.Dir, pattern)
	if err != nil {
		res.Status = ResourceFailed
		res.Err = &producer.Error{Producer: res.Producer, Logical: name.Logical, Err: err}
		logger.Warn().Err(res.Err).Msg("could not create backup")
		if r.o.metrics != nil {
			r.o.metrics.ProducerFailed(res.Producer)
		}
		return res
	}
	res.Status = ResourceProduced

	// The artifact handed to the engine is never pruned before it has been
	// rotated.
	keep := max(staging.Retention, 1)
	prune, err := retention.Prune(staging.Dir, name.Logical, name.Extension, keep, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("could not prune staging folder")
	} else {
		res.StagingPrune = &prune
	}

	res.Outcomes = engine.Archive(ctx, a)
	for _, o := range res.Outcomes {
		logger.Info().Object("outcome", o).Msg("rotation outcome")
	}
	if r.o.metrics != nil {
		r.o.metrics.ObserveOutcomes(res.Outcomes)
	}

	if staging.Retention == 0 {
		prune, err := retention.Prune(staging.Dir, name.Logical, name.Extension, 0, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("could not prune staging folder")
		} else {
			res.StagingPrune = &prune
		}
	}
	return res
}

// planRotation reports what a dry run would rotate and prune. Only external
// files exist before they are staged, other producers stop at the plan.
func (r *Runner) planRotation(ctx context.Context, engine *rotation.Engine, staging tier.Tier, p producer.Producer, res *ResourceReport, logger zerolog.Logger) {
	f, ok := p.(*producer.File)
	if !ok {
		return
	}
	a, err := artifact.NewFromFS(f.Source, res.Name)
	if err != nil {
		logger.Warn().Err(err).Str("source", f.Source).Msg("could not read external backup")
		return
	}

	prune, err := retention.Prune(staging.Dir, res.Name.Logical, res.Name.Extension, staging.Retention, logger,
		retention.WithDryRun(true),
		retention.WithPending(res.Path, a.Size),
	)
	if err != nil {
		logger.Warn().Err(err).Msg("could not prune staging folder")
	} else {
		res.StagingPrune = &prune
	}

	res.Outcomes = engine.Archive(ctx, a)
	for _, o := range res.Outcomes {
		logger.Info().Object("outcome", o).Msg("rotation outcome")
	}
}

func (r *Runner) runSyncer(ctx context.Context, s remote.Syncer, logger zerolog.Logger) SyncReport {
	rep := SyncReport{Syncer: s.Name()}
	if err := ctx.Err(); err != nil {
		rep.Err = err
		return rep
	}
	if r.o.dryRun {
		logger.Info().Str("syncer", s.Name()).Msg("would sync archive tree (dry run)")
		return rep
	}

	startTime := time.Now()
	rep.Err = s.Sync(ctx, r.tiers.Root())
	rep.Seconds = time.Since(startTime).Seconds()
	if rep.Err != nil {
		logger.Warn().Err(rep.Err).Str("syncer", s.Name()).Msg("could not sync archive tree")
		if r.o.metrics != nil {
			r.o.metrics.SyncFailed(s.Name())
		}
	}
	return rep
}

// Prune applies the retention of one tier to (logical, extension) outside
// of a run.
func (r *Runner) Prune(ctx context.Context, key tier.Key, logical, extension string) (retention.Result, error) {
	if err := artifact.ValidateIdentity(logical, extension); err != nil {
		return retention.Result{}, err
	}
	t, ok := r.tiers.Lookup(key)
	if !ok {
		return retention.Result{}, fmt.Errorf("unknown tier %q", key)
	}

	logger := r.logger.With().Str("tier", string(key)).Logger()
	return retention.Prune(t.Dir, logical, extension, t.Retention, logger,
		retention.WithDryRun(r.o.dryRun),
		retention.WithOnDelete(func(d retention.Deletion) {
			if r.ledger == nil {
				return
			}
			if err := r.ledger.ForgetCopy(ctx, d.Path); err != nil {
				logger.Warn().Err(err).Str("path", d.Path).Msg("could not forget pruned backup copy")
			}
		}),
	)
}
