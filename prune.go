package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stupid-simple/rotate/tier"
)

func pruneCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	if args.Prune.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	runner, _, err := newRunner(args.Prune.Config, args.Prune.DryRun, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := runner.Close(); err != nil {
			logger.Warn().Err(err).Msg("could not close catalog")
		}
	}()

	startTime := time.Now()
	logger.Info().Str("tier", args.Prune.Tier).Str("logical", args.Prune.Name).Msg("starting pruning old backup files")

	res, err := runner.Prune(ctx, tier.Key(args.Prune.Tier), args.Prune.Name, args.Prune.Extension)
	if err != nil {
		return err
	}

	logger.Info().
		Object("result", res).
		Float64("seconds", time.Since(startTime).Seconds()).
		Msg("done pruning old backup files")

	if failed := res.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d files could not be deleted", len(failed))
	}
	return nil
}
