package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

func archiveCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	if args.Archive.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	runner, _, err := newRunner(args.Archive.Config, args.Archive.DryRun, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := runner.Close(); err != nil {
			logger.Warn().Err(err).Msg("could not close catalog")
		}
	}()

	report, err := runner.ArchiveFile(ctx, args.Archive.Name, args.Archive.Extension, args.Archive.Path)
	if err != nil {
		return err
	}
	for _, res := range report.Resources {
		if res.Err != nil {
			return res.Err
		}
	}
	if n := report.Failed(); n > 0 {
		return fmt.Errorf("archive finished with %d failures", n)
	}
	return nil
}
