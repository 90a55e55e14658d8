package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stupid-simple/rotate/backup"
	"github.com/stupid-simple/rotate/config"
	"github.com/stupid-simple/rotate/metrics"
)

// loadConfig reads the configuration file, or only the environment when
// path is empty.
func loadConfig(path string, logger zerolog.Logger) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path == "" {
		cfg, err = config.Load("")
	} else {
		cfg, err = config.LoadFromFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}
	logger.Debug().Object("config", cfg).Msg("loaded config")
	return cfg, nil
}

func newRunner(cfgPath string, dryRun bool, logger zerolog.Logger, opts ...backup.Option) (*backup.Runner, *config.Config, error) {
	cfg, err := loadConfig(cfgPath, logger)
	if err != nil {
		return nil, nil, err
	}
	runner, err := backup.NewRunner(cfg, logger, append([]backup.Option{backup.WithDryRun(dryRun)}, opts...)...)
	if err != nil {
		return nil, nil, err
	}
	return runner, cfg, nil
}

func runCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	if args.Run.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	runner, _, err := newRunner(args.Run.Config, args.Run.DryRun, logger, backup.WithMetrics(metrics.New()))
	if err != nil {
		return err
	}
	defer func() {
		if err := runner.Close(); err != nil {
			logger.Warn().Err(err).Msg("could not close catalog")
		}
	}()

	report, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	if n := report.Failed(); n > 0 {
		return fmt.Errorf("backup run finished with %d failures", n)
	}
	return nil
}
