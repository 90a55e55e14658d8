package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stupid-simple/rotate/catalog"
)

func verifyCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	cfg, err := loadConfig(args.Verify.Config, logger)
	if err != nil {
		return err
	}
	if cfg.Catalog == "" {
		return errors.New("no catalog configured, nothing to verify")
	}

	ledger, err := catalog.Open(cfg.Catalog, logger, false)
	if err != nil {
		return err
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			logger.Warn().Err(err).Msg("could not close catalog")
		}
	}()

	res, err := ledger.Verify(ctx)
	if err != nil {
		return err
	}
	if len(res.Findings) > 0 {
		return fmt.Errorf("%d of %d copies are missing or modified", len(res.Findings), res.Checked)
	}
	return nil
}
