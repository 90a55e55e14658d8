package remote

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stupid-simple/rotate/config"
)

// Syncer mirrors the archive tree somewhere else. Syncers add and update
// files, they never delete what is already on the other side.
type Syncer interface {
	Name() string
	Sync(ctx context.Context, root string) error
}

// FromConfig builds the syncers enabled in cfg.
func FromConfig(ctx context.Context, cfg config.Remote, logger zerolog.Logger) ([]Syncer, error) {
	var syncers []Syncer
	if cfg.Rsync.Enabled {
		syncers = append(syncers, &Rsync{
			Host:       cfg.Rsync.Host,
			User:       cfg.Rsync.User,
			RemotePath: cfg.Rsync.RemotePath,
			SSHKey:     cfg.Rsync.SSHKey,
			Binary:     cfg.Rsync.Binary,
			Logger:     logger.With().Str("syncer", "rsync").Logger(),
		})
	}
	if cfg.S3.Enabled {
		m, err := NewS3Mirror(ctx, cfg.S3, logger.With().Str("syncer", "s3").Logger())
		if err != nil {
			return nil, fmt.Errorf("could not create s3 mirror: %w", err)
		}
		syncers = append(syncers, m)
	}
	return syncers, nil
}
