package producer

import (
	"context"
	"io/fs"
	"iter"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

type mediaEntry struct {
	path string
	info fs.FileInfo
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (m mediaEntry) MarshalZerologObject(e *zerolog.Event) {
	e.Str("path", m.path)
	e.Int64("size", m.info.Size())
}

// scanDirectory yields the directories and regular files under dirPath,
// parents before children. Paths for which skip returns true are left out
// together with their content.
func scanDirectory(ctx context.Context, dirPath string, skip func(path string) bool, logger zerolog.Logger) iter.Seq[mediaEntry] {
	return func(yield func(mediaEntry) bool) {
		var scannedCount int
		var statFiles int

		logger = logger.With().Str("dir", dirPath).Logger()
		logger.Info().Msg("start scanning media files")
		defer func() {
			logger.Info().
				Int("scanned", statFiles).
				Int("scanned_success", scannedCount).
				Msg("done scanning media files")
		}()

		throttledLogger := logger.Sample(&zerolog.BurstSampler{
			Burst:  1,
			Period: 1 * time.Second,
		})
		err := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return filepath.SkipAll
			}

			if err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("could not scan path")
				return nil
			}
			if skip != nil && skip(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			info, err := d.Info()
			if err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("could not stat path")
				return nil
			}
			mode := info.Mode()
			if !mode.IsRegular() && !mode.IsDir() {
				logger.Debug().Str("path", path).Str("mode", mode.String()).Msg("skipping special file")
				return nil
			}
			statFiles++

			if !yield(mediaEntry{path: path, info: info}) {
				return filepath.SkipAll
			}
			scannedCount++
			throttledLogger.Info().
				Int("scanned", statFiles).
				Int("scanned_success", scannedCount).
				Msg("scanning media files")

			return nil
		})
		if err != nil {
			logger.Error().Err(err).Msg("could not scan path")
		}
	}
}
