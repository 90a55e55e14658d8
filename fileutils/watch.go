package fileutils

import (
	"context"
	"time"
)

// WatchFile emits on the returned channel every time the content of the file
// at path differs from the last seen content. The file is checked on every
// tick. A file that cannot be read is reported through onErr and does not
// count as a change.
func WatchFile(ctx context.Context, path string, ticks <-chan time.Time, onErr func(err error)) (<-chan struct{}, error) {
	ch := make(chan struct{})

	lastHash, err := ComputeFileHash(path)
	if err != nil {
		return nil, err
	}

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ticks:
				if !ok {
					return
				}
				newHash, err := ComputeFileHash(path)
				if err != nil {
					onErr(err)
					continue
				}
				if lastHash == newHash {
					continue
				}
				lastHash = newHash
				select {
				case ch <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}
