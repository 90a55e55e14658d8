package rotation

import (
	"context"

	"github.com/stupid-simple/rotate/artifact"
	"github.com/stupid-simple/rotate/tier"
)

type options struct {
	dryRun   bool
	verify   bool
	recorder Recorder
}

type Option func(o *options)

func WithDryRun(dryRun bool) Option {
	return func(o *options) {
		o.dryRun = dryRun
	}
}

// Compare the hash of every copy with its source before keeping it.
func WithVerifyCopy(verify bool) Option {
	return func(o *options) {
		o.verify = verify
	}
}

// Recorder keeps a ledger of the copies made by the engine. Recording
// errors never change the outcome of a tier.
type Recorder interface {
	RecordCopy(ctx context.Context, key tier.Key, name artifact.Name, path string, hash uint64) error
	ForgetCopy(ctx context.Context, path string) error
}

func WithRecorder(r Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}
