package backup

import (
	"time"

	"github.com/stupid-simple/rotate/catalog"
	"github.com/stupid-simple/rotate/metrics"
	"github.com/stupid-simple/rotate/producer"
	"github.com/stupid-simple/rotate/remote"
)

type options struct {
	dryRun    bool
	clock     func() time.Time
	producers []producer.Producer
	syncers   []remote.Syncer
	ledger    *catalog.Catalog
	metrics   *metrics.Metrics
}

type Option func(o *options)

func WithDryRun(dryRun bool) Option {
	return func(o *options) {
		o.dryRun = dryRun
	}
}

// WithClock replaces the source of the run instant.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithProducers replaces the producers built from the configuration.
func WithProducers(producers ...producer.Producer) Option {
	return func(o *options) {
		o.producers = producers
	}
}

// WithSyncers replaces the remote syncers built from the configuration.
func WithSyncers(syncers ...remote.Syncer) Option {
	return func(o *options) {
		o.syncers = syncers
	}
}

// WithLedger uses an already open catalog instead of opening the one named
// in the configuration. The runner does not close it.
func WithLedger(ledger *catalog.Catalog) Option {
	return func(o *options) {
		o.ledger = ledger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
