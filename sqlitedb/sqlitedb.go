package sqlitedb

import (
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

type options struct {
	dryRun bool
	models []any
}

type Option func(o *options)

// Statements are built but never executed.
func WithDryRun(dryRun bool) Option {
	return func(o *options) {
		o.dryRun = dryRun
	}
}

// Migrate the tables of the given models after opening.
func WithModels(models ...any) Option {
	return func(o *options) {
		o.models = append(o.models, models...)
	}
}

// Open returns a gorm handle on the SQLite database at path using the pure
// Go driver. Queries are logged through logger at trace level.
func Open(path string, logger zerolog.Logger, opts ...Option) (*gorm.DB, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	cli, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: dbLogger(logger),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	if err != nil {
		return nil, err
	}

	if len(o.models) > 0 {
		if err := cli.AutoMigrate(o.models...); err != nil {
			return nil, err
		}
	}

	// The schema is created even in dry run so statements can be built.
	if o.dryRun {
		cli = cli.Session(&gorm.Session{DryRun: true})
	}

	return cli, nil
}

// Close releases the connection pool behind cli.
func Close(cli *gorm.DB) error {
	db, err := cli.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
