package producer

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stupid-simple/rotate/artifact"
	"github.com/stupid-simple/rotate/config"
)

type Engine string

const (
	EngineSQLite   Engine = "sqlite"
	EnginePostgres Engine = "postgres"
)

// EngineType returns the short type name of a configured engine, so
// "django.db.backends.postgresql" and "postgresql" are the same.
func EngineType(engine string) string {
	engine = strings.ToLower(strings.TrimSpace(engine))
	if i := strings.LastIndex(engine, "."); i >= 0 {
		engine = engine[i+1:]
	}
	return engine
}

// ParseEngine maps a configured engine to the engines producers support.
func ParseEngine(engine string) (Engine, error) {
	switch t := EngineType(engine); t {
	case "sqlite", "sqlite3":
		return EngineSQLite, nil
	case "postgres", "postgresql", "postgresql_psycopg2", "postgis", "pgx":
		return EnginePostgres, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedEngine, t)
	}
}

// ForDatabase returns the producers enabled for db. An empty result with no
// error means every producer for this engine is disabled.
func ForDatabase(db config.Database, enable config.Producers, logger zerolog.Logger) ([]Producer, error) {
	engine, err := ParseEngine(db.Engine)
	if err != nil {
		return nil, err
	}

	logical := artifact.SanitizeLogical(db.Alias)
	logger = logger.With().Str("database", db.Alias).Logger()

	var producers []Producer
	switch engine {
	case EngineSQLite:
		if db.Path == "" {
			return nil, fmt.Errorf("database %s has no path", db.Alias)
		}
		if enable.SQLiteCopy {
			producers = append(producers, &SQLiteCopy{Logical: logical, Path: db.Path, Logger: logger})
		}
		if enable.Dumps {
			producers = append(producers, &SQLiteDump{Logical: logical, Path: db.Path, Logger: logger})
		}
	case EnginePostgres:
		if enable.Dumps {
			producers = append(producers, &PostgresDump{Logical: logical, DSN: db.DSN, Logger: logger})
		}
	}

	return producers, nil
}
