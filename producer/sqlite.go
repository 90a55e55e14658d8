package producer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/stupid-simple/rotate/artifact"
	"github.com/stupid-simple/rotate/fileutils"
	"github.com/stupid-simple/rotate/sqlitedb"
)

// SQLiteCopy makes a consistent copy of a live SQLite database file.
type SQLiteCopy struct {
	Logical string
	Path    string
	Logger  zerolog.Logger
}

func (p *SQLiteCopy) Name() artifact.Name {
	return artifact.Name{Logical: p.Logical, Extension: ExtSQLiteCopy}
}

func (p *SQLiteCopy) Produce(ctx context.Context, dir, pattern string) (artifact.Artifact, error) {
	name := p.Name().WithPattern(pattern)
	if err := name.Validate(); err != nil {
		return artifact.Artifact{}, err
	}
	dst := name.Path(dir)

	cli, err := openExisting(p.Path, p.Logger)
	if err != nil {
		return artifact.Artifact{}, err
	}
	defer func() {
		_ = sqlitedb.Close(cli)
	}()

	// VACUUM INTO refuses to write over an existing file, so only the
	// temporary name is reserved.
	tmp, err := fileutils.CreateTemp(dir, name.String())
	if err != nil {
		return artifact.Artifact{}, err
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	_ = os.Remove(tmpPath)

	startTime := time.Now()
	if err := cli.WithContext(ctx).Exec("VACUUM INTO ?", tmpPath).Error; err != nil {
		_ = os.Remove(tmpPath)
		return artifact.Artifact{}, fmt.Errorf("could not copy database: %w", err)
	}
	if err := fileutils.Commit(tmpPath, dst); err != nil {
		return artifact.Artifact{}, err
	}

	a, err := artifact.NewFromFS(dst, name)
	if err != nil {
		return artifact.Artifact{}, err
	}
	p.Logger.Info().
		Str("source", p.Path).
		Object("artifact", a).
		Float64("seconds", time.Since(startTime).Seconds()).
		Msg("made copy of SQLite database")
	return a, nil
}

// SQLiteDump writes a gzip compressed SQL text dump of a SQLite database.
type SQLiteDump struct {
	Logical string
	Path    string
	Logger  zerolog.Logger
}

func (p *SQLiteDump) Name() artifact.Name {
	return artifact.Name{Logical: p.Logical, Extension: ExtSQLDump}
}

func (p *SQLiteDump) Produce(ctx context.Context, dir, pattern string) (artifact.Artifact, error) {
	cli, err := openExisting(p.Path, p.Logger)
	if err != nil {
		return artifact.Artifact{}, err
	}
	defer func() {
		_ = sqlitedb.Close(cli)
	}()

	startTime := time.Now()
	a, err := writeArtifact(dir, p.Name().WithPattern(pattern), gzipped(func(w io.Writer) error {
		// A read transaction keeps the dump consistent with concurrent writers.
		return cli.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return DumpSQLite(tx, w, p.Logger)
		})
	}))
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("could not dump database: %w", err)
	}

	p.Logger.Info().
		Str("source", p.Path).
		Object("artifact", a).
		Float64("seconds", time.Since(startTime).Seconds()).
		Msg("created SQLite dump of database")
	return a, nil
}

func openExisting(path string, logger zerolog.Logger) (*gorm.DB, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("database %s is not a regular file", path)
	}
	return sqlitedb.Open(path, logger)
}

type schemaEntry struct {
	Name string
	Type string
	SQL  string `gorm:"column:sql"`
}

type columnInfo struct {
	Name string
}

// DumpSQLite writes the schema and content of the database as SQL
// statements. Tables come first in name order, each followed by its rows,
// then indexes, triggers and views.
func DumpSQLite(tx *gorm.DB, w io.Writer, logger zerolog.Logger) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("BEGIN TRANSACTION;\n"); err != nil {
		return err
	}

	var tables []schemaEntry
	err := tx.Raw(`SELECT name, type, sql FROM sqlite_master WHERE sql NOT NULL AND type = 'table' ORDER BY name`).
		Scan(&tables).Error
	if err != nil {
		return fmt.Errorf("could not read schema: %w", err)
	}

	for _, t := range tables {
		switch {
		case t.Name == "sqlite_sequence":
			_, err = bw.WriteString(`DELETE FROM "sqlite_sequence";` + "\n")
		case t.Name == "sqlite_stat1":
			_, err = bw.WriteString(`ANALYZE "sqlite_master";` + "\n")
		case strings.HasPrefix(t.Name, "sqlite_"):
			continue
		case strings.HasPrefix(strings.ToUpper(t.SQL), "CREATE VIRTUAL TABLE"):
			logger.Warn().Str("table", t.Name).Msg("virtual tables are not dumped")
			continue
		default:
			_, err = bw.WriteString(t.SQL + ";\n")
		}
		if err != nil {
			return err
		}

		if err := dumpRows(tx, bw, t.Name); err != nil {
			return fmt.Errorf("could not dump table %s: %w", t.Name, err)
		}
	}

	var others []schemaEntry
	err = tx.Raw(`SELECT name, type, sql FROM sqlite_master WHERE sql NOT NULL AND type IN ('index', 'trigger', 'view')`).
		Scan(&others).Error
	if err != nil {
		return fmt.Errorf("could not read schema: %w", err)
	}
	for _, o := range others {
		if _, err := bw.WriteString(o.SQL + ";\n"); err != nil {
			return err
		}
	}

	if _, err := bw.WriteString("COMMIT;\n"); err != nil {
		return err
	}
	return bw.Flush()
}

func dumpRows(tx *gorm.DB, w *bufio.Writer, table string) error {
	var columns []columnInfo
	if err := tx.Raw(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table))).Scan(&columns).Error; err != nil {
		return err
	}
	if len(columns) == 0 {
		return nil
	}

	values := make([]string, 0, len(columns))
	for _, c := range columns {
		values = append(values, "quote("+quoteIdent(c.Name)+")")
	}
	prefix := strings.ReplaceAll("INSERT INTO "+quoteIdent(table)+" VALUES(", "'", "''")
	query := fmt.Sprintf("SELECT '%s' || %s || ');' FROM %s",
		prefix, strings.Join(values, " || ',' || "), quoteIdent(table))

	rows, err := tx.Raw(query).Rows()
	if err != nil {
		return err
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return err
		}
		if _, err := w.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return rows.Err()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
