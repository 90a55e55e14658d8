package sqlitedb_test

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stupid-simple/rotate/sqlitedb"
)

type note struct {
	ID   uint `gorm:"primaryKey"`
	Text string
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.db")
	logger := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.TraceLevel)

	cli, err := sqlitedb.Open(path, logger, sqlitedb.WithModels(&note{}))
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, sqlitedb.Close(cli))
	}()

	require.NoError(t, cli.Create(&note{Text: "hello"}).Error)

	var notes []note
	require.NoError(t, cli.Find(&notes).Error)
	require.Len(t, notes, 1)
	assert.Equal(t, "hello", notes[0].Text)
	assert.True(t, cli.Migrator().HasTable("note"), "singular table names")
}

func TestOpen_DryRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.db")
	logger := zerolog.New(zerolog.NewTestWriter(t))

	cli, err := sqlitedb.Open(path, logger, sqlitedb.WithModels(&note{}))
	require.NoError(t, err)
	defer func() {
		_ = sqlitedb.Close(cli)
	}()

	dry, err := sqlitedb.Open(path, logger, sqlitedb.WithDryRun(true))
	require.NoError(t, err)
	defer func() {
		_ = sqlitedb.Close(dry)
	}()
	require.NoError(t, dry.Create(&note{Text: "ignored"}).Error)

	var count int64
	require.NoError(t, cli.Model(&note{}).Count(&count).Error)
	assert.Zero(t, count)
}
