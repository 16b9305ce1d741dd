package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagefeedhq/pagefeed/internal/models"
)

func TestOpenDefaultsToSQLiteMemory(t *testing.T) {
	db, err := Open(Config{})
	require.NoError(t, err)
	require.NotNil(t, db)

	require.NoError(t, Migrate(db))

	require.NoError(t, db.Create(&models.Page{Slug: "demo"}).Error)

	var count int64
	require.NoError(t, db.Model(&models.Page{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
}

func TestBuildPostgresDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{User: "pagefeed", Name: "pagefeed"})
	require.NoError(t, err)
	require.Contains(t, dsn, "host=localhost")
	require.Contains(t, dsn, "dbname=pagefeed")
	require.Contains(t, dsn, "sslmode=disable")

	_, err = buildPostgresDSN(Config{})
	require.Error(t, err)
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{User: "pagefeed", Password: "secret", Name: "pagefeed"})
	require.NoError(t, err)
	require.Contains(t, dsn, "pagefeed:secret@tcp(127.0.0.1:3306)/pagefeed")

	_, err = buildMySQLDSN(Config{User: "pagefeed"})
	require.Error(t, err)
}

func TestMigrateNilHandle(t *testing.T) {
	require.Error(t, Migrate(nil))
}
