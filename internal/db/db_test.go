package db

import (
	"bytes"
	"io/fs"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file in migrations: %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestMediaObjectsMigrationHasPartialHashIndex(t *testing.T) {
	up, err := fs.ReadFile(migrationsFS, "migrations/000001_media_objects.up.sql")
	require.NoError(t, err)
	sql := string(up)
	assert.Contains(t, sql, "media_objects_ok_hash_key")
	assert.Contains(t, sql, "WHERE status = 'OK'")
}

func TestMediaObjectsGuardCoversImmutableColumns(t *testing.T) {
	up, err := fs.ReadFile(migrationsFS, "migrations/000001_media_objects.up.sql")
	require.NoError(t, err)
	sql := string(up)
	for _, col := range []string{"storage_key", "content_hash", "category", "mime_type", "size_bytes", "width", "height"} {
		assert.Regexp(t, `NEW\.`+col+` (<>|IS DISTINCT FROM) OLD\.`+col, sql, col)
	}
}

func TestMigrateLogger(t *testing.T) {
	var buf bytes.Buffer
	l := migrateLogger{log: zerolog.New(&buf).Level(zerolog.DebugLevel)}
	assert.True(t, l.Verbose())

	l.Printf("Start buffering %d/u %s\n", 1, "media_objects")
	assert.Contains(t, buf.String(), `"message":"Start buffering 1/u media_objects"`)

	quiet := migrateLogger{log: zerolog.New(&buf).Level(zerolog.InfoLevel)}
	assert.False(t, quiet.Verbose())
}
