package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(FS, "*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(FS, "*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	require.Len(t, downs, len(ups))
	for _, up := range ups {
		assert.Contains(t, downs, strings.TrimSuffix(up, ".up.sql")+".down.sql")
	}
}

func TestEmbeddedMigrationsParse(t *testing.T) {
	src, err := iofs.New(FS, ".")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	next, err := src.Next(first)
	require.NoError(t, err)
	assert.Equal(t, uint(2), next)
}

func TestSchemaMatchesRepository(t *testing.T) {
	data, err := fs.ReadFile(FS, "000002_create_turns.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(data), "seq BIGSERIAL")

	data, err = fs.ReadFile(FS, "000003_create_reports.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(data), "session_id UUID NOT NULL UNIQUE")

	data, err = fs.ReadFile(FS, "000004_index_reports_by_user.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(data), "reports (user_id, created_at DESC)")
}
