package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	input := `
-- comment
CREATE TABLE a (x INTEGER);

CREATE INDEX idx ON a (x);
`
	stmts := splitStatements(input)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x INTEGER)", stmts[0])
	assert.Equal(t, "CREATE INDEX idx ON a (x)", stmts[1])
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.NoError(t, validateNoSemicolonInStrings("SELECT 'it''s'; SELECT 1;"))
	assert.Error(t, validateNoSemicolonInStrings("SELECT 'a;b';"))
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	pg, err := sqlFiles(PostgresFS, "postgres")
	require.NoError(t, err)
	assert.NotEmpty(t, pg)

	lite, err := sqlFiles(SQLiteFS, "sqlite")
	require.NoError(t, err)
	assert.NotEmpty(t, lite)

	ch, err := sqlFiles(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	assert.NotEmpty(t, ch)
}

func TestSQLiteMigrationsSplitCleanly(t *testing.T) {
	files, err := sqlFiles(SQLiteFS, "sqlite")
	require.NoError(t, err)

	for _, f := range files {
		data, err := SQLiteFS.ReadFile("sqlite/" + f)
		require.NoError(t, err)
		require.NoError(t, validateNoSemicolonInStrings(string(data)), f)
		assert.NotEmpty(t, splitStatements(string(data)), f)
	}
}
