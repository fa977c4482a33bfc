package migrate

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"
)

func sqliteRunner(t *testing.T) (*Runner, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	fsys := fstest.MapFS{
		"20260101000000_create_widgets.sql": {Data: []byte(goodMigration)},
		"20260102000000_add_widget_name.sql": {Data: []byte(
			"-- +goose Up\nALTER TABLE widgets ADD COLUMN name text;\n\n-- +goose Down\nALTER TABLE widgets DROP COLUMN name;\n",
		)},
	}
	runner, err := NewRunner(db, Options{Dialect: goose.DialectSQLite3, FS: fsys})
	require.NoError(t, err)
	return runner, db
}

func TestRunnerUpDownAndTo(t *testing.T) {
	ctx := context.Background()
	runner, db := sqliteRunner(t)

	require.NoError(t, runner.Up(ctx))
	version, err := runner.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20260102000000), version)
	_, err = db.ExecContext(ctx, "INSERT INTO widgets (id, name) VALUES (1, 'bolt')")
	require.NoError(t, err)

	require.NoError(t, runner.Down(ctx))
	version, err = runner.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20260101000000), version)

	require.NoError(t, runner.To(ctx, 20260102000000))
	statuses, err := runner.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	for _, st := range statuses {
		assert.True(t, st.Applied, st.Path)
	}

	require.NoError(t, runner.To(ctx, 20260102000000))
}

func TestNewRunnerRequiresDB(t *testing.T) {
	_, err := NewRunner(nil, Options{})
	assert.Error(t, err)
}
