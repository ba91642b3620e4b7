package sqlite

import (
	"context"
	"testing"

	"github.com/koustreak/omem/internal/database"
	"github.com/koustreak/omem/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *Driver {
	t.Helper()
	d, err := New(context.Background(), &database.Config{Driver: database.DriverSQLite, DSN: MemoryDSN})
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	d := openMemory(t)

	require.NoError(t, database.Migrate(ctx, d))
	require.NoError(t, database.Migrate(ctx, d))

	n, err := d.Exec(ctx,
		`INSERT INTO actors (short_id, display_name, correlation_key, access_token, created_at) VALUES (?, ?, ?, ?, ?)`,
		"aB3dE9", "Acme", "TID-001", "tok-1", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestExec_UniqueViolationIsConflict(t *testing.T) {
	ctx := context.Background()
	d := openMemory(t)
	require.NoError(t, database.Migrate(ctx, d))

	const insert = `INSERT INTO actors (short_id, display_name, correlation_key, access_token, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := d.Exec(ctx, insert, "aB3dE9", "Acme", "TID-001", "tok-1", 1)
	require.NoError(t, err)

	_, err = d.Exec(ctx, insert, "aB3dE9", "Other", "TID-002", "tok-2", 1)
	require.Error(t, err)
	assert.True(t, errs.IsConflict(err), "got %v", err)
}

func TestExec_ForeignKeyViolationIsNotConflict(t *testing.T) {
	ctx := context.Background()
	d := openMemory(t)
	require.NoError(t, database.Migrate(ctx, d))

	_, err := d.Exec(ctx,
		`INSERT INTO object_locations (actor_id, object_url, data_type, correlation_key, updated_at) VALUES (?, ?, ?, ?, ?)`,
		42, "-", "LOGO", "TID-404", 1)
	require.Error(t, err)
	assert.False(t, errs.IsConflict(err))
	assert.True(t, errs.IsInvalidInput(err))
}

func TestQueryRow_NoRowsIsNotFound(t *testing.T) {
	ctx := context.Background()
	d := openMemory(t)
	require.NoError(t, database.Migrate(ctx, d))

	row, err := d.QueryRow(ctx, `SELECT id FROM actors WHERE correlation_key = ?`, "missing")
	require.NoError(t, err)

	var id int64
	err = row.Scan(&id)
	assert.True(t, errs.IsNotFound(err))
}

func TestQuery_Iterates(t *testing.T) {
	ctx := context.Background()
	d := openMemory(t)
	require.NoError(t, database.Migrate(ctx, d))

	for i, key := range []string{"TID-001", "TID-002"} {
		_, err := d.Exec(ctx,
			`INSERT INTO actors (short_id, display_name, correlation_key, access_token, created_at) VALUES (?, ?, ?, ?, ?)`,
			key[len(key)-3:], "Acme", key, key+"-tok", i)
		require.NoError(t, err)
	}

	q, args, err := database.Select(database.TableActors, d.Dialect()).
		Columns("correlation_key").
		OrderBy("correlation_key", database.Desc).
		Build()
	require.NoError(t, err)

	rows, err := d.Query(ctx, q, args...)
	require.NoError(t, err)
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		require.NoError(t, rows.Scan(&k))
		keys = append(keys, k)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"TID-002", "TID-001"}, keys)
}
