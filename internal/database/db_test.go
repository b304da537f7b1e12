package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		url        string
		wantDriver string
		wantDSN    string
	}{
		{"postgres://user:pw@localhost:5432/gateway?sslmode=disable", DriverPostgres, "postgres://user:pw@localhost:5432/gateway?sslmode=disable"},
		{"sqlite://gateway.db", DriverSQLite, "gateway.db"},
		{"sqlite://:memory:", DriverSQLite, ":memory:"},
	}

	for _, tc := range tests {
		t.Run(tc.url, func(t *testing.T) {
			driver, dsn := parseURL(tc.url)
			assert.Equal(t, tc.wantDriver, driver)
			assert.Equal(t, tc.wantDSN, dsn)
		})
	}
}

func TestMigrateSQLite(t *testing.T) {
	db, err := Connect("sqlite://:memory:")
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, DriverSQLite, db.Driver())

	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx))
	// idempotent
	require.NoError(t, db.Migrate(ctx))

	var count int
	require.NoError(t, db.GetContext(ctx, &count, `SELECT COUNT(*) FROM sessions`))
	assert.Zero(t, count)
}
