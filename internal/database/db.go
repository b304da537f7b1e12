package database

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/openclaw/session-gateway/internal/config"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"

	sqlitePrefix = "sqlite://"
)

//go:embed schema/*.sql
var schemaFS embed.FS

type DB struct {
	*sqlx.DB
	driver string
}

// Connect opens a postgres connection, or sqlite when the URL starts with sqlite://
// (e.g. sqlite://gateway.db, sqlite://:memory:).
func Connect(databaseURL string) (*DB, error) {
	driver, dsn := parseURL(databaseURL)

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		// sqlite allows a single writer, and every :memory: connection is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(config.DBMaxOpenConns)
		db.SetMaxIdleConns(config.DBMaxIdleConns)
		db.SetConnMaxLifetime(config.DBConnMaxLifetime)
	}

	return &DB{DB: db, driver: driver}, nil
}

func parseURL(databaseURL string) (driver, dsn string) {
	if strings.HasPrefix(databaseURL, sqlitePrefix) {
		return DriverSQLite, strings.TrimPrefix(databaseURL, sqlitePrefix)
	}
	return DriverPostgres, databaseURL
}

func (db *DB) Driver() string {
	return db.driver
}

func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// Migrate creates the schema for the connected driver. Statements are idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	name := "schema/postgres.sql"
	if db.driver == DriverSQLite {
		name = "schema/sqlite.sql"
	}

	schema, err := schemaFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}

	for _, stmt := range strings.Split(string(schema), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
