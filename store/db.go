package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"

	connectTimeout = 10 * time.Second
)

// DB wraps sqlx.DB with the name of the driver behind it.
type DB struct {
	*sqlx.DB
	Driver string
}

// dataSource resolves the configured driver name to a registered sql
// driver and its DSN.
func dataSource(driver, dbURL, sqlitePath string) (string, string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "pgx":
		if dbURL == "" {
			return "", "", fmt.Errorf("db_url required for %s driver", driver)
		}
		return DriverPostgres, dbURL, nil
	case "", "sqlite", "sqlite3":
		if sqlitePath == "" {
			sqlitePath = "lumina.db"
		}
		return DriverSQLite, sqlitePath + "?_foreign_keys=on&_busy_timeout=5000", nil
	default:
		return "", "", fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// Open connects to the SQL database selected by driver ("sqlite" or
// "postgres"). sqlite uses sqlitePath, postgres requires dbURL.
func Open(driver, dbURL, sqlitePath string) (*DB, error) {
	name, dsn, err := dataSource(driver, dbURL, sqlitePath)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	db, err := sqlx.ConnectContext(ctx, name, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", name, err)
	}
	if name == DriverSQLite {
		// one writer at a time; UpdateTenant holds its connection for the whole transaction
		db.SetMaxOpenConns(1)
	}
	return &DB{DB: db, Driver: name}, nil
}

func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	return db.DB.Close()
}
