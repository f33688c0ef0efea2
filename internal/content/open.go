package content

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/goleaf/newsblog-search/pkg/config"
	"github.com/goleaf/newsblog-search/pkg/postgres"
	"github.com/goleaf/newsblog-search/pkg/resilience"
)

// SQLiteDriver is the database/sql driver registered by go-sqlite3.
const SQLiteDriver = "sqlite3"

// Open connects to the content database and returns a store over it along
// with the underlying handle, which the caller closes. For postgres an
// empty dsn means the postgres section of the configuration. SQLite
// databases are migrated on open so a fresh file is usable at once.
func Open(ctx context.Context, driver, dsn string, pg config.PostgresConfig, breakerCfg resilience.CircuitBreakerConfig) (*SQLStore, *sql.DB, error) {
	var db *sql.DB
	switch driver {
	case postgres.DriverName:
		if dsn == "" {
			client, err := resilience.RetryValue(ctx, "postgres-connect", resilience.RetryConfig{MaxAttempts: 5}, func() (*postgres.Client, error) {
				return postgres.New(pg)
			})
			if err != nil {
				return nil, nil, err
			}
			db = client.DB
			break
		}
		var err error
		if db, err = sql.Open(driver, dsn); err != nil {
			return nil, nil, fmt.Errorf("opening postgres connection: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("pinging postgres: %w", err)
		}
	case SQLiteDriver:
		if dsn == "" {
			dsn = "file:newsblog.db?_busy_timeout=5000"
		}
		var err error
		if db, err = sql.Open(driver, dsn); err != nil {
			return nil, nil, fmt.Errorf("opening sqlite database: %w", err)
		}
		// one writer at a time; queries close their rows before the next
		// statement runs
		db.SetMaxOpenConns(1)
	default:
		return nil, nil, fmt.Errorf("unsupported content driver %q", driver)
	}

	store := NewSQLStore(db, driver, breakerCfg)
	if driver == SQLiteDriver {
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	return store, db, nil
}
