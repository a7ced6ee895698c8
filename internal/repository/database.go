package repository

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS draft_audit (
	id TEXT PRIMARY KEY,
	draft_ref TEXT NOT NULL,
	draft_id TEXT NOT NULL,
	action TEXT NOT NULL,
	actor TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_draft_audit_ref ON draft_audit(draft_ref);
CREATE INDEX IF NOT EXISTS idx_draft_audit_created_at ON draft_audit(created_at);
`

// OpenDB connects to the audit database. SQLite gets its schema applied
// directly; PostgreSQL goes through the embedded migrations.
func OpenDB(driver, dsn string, logger *zap.Logger) (*sqlx.DB, error) {
	switch driver {
	case "sqlite":
		db, err := sqlx.Connect("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		// modernc sqlite does not share an in-memory database between connections
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(sqliteSchema); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
		}
		logger.Info("Audit database ready", zap.String("driver", driver))
		return db, nil
	case "postgres":
		db, err := sqlx.Connect("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := MigrateDB(db, logger); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("Audit database ready", zap.String("driver", driver))
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported audit driver %q", driver)
	}
}

// MigrateDB runs the embedded PostgreSQL migrations
func MigrateDB(db *sqlx.DB, logger *zap.Logger) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to get database instance for migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Database migration was run successfully")
	return nil
}
