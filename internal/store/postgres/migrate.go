package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/uptrace/bun"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate brings the schema to the newest embedded version and reports the
// version before and after the run. Version 0 means nothing was applied yet.
func Migrate(ctx context.Context, db *bun.DB, log *slog.Logger) (from, to uint, err error) {
	if log == nil {
		log = slog.Default()
	}

	// The migrate driver owns a connection until Close; it must not own the pool.
	conn, err := db.DB.Conn(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("postgres: acquire migration connection: %w", err)
	}
	dbDriver, err := migratepg.WithConnection(ctx, conn, &migratepg.Config{})
	if err != nil {
		_ = conn.Close()
		return 0, 0, fmt.Errorf("postgres: migration driver: %w", err)
	}

	srcDriver, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		_ = dbDriver.Close()
		return 0, 0, fmt.Errorf("postgres: migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		_ = dbDriver.Close()
		return 0, 0, fmt.Errorf("postgres: create migrator: %w", err)
	}
	m.Log = migrateLogger{log: log.With(slog.String("component", "migrate"))}
	defer func() { _, _ = m.Close() }()

	stop := context.AfterFunc(ctx, func() { m.GracefulStop <- true })
	defer stop()

	if from, err = schemaVersion(m); err != nil {
		return 0, 0, err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return from, from, fmt.Errorf("postgres: migrate up: %w", err)
	}
	if to, err = schemaVersion(m); err != nil {
		return from, 0, err
	}
	return from, to, nil
}

func schemaVersion(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: read schema version: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("postgres: schema version %d is dirty", v)
	}
	return v, nil
}

type migrateLogger struct {
	log *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool { return false }
