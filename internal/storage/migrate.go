package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	logx "fintrack/pkg/logx"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// migrateUp applies the embedded migrations of the given dialect. It opens
// its own connection pool from driverName and dsn and closes it when done:
// the pgx migration driver pins a connection for the migrator's lifetime,
// which would otherwise starve a small store pool.
func migrateUp(ctx context.Context, driverName, dsn, dialectName string, log logx.Logger) (err error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("migration db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("migration db: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+dialectName)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("migration source: %w", err)
	}

	var drv database.Driver
	switch dialectName {
	case "sqlite":
		drv, err = sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	case "postgres":
		drv, err = pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	default:
		err = fmt.Errorf("no migrations for dialect %q", dialectName)
	}
	if err != nil {
		_ = src.Close()
		_ = db.Close()
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dialectName, drv)
	if err != nil {
		_ = src.Close()
		_ = drv.Close()
		return fmt.Errorf("create migrator: %w", err)
	}
	// Close releases the source and the driver, and the driver closes db.
	defer func() {
		srcErr, dbErr := m.Close()
		if err == nil {
			err = errors.Join(srcErr, dbErr)
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	if v, dirty, verr := m.Version(); verr == nil {
		log.Debug("schema ready", logx.Int("version", int(v)), logx.Bool("dirty", dirty))
	}
	return nil
}
