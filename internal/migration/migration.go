// Package migration applies the embedded schema migrations to the state
// database before the first run touches it.
package migration

import (
	"context"
	"database/sql"
	"embed"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"

	"github.com/ambientdata/horaria/internal/config"
	"github.com/ambientdata/horaria/pkg/util/exception"
	"github.com/ambientdata/horaria/pkg/util/logger"
)

const moduleName = "migration"

//go:embed sql/*.sql
var migrationsFS embed.FS

// Migrator applies the embedded migrations to the state database.
type Migrator struct {
	db     *gorm.DB
	dbType string
}

// NewMigrator creates a Migrator over the state database connection.
func NewMigrator(db *gorm.DB, cfg *config.Config) *Migrator {
	return &Migrator{db: db, dbType: cfg.Horaria.StateDB.Type}
}

func (m *Migrator) databaseDriver(sqlDB *sql.DB) (database.Driver, error) {
	switch m.dbType {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{})
	case "sqlite", "sqlite3":
		return sqlite3.WithInstance(sqlDB, &sqlite3.Config{})
	default:
		return nil, exception.Newf(moduleName, "unsupported database type %q", m.dbType)
	}
}

// Up applies all pending migrations. An already up-to-date schema is not an
// error.
func (m *Migrator) Up(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return exception.New(moduleName, "failed to get underlying sql.DB", err, false)
	}

	sourceDriver, err := iofs.New(migrationsFS, "sql")
	if err != nil {
		return exception.New(moduleName, "failed to open embedded migrations", err, false)
	}
	dbDriver, err := m.databaseDriver(sqlDB)
	if err != nil {
		return err
	}

	instance, err := migrate.NewWithInstance("iofs", sourceDriver, m.dbType, dbDriver)
	if err != nil {
		return exception.New(moduleName, "failed to create migrate instance", err, false)
	}

	if err := instance.Up(); err != nil && err != migrate.ErrNoChange {
		return exception.New(moduleName, "migration failed", err, false)
	}
	logger.Infof("State database schema is up to date.")
	return nil
}
