package app

import (
	"context"

	"go.uber.org/fx"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ambientdata/horaria/internal/config"
	"github.com/ambientdata/horaria/pkg/util/exception"
	"github.com/ambientdata/horaria/pkg/util/logger"
)

// dialectorFor maps a configured database type to its GORM dialector.
func dialectorFor(dbCfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch dbCfg.Type {
	case "mysql":
		return mysql.Open(dbCfg.DSN), nil
	case "postgres":
		return postgres.Open(dbCfg.DSN), nil
	case "sqlite", "sqlite3":
		return sqlite.Open(dbCfg.DSN), nil
	default:
		return nil, exception.Newf("app", "unsupported database type %q", dbCfg.Type)
	}
}

// openDB opens one GORM connection and closes it through the fx lifecycle, so
// every exit path releases the handle.
func openDB(lc fx.Lifecycle, dbCfg config.DatabaseConfig, name string) (*gorm.DB, error) {
	dialector, err := dialectorFor(dbCfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, exception.New("app", "failed to open "+name+" database", err, true)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			logger.Debugf("Closing %s database connection.", name)
			return sqlDB.Close()
		},
	})

	logger.Infof("Connected to %s database (%s).", name, dbCfg.Type)
	return db, nil
}

// NewStateDB opens the state database (watermarks, warehouse table).
func NewStateDB(lc fx.Lifecycle, cfg *config.Config) (*gorm.DB, error) {
	return openDB(lc, cfg.Horaria.StateDB, "state")
}

// NewTimeSeriesDB opens the raw time-series store.
func NewTimeSeriesDB(lc fx.Lifecycle, cfg *config.Config) (*gorm.DB, error) {
	return openDB(lc, cfg.Horaria.TimeSeries, "timeseries")
}
