package export

import (
	"context"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/ambientdata/horaria/internal/config"
	"github.com/ambientdata/horaria/internal/storage"
	"github.com/ambientdata/horaria/pkg/util/logger"
)

// NewExporters builds the destination list from configuration. The parquet
// destination opens its storage connection here and releases it through the
// fx lifecycle.
func NewExporters(lc fx.Lifecycle, cfg *config.Config, warehouseDB *gorm.DB) ([]Exporter, error) {
	var exporters []Exporter

	if cfg.Horaria.Exporters.Warehouse.Enabled {
		exporters = append(exporters, NewWarehouseExporter(warehouseDB))
	}

	if cfg.Horaria.Exporters.Parquet.Enabled {
		storageCfg, err := storage.DecodeConfig(cfg.Horaria.Exporters.Parquet.Options)
		if err != nil {
			return nil, err
		}
		conn, err := storage.Open(context.Background(), storageCfg)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return conn.Close()
			},
		})
		exporters = append(exporters, NewParquetExporter(conn, "contaminantes"))
	}

	if len(exporters) == 0 {
		logger.Warnf("No export destinations enabled; runs will aggregate but publish nothing.")
	}
	return exporters, nil
}

// Module provides the fan-out over the configured destinations.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewExporters, fx.ParamTags(``, ``, `name:"stateDB"`)),
		NewFanOut,
	),
)
