package export

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ambientdata/horaria/internal/schema"
	"github.com/ambientdata/horaria/pkg/util/exception"
	"github.com/ambientdata/horaria/pkg/util/logger"
)

const warehouseBatchSize = 500

// WarehouseExporter upserts hourly rows into the warehouse table. Reruns over
// the same window overwrite in place, keeping the exporter idempotent.
type WarehouseExporter struct {
	db *gorm.DB
}

// NewWarehouseExporter creates a WarehouseExporter over the given connection.
func NewWarehouseExporter(db *gorm.DB) *WarehouseExporter {
	return &WarehouseExporter{db: db}
}

func (e *WarehouseExporter) Name() string { return "warehouse" }

func (e *WarehouseExporter) Export(ctx context.Context, table schema.Table) error {
	if table.IsEmpty() {
		return nil
	}

	rows := []schema.HourlyRow(table)
	err := e.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "time"}, {Name: "location"}, {Name: "metric"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "ok_count", "version"}),
	}).CreateInBatches(rows, warehouseBatchSize).Error
	if err != nil {
		return exception.New(moduleName, "warehouse upsert failed", err, true)
	}

	logger.Debugf("Upserted %d rows into %s.", len(rows), schema.HourlyRow{}.TableName())
	return nil
}

var _ Exporter = (*WarehouseExporter)(nil)
