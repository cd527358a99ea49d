package export

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/ambientdata/horaria/internal/schema"
)

func sampleTable() schema.Table {
	hour := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	v := 0.42
	return schema.Table{
		{Time: hour, Location: "centro", Metric: "co", Value: &v, OKCount: 3, Version: "v0.8.6"},
		{Time: hour, Location: "norte", Metric: "co", Value: nil, OKCount: 2, Version: "v0.8.6"},
	}
}

type stubExporter struct {
	name  string
	err   error
	calls int
	rows  int
}

func (s *stubExporter) Name() string { return s.name }

func (s *stubExporter) Export(ctx context.Context, table schema.Table) error {
	s.calls++
	s.rows = len(table)
	return s.err
}

func TestFanOutSkipsEmptyTable(t *testing.T) {
	stub := &stubExporter{name: "warehouse"}
	f := NewFanOut([]Exporter{stub})

	outcomes, err := f.Export(context.Background(), schema.EmptyOutput())
	require.NoError(t, err)
	assert.Nil(t, outcomes)
	assert.Equal(t, 0, stub.calls)
}

func TestFanOutCollectsPerDestinationOutcomes(t *testing.T) {
	ok := &stubExporter{name: "warehouse"}
	failing := &stubExporter{name: "parquet", err: errors.New("bucket unavailable")}
	f := NewFanOut([]Exporter{ok, failing})

	outcomes, err := f.Export(context.Background(), sampleTable())
	require.Error(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, "warehouse", outcomes[0].Destination)
	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, 2, outcomes[0].Rows)

	assert.Equal(t, "parquet", outcomes[1].Destination)
	assert.Error(t, outcomes[1].Err)

	// A failing destination never blocks a sibling.
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 2, ok.rows)
}

func TestFanOutDestinations(t *testing.T) {
	f := NewFanOut([]Exporter{&stubExporter{name: "warehouse"}, &stubExporter{name: "parquet"}})
	assert.Equal(t, []string{"warehouse", "parquet"}, f.Destinations())
}

func setupWarehouse(t *testing.T) (sqlmock.Sqlmock, *WarehouseExporter) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return mock, NewWarehouseExporter(gormDB)
}

func TestWarehouseExporterUpserts(t *testing.T) {
	mock, exporter := setupWarehouse(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `promedios_horarios`").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := exporter.Export(context.Background(), sampleTable())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWarehouseExporterEmptyTableIsNoop(t *testing.T) {
	mock, exporter := setupWarehouse(t)

	err := exporter.Export(context.Background(), schema.EmptyOutput())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWarehouseExporterWrapsFailure(t *testing.T) {
	mock, exporter := setupWarehouse(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `promedios_horarios`").
		WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	err := exporter.Export(context.Background(), sampleTable())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warehouse upsert failed")
}

func TestPartitionByHourGroupsRows(t *testing.T) {
	nine := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	ten := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	v := 1.5
	table := schema.Table{
		{Time: nine, Location: "centro", Metric: "co", Value: &v, OKCount: 1, Version: "v1"},
		{Time: ten, Location: "centro", Metric: "co", Value: &v, OKCount: 1, Version: "v1"},
		{Time: nine, Location: "norte", Metric: "co", Value: nil, OKCount: 1, Version: "v1"},
	}

	partitions := partitionByHour(table)
	require.Len(t, partitions, 2)
	assert.Len(t, partitions["2024010109"], 2)
	assert.Len(t, partitions["2024010110"], 1)

	first := partitions["2024010109"][0]
	assert.Equal(t, nine.UnixMilli(), first.Time)
	assert.Equal(t, int32(1), first.OKCount)
	assert.Nil(t, partitions["2024010109"][1].Value)
}
