package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/ambientdata/horaria/internal/schema"
	"github.com/ambientdata/horaria/internal/storage"
	"github.com/ambientdata/horaria/pkg/util/exception"
	"github.com/ambientdata/horaria/pkg/util/logger"
)

// parquetRow is the flat record written to parquet files. Value stays
// optional so a null mean survives the round trip instead of becoming zero.
type parquetRow struct {
	Time     int64    `parquet:"name=time,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
	Location string   `parquet:"name=location,type=BYTE_ARRAY,convertedtype=UTF8"`
	Metric   string   `parquet:"name=metric,type=BYTE_ARRAY,convertedtype=UTF8"`
	Value    *float64 `parquet:"name=value,type=DOUBLE,repetitiontype=OPTIONAL"`
	OKCount  int32    `parquet:"name=ok_count,type=INT32"`
	Version  string   `parquet:"name=version,type=BYTE_ARRAY,convertedtype=UTF8"`
}

const (
	parquetContentType = "application/octet-stream"
	hourPartitionFmt   = "2006010215"
)

// ParquetExporter writes one parquet object per hour partition, under a
// Hive-style dt= path. Rerunning a window rewrites the same objects, so the
// destination stays idempotent like the warehouse.
type ParquetExporter struct {
	conn    storage.Connection
	baseDir string
}

// NewParquetExporter creates a ParquetExporter over an open storage
// connection. baseDir prefixes every object name.
func NewParquetExporter(conn storage.Connection, baseDir string) *ParquetExporter {
	return &ParquetExporter{conn: conn, baseDir: baseDir}
}

func (e *ParquetExporter) Name() string { return "parquet" }

func (e *ParquetExporter) Export(ctx context.Context, table schema.Table) error {
	if table.IsEmpty() {
		return nil
	}

	partitions := partitionByHour(table)
	keys := make([]string, 0, len(partitions))
	for k := range partitions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var multiErr error
	for _, key := range keys {
		if err := e.exportPartition(ctx, key, partitions[key]); err != nil {
			multiErr = multierror.Append(multiErr, err)
		}
	}
	return multiErr
}

func (e *ParquetExporter) exportPartition(ctx context.Context, hourKey string, rows []parquetRow) error {
	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(parquetRow), int64(len(rows)))
	if err != nil {
		return exception.New(moduleName, fmt.Sprintf("failed to create parquet writer for partition %s", hourKey), err, false)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			return exception.New(moduleName, fmt.Sprintf("failed to write parquet row in partition %s", hourKey), err, false)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return exception.New(moduleName, fmt.Sprintf("failed to finalize parquet file for partition %s", hourKey), err, false)
	}

	objectName := path.Join(e.baseDir, fmt.Sprintf("dt=%s", hourKey),
		fmt.Sprintf("%s_contaminantes_horarios.parquet", hourKey))
	if err := e.conn.Upload(ctx, objectName, buf, parquetContentType); err != nil {
		return exception.New(moduleName, fmt.Sprintf("failed to upload %s", objectName), err, true)
	}
	logger.Debugf("Uploaded parquet partition %s (%d rows).", objectName, len(rows))
	return nil
}

// partitionByHour groups output rows by their hour key.
func partitionByHour(table schema.Table) map[string][]parquetRow {
	partitions := make(map[string][]parquetRow)
	for _, row := range table {
		key := row.Time.UTC().Format(hourPartitionFmt)
		partitions[key] = append(partitions[key], parquetRow{
			Time:     row.Time.UTC().UnixMilli(),
			Location: row.Location,
			Metric:   row.Metric,
			Value:    row.Value,
			OKCount:  int32(row.OKCount),
			Version:  row.Version,
		})
	}
	return partitions
}

var _ Exporter = (*ParquetExporter)(nil)
