package watermark_test

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

	"github.com/ambientdata/horaria/internal/watermark"
)

func setupGormMock(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *watermark.GormStore) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock, watermark.NewGormStore(gormDB)
}

func TestGormStoreLoadAbsent(t *testing.T) {
	_, mock, store := setupGormMock(t)

	mock.ExpectQuery("SELECT \\* FROM `watermarks`").
		WithArgs("pipeline-state", 1).
		WillReturnRows(sqlmock.NewRows([]string{"key", "last_processed_hour", "metadata", "updated_at"}))

	wm, err := store.Load(context.Background(), "pipeline-state")
	require.NoError(t, err)
	assert.Nil(t, wm)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStoreLoadExisting(t *testing.T) {
	_, mock, store := setupGormMock(t)

	hour := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT \\* FROM `watermarks`").
		WithArgs("pipeline-state", 1).
		WillReturnRows(sqlmock.NewRows([]string{"key", "last_processed_hour", "metadata", "updated_at"}).
			AddRow("pipeline-state", hour, `{"pipeline_version":"v1"}`, hour))

	wm, err := store.Load(context.Background(), "pipeline-state")
	require.NoError(t, err)
	require.NotNil(t, wm)
	require.NotNil(t, wm.LastProcessedHour)
	assert.Equal(t, hour, *wm.LastProcessedHour)
	assert.Equal(t, "v1", wm.Metadata["pipeline_version"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStoreLoadFailure(t *testing.T) {
	_, mock, store := setupGormMock(t)

	mock.ExpectQuery("SELECT \\* FROM `watermarks`").
		WillReturnError(errors.New("connection refused"))

	_, err := store.Load(context.Background(), "pipeline-state")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline-state")
}

func TestGormStoreSaveUpserts(t *testing.T) {
	_, mock, store := setupGormMock(t)

	hour := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	wm := watermark.Watermark{}.WithHour(hour)
	wm.SetMetadata(watermark.MetaPipelineVersion, "v1")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `watermarks`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Save(context.Background(), "pipeline-state", wm))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStoreSaveFailureIsRetryable(t *testing.T) {
	_, mock, store := setupGormMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `watermarks`").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.Save(context.Background(), "pipeline-state", watermark.Watermark{})
	require.Error(t, err)
}

func TestGormStoreReset(t *testing.T) {
	_, mock, store := setupGormMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `watermarks`").
		WithArgs("pipeline-state").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Reset(context.Background(), "pipeline-state"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWatermarkWithHourCopiesMetadata(t *testing.T) {
	orig := watermark.Watermark{}
	orig.SetMetadata("a", "1")

	next := orig.WithHour(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	next.SetMetadata("b", "2")

	assert.Equal(t, "1", next.Metadata["a"])
	_, carried := orig.Metadata["b"]
	assert.False(t, carried)
}
