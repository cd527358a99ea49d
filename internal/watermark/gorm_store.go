package watermark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ambientdata/horaria/pkg/util/exception"
	"github.com/ambientdata/horaria/pkg/util/logger"
)

const moduleName = "watermark"

// record is the GORM mapping for one persisted watermark row.
type record struct {
	Key               string     `gorm:"column:key;primaryKey"`
	LastProcessedHour *time.Time `gorm:"column:last_processed_hour"`
	Metadata          string     `gorm:"column:metadata"`
	UpdatedAt         time.Time  `gorm:"column:updated_at"`
}

// TableName specifies the table for watermark records.
func (record) TableName() string {
	return "watermarks"
}

// GormStore is a Store backed by a GORM-managed SQL database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Load returns the watermark for key, or nil when no row exists.
func (s *GormStore) Load(ctx context.Context, key string) (*Watermark, error) {
	var rec record
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Debugf("No watermark found for key '%s'.", key)
		return nil, nil
	}
	if err != nil {
		return nil, exception.New(moduleName, fmt.Sprintf("failed to load watermark '%s'", key), err, true)
	}

	wm := Watermark{LastProcessedHour: rec.LastProcessedHour}
	if rec.LastProcessedHour != nil {
		utc := rec.LastProcessedHour.UTC()
		wm.LastProcessedHour = &utc
	}
	if rec.Metadata != "" {
		if err := json.Unmarshal([]byte(rec.Metadata), &wm.Metadata); err != nil {
			return nil, exception.New(moduleName, fmt.Sprintf("corrupt metadata for watermark '%s'", key), err, false)
		}
	}
	return &wm, nil
}

// Save overwrites the watermark row for key. The upsert makes concurrent
// overwrites of the same key last-writer-wins.
func (s *GormStore) Save(ctx context.Context, key string, wm Watermark) error {
	metadata := ""
	if len(wm.Metadata) > 0 {
		raw, err := json.Marshal(wm.Metadata)
		if err != nil {
			return exception.New(moduleName, fmt.Sprintf("failed to encode metadata for watermark '%s'", key), err, false)
		}
		metadata = string(raw)
	}

	rec := record{
		Key:               key,
		LastProcessedHour: wm.LastProcessedHour,
		Metadata:          metadata,
		UpdatedAt:         time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_processed_hour", "metadata", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return exception.New(moduleName, fmt.Sprintf("failed to save watermark '%s'", key), err, true)
	}

	if wm.LastProcessedHour != nil {
		logger.Infof("Watermark '%s' saved: last processed hour = %s", key, wm.LastProcessedHour.Format(time.RFC3339))
	}
	return nil
}

// Reset deletes the watermark row for key. Deleting a missing row is not an error.
func (s *GormStore) Reset(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("key = ?", key).Delete(&record{}).Error; err != nil {
		return exception.New(moduleName, fmt.Sprintf("failed to reset watermark '%s'", key), err, true)
	}
	logger.Infof("Watermark '%s' reset.", key)
	return nil
}

// Verify interface.
var _ Store = (*GormStore)(nil)
