package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Record is the persisted form of an activity: the whole aggregate as a JSON
// document plus a version counter for optimistic concurrency. Conditional
// updates are scoped to a single row, which is what gives rating and vote
// invalidation their atomicity.
type Record struct {
	ActivityID       string `gorm:"column:activity_id;primaryKey;size:190;not null"`
	Slug             string `gorm:"column:slug;size:190;uniqueIndex;not null"`
	PayloadJSON      string `gorm:"column:payload_json;type:text;not null"`
	Version          int64  `gorm:"column:version;not null;default:1"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "activities"
}

// GormStore persists activity aggregates through a gorm handle.
type GormStore struct {
	db    *gorm.DB
	clock func() time.Time
}

var errMissingStoreDatabase = errors.New("database handle is required")

// NewGormStore constructs a store over the provided database handle.
func NewGormStore(db *gorm.DB, clock func() time.Time) (*GormStore, error) {
	if db == nil {
		return nil, errMissingStoreDatabase
	}
	if clock == nil {
		clock = time.Now
	}
	return &GormStore{db: db, clock: clock}, nil
}

// Create persists a new activity aggregate at version 1.
func (s *GormStore) Create(ctx context.Context, aggregate *Activity) error {
	payload, err := json.Marshal(aggregate)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	now := s.clock().UTC().Unix()
	record := Record{
		ActivityID:       aggregate.ID,
		Slug:             aggregate.Slug,
		PayloadJSON:      string(payload),
		Version:          1,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return translateStoreError(err)
	}
	return nil
}

// FindByID loads the aggregate and its current version by activity id,
// falling back to the shareable slug.
func (s *GormStore) FindByID(ctx context.Context, id string) (*Activity, int64, error) {
	var record Record
	err := s.db.WithContext(ctx).
		Where("activity_id = ? OR slug = ?", id, id).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, 0, fmt.Errorf("%w: activity %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, 0, translateStoreError(err)
	}

	var aggregate Activity
	if err := json.Unmarshal([]byte(record.PayloadJSON), &aggregate); err != nil {
		return nil, 0, fmt.Errorf("%w: decode activity %s: %v", ErrStoreUnavailable, id, err)
	}
	return &aggregate, record.Version, nil
}

// UpdateConditional writes the aggregate back only if the stored version
// still matches expectedVersion, bumping the version on success. A stale
// version yields ErrVersionConflict for the caller's retry loop.
func (s *GormStore) UpdateConditional(ctx context.Context, id string, expectedVersion int64, aggregate *Activity) error {
	payload, err := json.Marshal(aggregate)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	result := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("activity_id = ? AND version = ?", aggregate.ID, expectedVersion).
		Updates(map[string]interface{}{
			"payload_json": string(payload),
			"version":      expectedVersion + 1,
			"updated_at_s": s.clock().UTC().Unix(),
		})
	if result.Error != nil {
		return translateStoreError(result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&Record{}).Where("activity_id = ?", aggregate.ID).Count(&count).Error; err != nil {
			return translateStoreError(err)
		}
		if count == 0 {
			return fmt.Errorf("%w: activity %s", ErrNotFound, id)
		}
		return fmt.Errorf("%w: activity %s at version %d", ErrVersionConflict, aggregate.ID, expectedVersion)
	}
	return nil
}

// List returns every stored aggregate, newest first.
func (s *GormStore) List(ctx context.Context) ([]Activity, error) {
	var records []Record
	if err := s.db.WithContext(ctx).Order("created_at_s DESC").Find(&records).Error; err != nil {
		return nil, translateStoreError(err)
	}
	activities := make([]Activity, 0, len(records))
	for _, record := range records {
		var aggregate Activity
		if err := json.Unmarshal([]byte(record.PayloadJSON), &aggregate); err != nil {
			return nil, fmt.Errorf("%w: decode activity %s: %v", ErrStoreUnavailable, record.ActivityID, err)
		}
		activities = append(activities, aggregate)
	}
	return activities, nil
}

// Delete removes the aggregate permanently.
func (s *GormStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("activity_id = ?", id).Delete(&Record{})
	if result.Error != nil {
		return translateStoreError(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: activity %s", ErrNotFound, id)
	}
	return nil
}

func translateStoreError(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
