package auditlog

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Store provides append-only operations for audit entry records.
// Persistence failures are propagated unmodified; retry policy belongs to
// the storage collaborator.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new audit Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the audit_log_entries table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&EntryRecord{}); err != nil {
		return fmt.Errorf("auto-migrate audit_log_entries: %w", err)
	}
	return nil
}

// Append creates a new immutable audit entry record.
func (s *Store) Append(rec *EntryRecord) error {
	if err := s.db.Create(rec).Error; err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Query returns entries matching the filter, newest first.
func (s *Store) Query(f Filter) ([]EntryRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := s.db.Order("created_at DESC").Limit(limit)
	if f.EventType != "" {
		query = query.Where("event_type = ?", f.EventType)
	}
	if f.Resource != "" {
		query = query.Where("resource = ?", f.Resource)
	}
	if f.Since != nil {
		query = query.Where("created_at >= ?", *f.Since)
	}
	if f.Until != nil {
		query = query.Where("created_at <= ?", *f.Until)
	}

	var records []EntryRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	return records, nil
}

// Count returns the total number of entries matching the filter.
func (s *Store) Count(f Filter) (int64, error) {
	query := s.db.Model(&EntryRecord{})
	if f.EventType != "" {
		query = query.Where("event_type = ?", f.EventType)
	}
	if f.Resource != "" {
		query = query.Where("resource = ?", f.Resource)
	}
	if f.Since != nil {
		query = query.Where("created_at >= ?", *f.Since)
	}
	if f.Until != nil {
		query = query.Where("created_at <= ?", *f.Until)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return total, nil
}

// DeleteOlderThan deletes entries created strictly before the cutoff.
// Returns the number of deleted records.
func (s *Store) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := s.db.Where("created_at < ?", cutoff).Delete(&EntryRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old audit entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// All returns every entry ordered oldest first, for export.
func (s *Store) All() ([]EntryRecord, error) {
	var records []EntryRecord
	if err := s.db.Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list all audit entries: %w", err)
	}
	return records, nil
}
