package quarantine

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Store provides CRUD operations for quarantine entries and approvals.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the quarantine tables.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&EntryRecord{}); err != nil {
		return fmt.Errorf("auto-migrate quarantine_entries: %w", err)
	}
	if err := s.db.AutoMigrate(&ApprovalRecord{}); err != nil {
		return fmt.Errorf("auto-migrate quarantine_approvals: %w", err)
	}
	return nil
}

// Create inserts a new quarantine entry.
func (s *Store) Create(rec *EntryRecord) error {
	if err := s.db.Create(rec).Error; err != nil {
		return fmt.Errorf("create quarantine entry: %w", err)
	}
	return nil
}

// Get retrieves a quarantine entry by ID with its approvals, oldest
// approval first. Returns nil, nil, nil if not found.
func (s *Store) Get(id string) (*EntryRecord, []ApprovalRecord, error) {
	var rec EntryRecord
	if err := s.db.Where("id = ?", id).First(&rec).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("get quarantine entry: %w", err)
	}

	approvals, err := s.Approvals(id)
	if err != nil {
		return nil, nil, err
	}
	return &rec, approvals, nil
}

// GetPendingForSkill returns the pending entry for a (skill, hash) pair,
// or nil if none exists.
func (s *Store) GetPendingForSkill(skillID, contentHash string) (*EntryRecord, error) {
	var rec EntryRecord
	err := s.db.Where("skill_id = ? AND content_hash = ? AND status = ?",
		skillID, contentHash, string(StatusPending)).First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get pending quarantine entry: %w", err)
	}
	return &rec, nil
}

// List returns quarantine entries, optionally filtered by status and/or
// skill ID, newest first.
func (s *Store) List(status Status, skillID string, limit int) ([]EntryRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := s.db.Order("created_at DESC").Limit(limit)
	if status != "" {
		query = query.Where("status = ?", string(status))
	}
	if skillID != "" {
		query = query.Where("skill_id = ?", skillID)
	}

	var records []EntryRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list quarantine entries: %w", err)
	}
	return records, nil
}

// Approvals returns the approvals for an entry, oldest first.
func (s *Store) Approvals(quarantineID string) ([]ApprovalRecord, error) {
	var approvals []ApprovalRecord
	err := s.db.Where("quarantine_id = ?", quarantineID).Order("created_at ASC").Find(&approvals).Error
	if err != nil {
		return nil, fmt.Errorf("get quarantine approvals: %w", err)
	}
	return approvals, nil
}

// ApprovalByReviewer returns a reviewer's prior decision on an entry, or
// nil if the reviewer has not voted.
func (s *Store) ApprovalByReviewer(quarantineID, reviewerID string) (*ApprovalRecord, error) {
	var rec ApprovalRecord
	err := s.db.Where("quarantine_id = ? AND reviewer_id = ?", quarantineID, reviewerID).First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get quarantine approval: %w", err)
	}
	return &rec, nil
}

// AddApproval records a reviewer decision.
func (s *Store) AddApproval(rec *ApprovalRecord) error {
	if err := s.db.Create(rec).Error; err != nil {
		return fmt.Errorf("add quarantine approval: %w", err)
	}
	return nil
}

// CompleteApprovals stamps the completion time on every approval of an
// entry.
func (s *Store) CompleteApprovals(quarantineID string, completedAt time.Time) error {
	err := s.db.Model(&ApprovalRecord{}).
		Where("quarantine_id = ?", quarantineID).
		Update("completed_at", completedAt).Error
	if err != nil {
		return fmt.Errorf("complete quarantine approvals: %w", err)
	}
	return nil
}

// DeleteApprovals removes all approvals for an entry, returning how many
// were removed.
func (s *Store) DeleteApprovals(quarantineID string) (int64, error) {
	result := s.db.Where("quarantine_id = ?", quarantineID).Delete(&ApprovalRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete quarantine approvals: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Resolve moves an entry to a terminal status.
func (s *Store) Resolve(id string, status Status, resolvedBy string) error {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":      string(status),
		"resolved_at": &now,
		"resolved_by": resolvedBy,
	}
	if err := s.db.Model(&EntryRecord{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("resolve quarantine entry: %w", err)
	}
	return nil
}
